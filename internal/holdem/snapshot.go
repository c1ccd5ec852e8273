package holdem

import "fmt"

// Snapshot is the complete serialized engine state. It is JSON-compatible
// and carries everything restoration needs: stacks, bets, cards in plain
// form, the remaining unseen deck order, and the positional indices.
// Serialize → Restore → Serialize yields an identical structure for any
// reachable state.
type Snapshot struct {
	SmallBlind int64            `json:"smallBlind"`
	BigBlind   int64            `json:"bigBlind"`
	Ante       int64            `json:"ante"`
	Button     int              `json:"button"`
	Street     string           `json:"street"`
	Board      []Card           `json:"board"`
	Deck       []Card           `json:"deck"`
	CurrentBet int64            `json:"currentBet"`
	MinRaiseTo int64            `json:"minRaiseTo"`
	Actor      int              `json:"actor"`
	Complete   bool             `json:"complete"`
	Players    []PlayerSnapshot `json:"players"`
	Winners    []Winner         `json:"winners,omitempty"`
}

type PlayerSnapshot struct {
	Stack     int64  `json:"stack"`
	StreetBet int64  `json:"streetBet"`
	TotalBet  int64  `json:"totalBet"`
	Hole      []Card `json:"hole"`
	Folded    bool   `json:"folded"`
	AllIn     bool   `json:"allIn"`
	Acted     bool   `json:"acted"`
}

func (g *Game) Serialize() Snapshot {
	players := make([]PlayerSnapshot, len(g.players))
	for i := range g.players {
		p := &g.players[i]
		players[i] = PlayerSnapshot{
			Stack:     p.stack,
			StreetBet: p.streetBet,
			TotalBet:  p.totalBet,
			Hole:      append([]Card(nil), p.hole...),
			Folded:    p.folded,
			AllIn:     p.allIn,
			Acted:     p.acted,
		}
	}
	var winners []Winner
	if len(g.winners) > 0 {
		winners = make([]Winner, len(g.winners))
		copy(winners, g.winners)
	}
	return Snapshot{
		SmallBlind: g.sb,
		BigBlind:   g.bb,
		Ante:       g.ante,
		Button:     g.button,
		Street:     g.street.String(),
		Board:      append([]Card(nil), g.board...),
		Deck:       append([]Card(nil), g.deck...),
		CurrentBet: g.currentBet,
		MinRaiseTo: g.minRaiseTo,
		Actor:      g.actor,
		Complete:   g.complete,
		Players:    players,
		Winners:    winners,
	}
}

// Restore rebuilds an engine from a snapshot: persisted cards are re-dealt
// as-is (never re-shuffled) and stacks and bets are assigned directly.
func Restore(s Snapshot) (*Game, error) {
	street, err := streetFromString(s.Street)
	if err != nil {
		return nil, err
	}
	n := len(s.Players)
	if n < 2 || n > 9 {
		return nil, fmt.Errorf("%w: player count %d", ErrInvalidConfig, n)
	}
	if s.Button < 0 || s.Button >= n {
		return nil, fmt.Errorf("%w: button %d", ErrInvalidConfig, s.Button)
	}
	if s.Actor < -1 || s.Actor >= n {
		return nil, fmt.Errorf("%w: actor %d", ErrInvalidConfig, s.Actor)
	}

	g := &Game{
		sb:         s.SmallBlind,
		bb:         s.BigBlind,
		ante:       s.Ante,
		button:     s.Button,
		players:    make([]playerState, n),
		deck:       append([]Card(nil), s.Deck...),
		board:      append([]Card(nil), s.Board...),
		street:     street,
		currentBet: s.CurrentBet,
		minRaiseTo: s.MinRaiseTo,
		actor:      s.Actor,
		complete:   s.Complete,
	}
	for i, ps := range s.Players {
		if len(ps.Hole) != 2 {
			return nil, fmt.Errorf("%w: player %d has %d hole cards", ErrInvalidConfig, i, len(ps.Hole))
		}
		g.players[i] = playerState{
			stack:     ps.Stack,
			streetBet: ps.StreetBet,
			totalBet:  ps.TotalBet,
			hole:      append([]Card(nil), ps.Hole...),
			folded:    ps.Folded,
			allIn:     ps.AllIn,
			acted:     ps.Acted,
		}
	}
	if len(s.Winners) > 0 {
		g.winners = make([]Winner, len(s.Winners))
		copy(g.winners, s.Winners)
	}
	return g, nil
}
