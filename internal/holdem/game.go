package holdem

import (
	"errors"
	"fmt"
	"math/rand"
)

type Street int

const (
	StreetPreflop Street = iota
	StreetFlop
	StreetTurn
	StreetRiver
	StreetShowdown
)

func (s Street) String() string {
	switch s {
	case StreetPreflop:
		return "preflop"
	case StreetFlop:
		return "flop"
	case StreetTurn:
		return "turn"
	case StreetRiver:
		return "river"
	case StreetShowdown:
		return "showdown"
	default:
		return fmt.Sprintf("street(%d)", int(s))
	}
}

func streetFromString(s string) (Street, error) {
	for st := StreetPreflop; st <= StreetShowdown; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown street %q", s)
}

var (
	ErrInvalidConfig  = errors.New("invalid game configuration")
	ErrUnknownPlayer  = errors.New("unknown player index")
	ErrNotPlayersTurn = errors.New("not player's turn")
	ErrHandComplete   = errors.New("hand is complete")
	ErrBettingOpen    = errors.New("betting round still open")
	ErrCannotFold     = errors.New("cannot fold when checking is available")
	ErrRaiseTooSmall  = errors.New("raise below minimum")
	ErrRaiseTooLarge  = errors.New("raise exceeds stack")
	ErrNothingToBet   = errors.New("bet must exceed current bet")
)

type Config struct {
	Stacks     []int64
	SmallBlind int64
	BigBlind   int64
	Ante       int64
	Button     int
}

type playerState struct {
	stack     int64
	streetBet int64 // committed this street
	totalBet  int64 // committed whole hand
	hole      []Card
	folded    bool
	allIn     bool
	acted     bool // has acted since the last raise this street
}

// Game is one hand of no-limit hold'em. Players are addressed by their
// canonical index, fixed for the lifetime of the hand. A Game is not safe
// for concurrent use; callers serialize access.
type Game struct {
	sb, bb, ante int64
	button       int
	players      []playerState
	deck         []Card
	board        []Card
	street       Street
	currentBet   int64
	minRaiseTo   int64
	actor        int // -1 when no pending actor
	complete     bool
	winners      []Winner
}

type Winner struct {
	Player int    `json:"player"`
	Amount int64  `json:"amount"`
	Rank   string `json:"rank"`
	Best   []Card `json:"best,omitempty"`
}

// LegalActions describes what the pending actor may do; zero value for
// anyone else.
type LegalActions struct {
	CanFold    bool  `json:"canFold"`
	CanCheck   bool  `json:"canCheck"`
	CallAmount int64 `json:"callAmount"`
	MinRaiseTo int64 `json:"minRaiseTo"`
	MaxRaiseTo int64 `json:"maxRaiseTo"`
}

// New shuffles, deals hole cards, posts antes and blinds, and leaves the
// preflop actor pending.
func New(cfg Config, r *rand.Rand) (*Game, error) {
	n := len(cfg.Stacks)
	if n < 2 || n > 9 {
		return nil, fmt.Errorf("%w: player count %d", ErrInvalidConfig, n)
	}
	if cfg.SmallBlind <= 0 || cfg.BigBlind < cfg.SmallBlind || cfg.Ante < 0 {
		return nil, fmt.Errorf("%w: blinds sb=%d bb=%d ante=%d", ErrInvalidConfig, cfg.SmallBlind, cfg.BigBlind, cfg.Ante)
	}
	if cfg.Button < 0 || cfg.Button >= n {
		return nil, fmt.Errorf("%w: button %d", ErrInvalidConfig, cfg.Button)
	}
	for i, s := range cfg.Stacks {
		if s <= 0 {
			return nil, fmt.Errorf("%w: stack %d for player %d", ErrInvalidConfig, s, i)
		}
	}

	g := &Game{
		sb:      cfg.SmallBlind,
		bb:      cfg.BigBlind,
		ante:    cfg.Ante,
		button:  cfg.Button,
		players: make([]playerState, n),
		deck:    newDeck(r),
		street:  StreetPreflop,
	}
	for i := range g.players {
		g.players[i].stack = cfg.Stacks[i]
	}

	// Two cards each, in canonical order starting left of the button.
	for round := 0; round < 2; round++ {
		for i := 0; i < n; i++ {
			idx := (g.button + 1 + i) % n
			g.players[idx].hole = append(g.players[idx].hole, g.deck[0])
			g.deck = g.deck[1:]
		}
	}

	if g.ante > 0 {
		for i := range g.players {
			g.postDead(i, g.ante)
		}
	}

	// Heads-up: button posts the small blind and acts first preflop.
	sbIdx := (g.button + 1) % n
	bbIdx := (g.button + 2) % n
	first := (g.button + 3) % n
	if n == 2 {
		sbIdx = g.button
		bbIdx = (g.button + 1) % n
		first = g.button
	}
	g.postBlind(sbIdx, g.sb)
	g.postBlind(bbIdx, g.bb)

	g.currentBet = g.bb
	g.minRaiseTo = 2 * g.bb
	g.actor = g.firstPendingFrom(first)
	return g, nil
}

// postDead commits chips without counting toward the street bet.
func (g *Game) postDead(i int, amt int64) {
	p := &g.players[i]
	pay := amt
	if p.stack < pay {
		pay = p.stack
	}
	p.stack -= pay
	p.totalBet += pay
	if p.stack == 0 {
		p.allIn = true
	}
}

func (g *Game) postBlind(i int, amt int64) {
	p := &g.players[i]
	pay := amt
	if p.stack < pay {
		pay = p.stack
	}
	p.stack -= pay
	p.streetBet += pay
	p.totalBet += pay
	if p.stack == 0 {
		p.allIn = true
	}
}

func (g *Game) checkTurn(i int) error {
	if g.complete {
		return ErrHandComplete
	}
	if i < 0 || i >= len(g.players) {
		return ErrUnknownPlayer
	}
	if g.actor != i {
		return ErrNotPlayersTurn
	}
	return nil
}

func (g *Game) callAmount(i int) int64 {
	need := g.currentBet - g.players[i].streetBet
	if need < 0 {
		return 0
	}
	if need > g.players[i].stack {
		return g.players[i].stack
	}
	return need
}

// Fold is rejected whenever checking is available.
func (g *Game) Fold(i int) error {
	if err := g.checkTurn(i); err != nil {
		return err
	}
	if g.callAmount(i) == 0 {
		return ErrCannotFold
	}
	p := &g.players[i]
	p.folded = true
	p.acted = true
	g.afterAction(i)
	return nil
}

// CheckCall checks when nothing is owed and calls otherwise; a short call
// puts the player all-in.
func (g *Game) CheckCall(i int) error {
	if err := g.checkTurn(i); err != nil {
		return err
	}
	p := &g.players[i]
	pay := g.callAmount(i)
	p.stack -= pay
	p.streetBet += pay
	p.totalBet += pay
	if p.stack == 0 {
		p.allIn = true
	}
	p.acted = true
	g.afterAction(i)
	return nil
}

// BetRaiseTo commits chips up to a total street bet of amount. Amount must
// reach the minimum raise unless it is the player's entire stack.
func (g *Game) BetRaiseTo(i int, amount int64) error {
	if err := g.checkTurn(i); err != nil {
		return err
	}
	p := &g.players[i]
	maxTo := p.streetBet + p.stack
	if amount > maxTo {
		return fmt.Errorf("%w: to %d with max %d", ErrRaiseTooLarge, amount, maxTo)
	}
	if amount <= g.currentBet {
		return fmt.Errorf("%w: to %d over current bet %d", ErrNothingToBet, amount, g.currentBet)
	}
	if amount < g.minRaiseTo && amount != maxTo {
		return fmt.Errorf("%w: to %d with minimum %d", ErrRaiseTooSmall, amount, g.minRaiseTo)
	}

	pay := amount - p.streetBet
	p.stack -= pay
	p.streetBet = amount
	p.totalBet += pay
	if p.stack == 0 {
		p.allIn = true
	}

	// A full raise reopens the action; an all-in under-raise does not move
	// the minimum.
	if amount >= g.minRaiseTo {
		g.minRaiseTo = amount + (amount - g.currentBet)
	}
	g.currentBet = amount
	for j := range g.players {
		if j != i && !g.players[j].folded && !g.players[j].allIn {
			g.players[j].acted = false
		}
	}
	p.acted = true
	g.afterAction(i)
	return nil
}

func (g *Game) afterAction(from int) {
	if g.inHandCount() == 1 {
		g.finishFoldOut()
		return
	}
	g.actor = g.firstPendingFrom(from + 1)
}

func (g *Game) inHandCount() int {
	n := 0
	for i := range g.players {
		if !g.players[i].folded {
			n++
		}
	}
	return n
}

func (g *Game) actableCount() int {
	n := 0
	for i := range g.players {
		if !g.players[i].folded && !g.players[i].allIn {
			n++
		}
	}
	return n
}

// firstPendingFrom scans canonical order for the next player who still owes
// an action this street.
func (g *Game) firstPendingFrom(start int) int {
	n := len(g.players)
	for i := 0; i < n; i++ {
		idx := ((start + i) % n + n) % n
		p := &g.players[idx]
		if p.folded || p.allIn {
			continue
		}
		if !p.acted || p.streetBet < g.currentBet {
			return idx
		}
	}
	return -1
}

// PendingActor returns the index of the player who must act, or -1 when the
// betting round is closed.
func (g *Game) PendingActor() int {
	return g.actor
}

func (g *Game) Complete() bool {
	return g.complete
}

// DealNextStreet advances to the next street once betting is closed. Called
// in a loop it also drives all-in run-outs; the transition out of the river
// performs the showdown.
func (g *Game) DealNextStreet() error {
	if g.complete {
		return ErrHandComplete
	}
	if g.actor >= 0 {
		return ErrBettingOpen
	}
	switch g.street {
	case StreetPreflop:
		g.dealBoard(3)
		g.street = StreetFlop
	case StreetFlop:
		g.dealBoard(1)
		g.street = StreetTurn
	case StreetTurn:
		g.dealBoard(1)
		g.street = StreetRiver
	case StreetRiver:
		g.street = StreetShowdown
		g.showdown()
		return nil
	default:
		return ErrHandComplete
	}
	g.startStreet()
	return nil
}

func (g *Game) dealBoard(count int) {
	g.board = append(g.board, g.deck[:count]...)
	g.deck = g.deck[count:]
}

func (g *Game) startStreet() {
	for i := range g.players {
		g.players[i].streetBet = 0
		g.players[i].acted = false
	}
	g.currentBet = 0
	g.minRaiseTo = g.bb
	if g.actableCount() < 2 {
		g.actor = -1 // run-out, nothing left to bet
		return
	}
	n := len(g.players)
	g.actor = g.firstPendingFrom((g.button + 1) % n)
}

func (g *Game) finishFoldOut() {
	winner := -1
	for i := range g.players {
		if !g.players[i].folded {
			winner = i
			break
		}
	}
	amount := g.Pot()
	g.players[winner].stack += amount
	g.winners = []Winner{{Player: winner, Amount: amount, Rank: "uncontested"}}
	g.actor = -1
	g.complete = true
}

// Pot is the total committed by all players this hand.
func (g *Game) Pot() int64 {
	var pot int64
	for i := range g.players {
		pot += g.players[i].totalBet
	}
	return pot
}

// Winners is non-empty once the hand is complete; amounts are pre-rake.
func (g *Game) Winners() []Winner {
	out := make([]Winner, len(g.winners))
	copy(out, g.winners)
	return out
}

func (g *Game) Street() Street {
	return g.street
}

func (g *Game) Board() []Card {
	return append([]Card(nil), g.board...)
}

func (g *Game) CurrentBet() int64 {
	return g.currentBet
}

// LegalActions reports the full action surface for UI introspection.
func (g *Game) LegalActions(i int) LegalActions {
	if g.complete || i != g.actor {
		return LegalActions{}
	}
	p := &g.players[i]
	call := g.callAmount(i)
	la := LegalActions{
		CanFold:    call > 0,
		CanCheck:   call == 0,
		CallAmount: call,
	}
	maxTo := p.streetBet + p.stack
	if maxTo > g.currentBet {
		la.MaxRaiseTo = maxTo
		la.MinRaiseTo = g.minRaiseTo
		if la.MinRaiseTo > maxTo {
			la.MinRaiseTo = maxTo
		}
	}
	return la
}
