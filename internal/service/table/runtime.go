package table

import (
	"sync"
	"sync/atomic"
	"time"

	"holdem-service/internal/holdem"
	"holdem-service/internal/model"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
)

// TableRuntime is the in-memory half of one table: the rules engine, the
// canonical player order of the current hand, the ready votes collected
// between hands, and the ws subscribers. All game state access is
// serialized by the manager's per-table lock; only the subscriber map has
// its own mutex so the redis relay can push without touching game state.
type TableRuntime struct {
	table model.Table
	seats []model.Seat // active seats in canonical order; chips are hand-start values

	eng         Engine
	hand        model.Hand
	playerOrder []int64 // user ids, index-aligned with the engine
	indexByUser map[int64]int

	ready map[int64]bool // votes for the next hand, cleared on hand start
	seq   int64          // message sequence, atomic: the relay bumps it off-lock

	subMu       sync.Mutex
	subscribers map[int64]chan OutgoingMessage
}

func newTableRuntime(table model.Table, seats []model.Seat) *TableRuntime {
	return &TableRuntime{
		table:       table,
		seats:       seats,
		indexByUser: make(map[int64]int),
		ready:       make(map[int64]bool),
		subscribers: make(map[int64]chan OutgoingMessage),
	}
}

// setHand installs a hand and its canonical player order, rebuilding the
// user index lookup and clearing stale ready votes.
func (rt *TableRuntime) setHand(hand model.Hand, eng Engine, order []int64) {
	rt.hand = hand
	rt.eng = eng
	rt.playerOrder = order
	rt.indexByUser = make(map[int64]int, len(order))
	for i, uid := range order {
		rt.indexByUser[uid] = i
	}
	rt.ready = make(map[int64]bool)
}

func (rt *TableRuntime) clearHand() {
	rt.eng = nil
	rt.playerOrder = nil
	rt.indexByUser = make(map[int64]int)
	rt.ready = make(map[int64]bool)
}

func (rt *TableRuntime) seatByUser(userID int64) *model.Seat {
	for i := range rt.seats {
		if rt.seats[i].UserID == userID && rt.seats[i].LeftAt == nil {
			return &rt.seats[i]
		}
	}
	return nil
}

func (rt *TableRuntime) Subscribe(userID int64) chan OutgoingMessage {
	rt.subMu.Lock()
	defer rt.subMu.Unlock()

	ch := make(chan OutgoingMessage, 8)
	rt.subscribers[userID] = ch
	return ch
}

func (rt *TableRuntime) Unsubscribe(userID int64) {
	rt.subMu.Lock()
	defer rt.subMu.Unlock()

	if ch, ok := rt.subscribers[userID]; ok {
		delete(rt.subscribers, userID)
		close(ch)
	}
}

func (rt *TableRuntime) nextSeq() int64 {
	return atomic.AddInt64(&rt.seq, 1)
}

// broadcastEvent pushes one message to every subscriber, dropping when a
// client buffer is full.
func (rt *TableRuntime) broadcastEvent(msg OutgoingMessage) {
	rt.subMu.Lock()
	defer rt.subMu.Unlock()

	for uid, ch := range rt.subscribers {
		select {
		case ch <- msg:
		default:
			logger.Log.Warn("ws subscriber channel full",
				zap.Int64("userID", uid),
				zap.Int64("tableID", rt.table.ID),
			)
		}
	}
}

// broadcastState pushes a viewer-scoped state to each subscriber.
func (rt *TableRuntime) broadcastState() {
	seq := rt.nextSeq()
	rt.subMu.Lock()
	defer rt.subMu.Unlock()

	for uid, ch := range rt.subscribers {
		msg := OutgoingMessage{Type: "state", Seq: seq, Data: rt.exportState(uid)}
		select {
		case ch <- msg:
		default:
			logger.Log.Warn("ws subscriber channel full",
				zap.Int64("userID", uid),
				zap.Int64("tableID", rt.table.ID),
			)
		}
	}
}

// exportState builds the viewer-scoped table state. Hole cards of other
// players are revealed only once the hand is complete.
func (rt *TableRuntime) exportState(viewerID int64) TableState {
	state := TableState{
		TableID:     rt.table.ID,
		TableStatus: rt.table.Status,
		Board:       []string{},
		Seats:       make([]SeatView, 0, len(rt.seats)),
	}

	var snap holdem.Snapshot
	if rt.eng != nil {
		snap = rt.eng.Serialize()
		state.HandID = rt.hand.ID
		state.HandNo = rt.hand.HandNo
		state.HandStatus = rt.hand.Status
		state.Street = snap.Street
		state.Board = cardStrings(snap.Board)
		state.Pot = rt.eng.Pot()
		state.CurrentBet = snap.CurrentBet

		if actor := rt.eng.PendingActor(); actor >= 0 && actor < len(rt.playerOrder) {
			state.ActorUserID = rt.playerOrder[actor]
			if state.ActorUserID == viewerID {
				la := rt.eng.LegalActions(actor)
				state.LegalActions = &la
			}
		}
		if rt.hand.Status == model.HandStatusInterHandWait && rt.hand.TimeoutAt != nil {
			state.InterHandWaitDeadline = rt.hand.TimeoutAt.UTC().Format(time.RFC3339)
		}
	}

	for _, seat := range rt.seats {
		if seat.LeftAt != nil {
			continue
		}
		view := SeatView{
			UserID:     seat.UserID,
			Position:   seat.Position,
			Chips:      seat.Chips,
			Ready:      rt.ready[seat.UserID],
			SittingOut: seat.IsSittingOutNextHand,
		}
		if idx, ok := rt.indexByUser[seat.UserID]; ok && rt.eng != nil && idx < len(snap.Players) {
			ps := snap.Players[idx]
			view.Chips = ps.Stack
			view.StreetBet = ps.StreetBet
			view.Folded = ps.Folded
			view.AllIn = ps.AllIn
			if seat.UserID == viewerID || (snap.Complete && !ps.Folded) {
				view.Hole = cardStrings(ps.Hole)
			}
		}
		state.Seats = append(state.Seats, view)
	}
	return state
}
