package table

import (
	"time"

	"holdem-service/internal/holdem"
)

// Player actions accepted by HandleAction. Ready is a pseudo-action: it is
// carried on the same channel as betting actions but only counts a vote for
// the next hand.
const (
	ActionFold  = "fold"
	ActionCheck = "check"
	ActionCall  = "call"
	ActionRaise = "raise"
	ActionReady = "ready"
)

// Engine is the slice of the rules engine the runtime drives. *holdem.Game
// satisfies it; tests may substitute their own.
type Engine interface {
	Fold(i int) error
	CheckCall(i int) error
	BetRaiseTo(i int, amount int64) error
	DealNextStreet() error
	PendingActor() int
	Complete() bool
	Pot() int64
	Winners() []holdem.Winner
	Street() holdem.Street
	LegalActions(i int) holdem.LegalActions
	Serialize() holdem.Snapshot
}

// Config tunes the runtime manager. Zero values fall back to defaults.
type Config struct {
	InterHandWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.InterHandWait <= 0 {
		c.InterHandWait = 5 * time.Second
	}
	return c
}

type SeatView struct {
	UserID     int64    `json:"userId,string"`
	Position   int      `json:"position"`
	Chips      int64    `json:"chips"`
	StreetBet  int64    `json:"streetBet"`
	Folded     bool     `json:"folded"`
	AllIn      bool     `json:"allIn"`
	Hole       []string `json:"hole,omitempty"`
	Ready      bool     `json:"ready"`
	SittingOut bool     `json:"sittingOut"`
}

// TableState is the viewer-scoped export pushed over ws and returned from
// the state endpoint. Opponents' hole cards stay empty until showdown.
type TableState struct {
	TableID               int64                 `json:"tableId,string"`
	TableStatus           string                `json:"tableStatus"`
	HandID                int64                 `json:"handId,string,omitempty"`
	HandNo                int64                 `json:"handNo,omitempty"`
	HandStatus            string                `json:"handStatus,omitempty"`
	Street                string                `json:"street,omitempty"`
	Board                 []string              `json:"board"`
	Pot                   int64                 `json:"pot"`
	CurrentBet            int64                 `json:"currentBet"`
	ActorUserID           int64                 `json:"actorUserId,string,omitempty"`
	Seats                 []SeatView            `json:"seats"`
	LegalActions          *holdem.LegalActions  `json:"legalActions,omitempty"`
	InterHandWaitDeadline string                `json:"interHandWaitDeadline,omitempty"`
}

type WinnerView struct {
	UserID int64    `json:"userId,string"`
	Amount int64    `json:"amount"`
	Rank   string   `json:"rank"`
	Best   []string `json:"best,omitempty"`
}

// HandEndedPayload is the unified end-of-hand broadcast: winners, rake and
// the countdown clients render before the next hand.
type HandEndedPayload struct {
	TableID               int64        `json:"tableId,string"`
	HandID                int64        `json:"handId,string"`
	HandNo                int64        `json:"handNo"`
	Pot                   int64        `json:"pot"`
	Rake                  int64        `json:"rake"`
	Winners               []WinnerView `json:"winners"`
	InterHandWaitDeadline string       `json:"interHandWaitDeadline"`
	ReadyAction           string       `json:"readyAction"`
}

type OutgoingMessage struct {
	Type string      `json:"type"`
	Seq  int64       `json:"seq"`
	Data interface{} `json:"data"`
}

func cardStrings(cards []holdem.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
