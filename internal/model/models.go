package model

import (
	"time"

	"gorm.io/datatypes"
)

// Table lifecycle statuses.
const (
	TableStatusWaiting = "waiting"
	TableStatusActive  = "active"
	TableStatusPaused  = "paused"
	TableStatusEnded   = "ended"
	TableStatusExpired = "expired"
)

// Hand statuses. Exactly one non-ended hand may exist per table.
const (
	HandStatusPreflop       = "preflop"
	HandStatusFlop          = "flop"
	HandStatusTurn          = "turn"
	HandStatusRiver         = "river"
	HandStatusInterHandWait = "inter_hand_wait"
	HandStatusEnded         = "ended"
)

// 2.1 User & Wallet

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Phone     string `gorm:"uniqueIndex;size:32"`
	Nickname  string
	Avatar    string
	Status    string `gorm:"default:normal;not null"` // normal/banned
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string `gorm:"size:255"`
	DisplayName  string `gorm:"size:64"`
	Status       string `gorm:"default:active"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Wallet struct {
	UserID           int64 `gorm:"primaryKey"`
	BalanceTotal     int64
	BalanceAvailable int64
	BalanceFrozen    int64
	TotalWin         int64
	TotalConsume     int64
	TotalRake        int64
	HandsPlayed      int64
	UpdatedAt        time.Time
}

type BillingLog struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	UserID       int64
	Type         string // win/lose/rake/platform_income/adjust
	Delta        int64
	BalanceAfter int64
	HandID       *int64
	TableID      *int64
	MetaJSON     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

// 2.2 Rake

type RakeRule struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	Name        string         `gorm:"size:128"`
	Type        string         // ratio_bp
	Remark      string         `gorm:"size:255"`
	Status      string         `gorm:"default:enabled"` // enabled/disabled
	ConfigJSON  datatypes.JSON `gorm:"type:jsonb"`      // { "rateBp": 500, "cap": 50 }
	EffectiveAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// 2.3 Table, Seat, Hand

type Table struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Status       string `gorm:"default:waiting;not null"`
	SmallBlind   int64
	BigBlind     int64
	Ante         int64
	StackSize    int64 // starting stack for a fresh seat
	MaxPlayers   int
	RakeRuleID   int64
	LastActionAt *time.Time
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Seat struct {
	ID                   int64 `gorm:"primaryKey;autoIncrement"`
	TableID              int64 `gorm:"index"`
	UserID               int64 `gorm:"index"`
	Position             int
	Chips                int64 // authoritative at hand start only
	LeftAt               *time.Time // nil => active
	IsSittingOutNextHand bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Hand numbers are strictly increasing per table and never reused; the
// composite unique index enforces it at the store.
type Hand struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	TableID         int64  `gorm:"uniqueIndex:uniq_table_hand_no"`
	HandNo          int64  `gorm:"uniqueIndex:uniq_table_hand_no"`
	Status          string `gorm:"index;not null"`
	SnapshotJSON    datatypes.JSON `gorm:"type:jsonb"` // opaque engine snapshot
	PlayerOrderJSON datatypes.JSON `gorm:"type:jsonb"` // canonical user-id order
	PotSize         int64
	RakeAmount      int64
	ResultJSON      datatypes.JSON `gorm:"type:jsonb"`
	TimeoutAt       *time.Time // inter-hand wait deadline for the scheduler
	CreatedAt       time.Time
	UpdatedAt       time.Time
	EndedAt         *time.Time
}
