package lifecycle

import (
	"fmt"
	"time"

	"holdem-service/internal/model"
)

type Service struct {
	tableExpiry time.Duration
}

func NewService(tableExpiry time.Duration) *Service {
	return &Service{tableExpiry: tableExpiry}
}

// ComputeInactivity reports whether a table should be shut down. Callers
// decide what to do with the answer; this never mutates anything.
func (s *Service) ComputeInactivity(table model.Table, seats []model.Seat, now time.Time) (bool, string) {
	funded := 0
	for _, seat := range seats {
		if seat.LeftAt != nil {
			continue
		}
		if seat.Chips > 0 {
			funded++
		}
	}
	if funded < 2 {
		return true, fmt.Sprintf("only %d funded seats remain", funded)
	}

	if s.tableExpiry > 0 && table.LastActionAt != nil {
		idle := now.Sub(*table.LastActionAt)
		if idle > s.tableExpiry {
			return true, fmt.Sprintf("idle for %s", idle.Round(time.Second))
		}
	}
	if table.ExpiresAt != nil && now.After(*table.ExpiresAt) {
		return true, "table expired"
	}
	return false, ""
}

// CheckBalanceRequirement reports whether a seat can afford the next hand.
// The requirement is the big blind plus the ante; a short stack may still
// finish the current hand but cannot vote into the next one.
func (s *Service) CheckBalanceRequirement(seat model.Seat, bigBlind, ante int64) (bool, int64) {
	required := bigBlind + ante
	return seat.Chips >= required, required
}
