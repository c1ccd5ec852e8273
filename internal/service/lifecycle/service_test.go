package lifecycle_test

import (
	"testing"
	"time"

	"holdem-service/internal/model"
	"holdem-service/internal/service/lifecycle"
)

func TestComputeInactivityFundedSeats(t *testing.T) {
	svc := lifecycle.NewService(time.Hour)
	now := time.Now()
	left := now.Add(-time.Minute)

	seats := []model.Seat{
		{UserID: 1, Chips: 100},
		{UserID: 2, Chips: 100},
		{UserID: 3, Chips: 0},
		{UserID: 4, Chips: 500, LeftAt: &left},
	}
	if end, _ := svc.ComputeInactivity(model.Table{}, seats, now); end {
		t.Fatal("two funded seats should keep the table alive")
	}

	seats[1].Chips = 0
	end, reason := svc.ComputeInactivity(model.Table{}, seats, now)
	if !end {
		t.Fatal("one funded seat should end the table")
	}
	if reason == "" {
		t.Fatal("expected a reason")
	}
}

func TestComputeInactivityIdleExpiry(t *testing.T) {
	svc := lifecycle.NewService(time.Hour)
	now := time.Now()
	stale := now.Add(-2 * time.Hour)
	fresh := now.Add(-time.Minute)

	seats := []model.Seat{
		{UserID: 1, Chips: 100},
		{UserID: 2, Chips: 100},
	}

	if end, _ := svc.ComputeInactivity(model.Table{LastActionAt: &fresh}, seats, now); end {
		t.Fatal("recently active table should not end")
	}
	if end, _ := svc.ComputeInactivity(model.Table{LastActionAt: &stale}, seats, now); !end {
		t.Fatal("idle table should end")
	}

	expired := now.Add(-time.Second)
	if end, _ := svc.ComputeInactivity(model.Table{ExpiresAt: &expired}, seats, now); !end {
		t.Fatal("expired table should end")
	}
}

func TestCheckBalanceRequirement(t *testing.T) {
	svc := lifecycle.NewService(0)

	ok, required := svc.CheckBalanceRequirement(model.Seat{Chips: 25}, 20, 5)
	if !ok || required != 25 {
		t.Fatalf("ok=%v required=%d, want true 25", ok, required)
	}
	if ok, _ := svc.CheckBalanceRequirement(model.Seat{Chips: 24}, 20, 5); ok {
		t.Fatal("short stack should fail the requirement")
	}
}
