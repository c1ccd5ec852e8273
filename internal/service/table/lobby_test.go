package table_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"holdem-service/internal/model"
	"holdem-service/internal/service/table"
	appErr "holdem-service/pkg/errors"
)

func TestAdminCreateTableValidates(t *testing.T) {
	_, mgr := newManager(t)
	ctx := context.Background()

	tbl, err := mgr.AdminCreateTable(ctx, table.AdminCreateParams{
		SmallBlind: 10, BigBlind: 20, StackSize: 1000, MaxPlayers: 6,
	})
	if err != nil {
		t.Fatalf("AdminCreateTable: %v", err)
	}
	if tbl.Status != model.TableStatusWaiting {
		t.Fatalf("status = %s, want waiting", tbl.Status)
	}

	_, err = mgr.AdminCreateTable(ctx, table.AdminCreateParams{
		SmallBlind: 20, BigBlind: 10, MaxPlayers: 6,
	})
	if !errors.Is(err, appErr.ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction for inverted blinds", err)
	}
}

func TestJoinTableMovesBuyInFromWallet(t *testing.T) {
	db, mgr := newManager(t)
	ctx := context.Background()

	tbl, err := mgr.AdminCreateTable(ctx, table.AdminCreateParams{
		SmallBlind: 10, BigBlind: 20, StackSize: 1000, MaxPlayers: 2,
	})
	if err != nil {
		t.Fatalf("AdminCreateTable: %v", err)
	}

	wallets := []model.Wallet{
		{UserID: 201, BalanceTotal: 2000, BalanceAvailable: 2000, UpdatedAt: time.Now()},
		{UserID: 202, BalanceTotal: 500, BalanceAvailable: 500, UpdatedAt: time.Now()},
		{UserID: 203, BalanceTotal: 2000, BalanceAvailable: 2000, UpdatedAt: time.Now()},
	}
	if err := db.Create(&wallets).Error; err != nil {
		t.Fatalf("seed wallets: %v", err)
	}

	seat, err := mgr.JoinTable(ctx, tbl.ID, 201, 1000)
	if err != nil {
		t.Fatalf("JoinTable: %v", err)
	}
	if seat.Chips != 1000 || seat.Position != 0 {
		t.Fatalf("seat = chips %d pos %d", seat.Chips, seat.Position)
	}

	var w model.Wallet
	if err := db.Where("user_id = ?", 201).First(&w).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if w.BalanceAvailable != 1000 {
		t.Fatalf("balance = %d, want 1000 after buy-in", w.BalanceAvailable)
	}

	if _, err := mgr.JoinTable(ctx, tbl.ID, 201, 100); !errors.Is(err, appErr.ErrAlreadySeated) {
		t.Fatalf("err = %v, want ErrAlreadySeated", err)
	}
	if _, err := mgr.JoinTable(ctx, tbl.ID, 202, 600); !errors.Is(err, appErr.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	if _, err := mgr.JoinTable(ctx, tbl.ID, 202, 500); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if _, err := mgr.JoinTable(ctx, tbl.ID, 203, 100); !errors.Is(err, appErr.ErrTableFull) {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
}

func TestLeaveTableCashesOut(t *testing.T) {
	db, mgr := newManager(t)
	ctx := context.Background()

	tbl, err := mgr.AdminCreateTable(ctx, table.AdminCreateParams{
		SmallBlind: 10, BigBlind: 20, StackSize: 1000, MaxPlayers: 6,
	})
	if err != nil {
		t.Fatalf("AdminCreateTable: %v", err)
	}
	if err := db.Create(&model.Wallet{UserID: 301, BalanceTotal: 2000, BalanceAvailable: 2000, UpdatedAt: time.Now()}).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	if _, err := mgr.JoinTable(ctx, tbl.ID, 301, 1500); err != nil {
		t.Fatalf("JoinTable: %v", err)
	}
	if err := mgr.LeaveTable(ctx, tbl.ID, 301); err != nil {
		t.Fatalf("LeaveTable: %v", err)
	}

	var w model.Wallet
	if err := db.Where("user_id = ?", 301).First(&w).Error; err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	if w.BalanceAvailable != 2000 {
		t.Fatalf("balance = %d, want chips returned", w.BalanceAvailable)
	}

	if err := mgr.LeaveTable(ctx, tbl.ID, 301); !errors.Is(err, appErr.ErrNotSeated) {
		t.Fatalf("err = %v, want ErrNotSeated", err)
	}
}

func TestLeaveTableRejectedMidHand(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := mgr.LeaveTable(ctx, tbl.ID, seats[0].UserID); !errors.Is(err, appErr.ErrHandInProgress) {
		t.Fatalf("err = %v, want ErrHandInProgress", err)
	}
}
