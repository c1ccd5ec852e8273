package table_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"holdem-service/internal/model"
	"holdem-service/internal/service/lifecycle"
	"holdem-service/internal/service/rake"
	"holdem-service/internal/service/table"
	"holdem-service/internal/service/wallet"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.InitLogger("release")
	os.Exit(m.Run())
}

func newManager(t *testing.T) (*gorm.DB, *table.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Wallet{}, &model.BillingLog{},
		&model.RakeRule{}, &model.Table{}, &model.Seat{}, &model.Hand{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db, newManagerOn(db)
}

func newManagerOn(db *gorm.DB) *table.Service {
	return table.NewService(
		db, nil,
		wallet.NewService(db),
		rake.NewService(db, 500, 50),
		lifecycle.NewService(time.Hour),
		table.Config{InterHandWait: 5 * time.Second},
	)
}

// seedTable creates a waiting table with one seat per stack, positions in
// argument order.
func seedTable(t *testing.T, db *gorm.DB, stacks ...int64) (model.Table, []model.Seat) {
	t.Helper()

	tbl := model.Table{
		Status:     model.TableStatusWaiting,
		SmallBlind: 10,
		BigBlind:   20,
		StackSize:  1000,
		MaxPlayers: 9,
	}
	if err := db.Create(&tbl).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	seats := make([]model.Seat, len(stacks))
	for i, chips := range stacks {
		seats[i] = model.Seat{
			TableID:  tbl.ID,
			UserID:   int64(100 + i),
			Position: i,
			Chips:    chips,
		}
	}
	if err := db.Create(&seats).Error; err != nil {
		t.Fatalf("create seats: %v", err)
	}
	return tbl, seats
}

func activeHand(t *testing.T, db *gorm.DB, tableID int64) model.Hand {
	t.Helper()
	var hand model.Hand
	err := db.Where("table_id = ? AND status <> ?", tableID, model.HandStatusEnded).
		Order("hand_no DESC").First(&hand).Error
	if err != nil {
		t.Fatalf("load active hand: %v", err)
	}
	return hand
}

func TestEnsureTableIdempotent(t *testing.T) {
	db, mgr := newManager(t)
	tbl, _ := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	rt1, err := mgr.EnsureTable(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	rt2, err := mgr.EnsureTable(ctx, tbl.ID)
	if err != nil {
		t.Fatalf("EnsureTable again: %v", err)
	}
	if rt1 != rt2 {
		t.Fatal("second ensure should return the cached runtime")
	}

	if _, err := mgr.EnsureTable(ctx, 9999); !errors.Is(err, appErr.ErrTableNotFound) {
		t.Fatalf("err = %v, want ErrTableNotFound", err)
	}
}

func TestStartGameDealsFirstHand(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	state, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if state.HandNo != 1 || state.HandStatus != model.HandStatusPreflop {
		t.Fatalf("state = handNo %d status %s", state.HandNo, state.HandStatus)
	}
	if state.Pot != 30 {
		t.Fatalf("pot = %d, want 30 from blinds", state.Pot)
	}

	hand := activeHand(t, db, tbl.ID)
	if hand.HandNo != 1 || hand.Status != model.HandStatusPreflop {
		t.Fatalf("hand row = no %d status %s", hand.HandNo, hand.Status)
	}
	if len(hand.SnapshotJSON) == 0 || len(hand.PlayerOrderJSON) == 0 {
		t.Fatal("snapshot and player order must be persisted at hand start")
	}

	var dbTable model.Table
	if err := db.First(&dbTable, tbl.ID).Error; err != nil {
		t.Fatalf("load table: %v", err)
	}
	if dbTable.Status != model.TableStatusActive {
		t.Fatalf("table status = %s, want active", dbTable.Status)
	}

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); !errors.Is(err, appErr.ErrHandInProgress) {
		t.Fatalf("err = %v, want ErrHandInProgress", err)
	}
	if _, err := mgr.StartGame(ctx, tbl.ID, 777); !errors.Is(err, appErr.ErrNotSeated) {
		t.Fatalf("err = %v, want ErrNotSeated", err)
	}
}

func TestStartGameNeedsTwoFundedPlayers(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 15) // 15 < big blind
	ctx := context.Background()

	_, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID)
	if !errors.Is(err, appErr.ErrNotEnoughPlayers) {
		t.Fatalf("err = %v, want ErrNotEnoughPlayers", err)
	}
}

// Heads-up with hand_no 1 the position-0 seat holds the button, posts the
// small blind, and acts first. Folding it out settles the hand.
func foldOutFirstHand(t *testing.T, mgr *table.Service, tbl model.Table, seats []model.Seat) {
	t.Helper()
	ctx := context.Background()

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	state, err := mgr.GetState(ctx, tbl.ID, seats[0].UserID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.ActorUserID != seats[0].UserID {
		t.Fatalf("actor = %d, want button %d", state.ActorUserID, seats[0].UserID)
	}
	if _, err := mgr.HandleAction(ctx, tbl.ID, seats[0].UserID, table.ActionFold, 0); err != nil {
		t.Fatalf("fold: %v", err)
	}
}

func TestFoldOutSettlesHand(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	foldOutFirstHand(t, mgr, tbl, seats)

	hand := activeHand(t, db, tbl.ID)
	if hand.Status != model.HandStatusInterHandWait {
		t.Fatalf("hand status = %s, want inter_hand_wait", hand.Status)
	}
	if hand.PotSize != 30 {
		t.Fatalf("pot = %d, want 30", hand.PotSize)
	}
	// 30 * 500bp / 10000 floors to 1
	if hand.RakeAmount != 1 {
		t.Fatalf("rake = %d, want 1", hand.RakeAmount)
	}
	if hand.TimeoutAt == nil {
		t.Fatal("inter-hand wait deadline must be set")
	}

	var after []model.Seat
	if err := db.Order("position").Find(&after).Error; err != nil {
		t.Fatalf("load seats: %v", err)
	}
	if after[0].Chips != 990 {
		t.Fatalf("folder chips = %d, want 990", after[0].Chips)
	}
	if after[1].Chips != 1009 {
		t.Fatalf("winner chips = %d, want 1009 (pot 30 minus rake 1)", after[1].Chips)
	}
	for _, seat := range after {
		if !seat.IsSittingOutNextHand {
			t.Fatalf("seat %d must be forced to sit out after the hand", seat.Position)
		}
	}
}

func TestAllReadyStartsNextHand(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	foldOutFirstHand(t, mgr, tbl, seats)
	ctx := context.Background()

	if _, err := mgr.HandleAction(ctx, tbl.ID, seats[0].UserID, table.ActionReady, 0); err != nil {
		t.Fatalf("first ready: %v", err)
	}
	hand := activeHand(t, db, tbl.ID)
	if hand.HandNo != 1 {
		t.Fatal("one ready vote must not start the next hand")
	}

	if _, err := mgr.HandleAction(ctx, tbl.ID, seats[1].UserID, table.ActionReady, 0); err != nil {
		t.Fatalf("second ready: %v", err)
	}

	hand = activeHand(t, db, tbl.ID)
	if hand.HandNo != 2 || hand.Status != model.HandStatusPreflop {
		t.Fatalf("hand = no %d status %s, want 2/preflop", hand.HandNo, hand.Status)
	}

	var open int64
	db.Model(&model.Hand{}).
		Where("table_id = ? AND status <> ?", tbl.ID, model.HandStatusEnded).
		Count(&open)
	if open != 1 {
		t.Fatalf("open hands = %d, want exactly 1", open)
	}
}

func TestSingleReadyEndsTable(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	foldOutFirstHand(t, mgr, tbl, seats)
	ctx := context.Background()

	if _, err := mgr.MarkPlayerReady(ctx, tbl.ID, seats[1].UserID); err != nil {
		t.Fatalf("ready: %v", err)
	}

	// Deadline elapsed with one willing player: the table shuts down.
	if err := mgr.CompleteInterHandPhase(ctx, tbl.ID); err != nil {
		t.Fatalf("CompleteInterHandPhase: %v", err)
	}

	var dbTable model.Table
	if err := db.First(&dbTable, tbl.ID).Error; err != nil {
		t.Fatalf("load table: %v", err)
	}
	if dbTable.Status != model.TableStatusEnded {
		t.Fatalf("table status = %s, want ended", dbTable.Status)
	}

	var open int64
	db.Model(&model.Hand{}).
		Where("table_id = ? AND status <> ?", tbl.ID, model.HandStatusEnded).
		Count(&open)
	if open != 0 {
		t.Fatalf("open hands = %d, want 0", open)
	}
}

func TestReadyRejectedOutsideInterHandWait(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := mgr.MarkPlayerReady(ctx, tbl.ID, seats[0].UserID); !errors.Is(err, appErr.ErrNotInterHandWait) {
		t.Fatalf("err = %v, want ErrNotInterHandWait", err)
	}
}

func TestReadyWithShortStackRejected(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	foldOutFirstHand(t, mgr, tbl, seats)
	ctx := context.Background()

	if err := db.Model(&model.Seat{}).
		Where("id = ?", seats[0].ID).
		Update("chips", 5).Error; err != nil {
		t.Fatalf("shrink stack: %v", err)
	}

	// A fresh manager restores the inter-hand state from the store.
	fresh := newManagerOn(db)
	state, err := fresh.GetState(ctx, tbl.ID, seats[0].UserID)
	if err != nil {
		t.Fatalf("GetState on fresh manager: %v", err)
	}
	if state.HandStatus != model.HandStatusInterHandWait {
		t.Fatalf("restored hand status = %s, want inter_hand_wait", state.HandStatus)
	}

	_, err = fresh.MarkPlayerReady(ctx, tbl.ID, seats[0].UserID)
	if !errors.Is(err, appErr.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestRestoreMidHandAndResume(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	// Button completes the small blind; big blind gets the option.
	if _, err := mgr.HandleAction(ctx, tbl.ID, seats[0].UserID, table.ActionCall, 0); err != nil {
		t.Fatalf("call: %v", err)
	}

	fresh := newManagerOn(db)
	state, err := fresh.GetState(ctx, tbl.ID, seats[1].UserID)
	if err != nil {
		t.Fatalf("GetState on fresh manager: %v", err)
	}
	if state.HandNo != 1 || state.Street != "preflop" || state.Pot != 40 {
		t.Fatalf("restored state = no %d street %s pot %d", state.HandNo, state.Street, state.Pot)
	}
	if state.ActorUserID != seats[1].UserID {
		t.Fatalf("restored actor = %d, want %d", state.ActorUserID, seats[1].UserID)
	}

	// Viewer scoping survives restoration.
	for _, sv := range state.Seats {
		if sv.UserID == seats[1].UserID && len(sv.Hole) != 2 {
			t.Fatal("viewer must see own hole cards")
		}
		if sv.UserID == seats[0].UserID && len(sv.Hole) != 0 {
			t.Fatal("opponent hole cards must be hidden")
		}
	}

	// The restored engine keeps playing: checking the option deals the flop.
	after, err := fresh.HandleAction(ctx, tbl.ID, seats[1].UserID, table.ActionCheck, 0)
	if err != nil {
		t.Fatalf("check on restored engine: %v", err)
	}
	if after.Street != "flop" || len(after.Board) != 3 {
		t.Fatalf("after check: street %s board %v", after.Street, after.Board)
	}
	if activeHand(t, db, tbl.ID).Status != model.HandStatusFlop {
		t.Fatal("persisted hand status must follow the street")
	}
}

// Two workers share one database. Worker B caches the runtime mid-hand,
// worker A settles the hand; B's next access must reconcile with the store
// instead of failing against its stale cache forever.
func TestStaleRuntimeConvergesAfterRemoteSettle(t *testing.T) {
	db, mgrA := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgrA.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	// Worker B caches the runtime while the hand is live.
	mgrB := newManagerOn(db)
	if _, err := mgrB.GetState(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("GetState on worker B: %v", err)
	}

	// Worker A folds the hand out; the row is durably inter_hand_wait.
	if _, err := mgrA.HandleAction(ctx, tbl.ID, seats[0].UserID, table.ActionFold, 0); err != nil {
		t.Fatalf("fold on worker A: %v", err)
	}

	if _, err := mgrB.MarkPlayerReady(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("ready on lagging worker B: %v", err)
	}
	allReady, err := mgrB.MarkPlayerReady(ctx, tbl.ID, seats[1].UserID)
	if err != nil {
		t.Fatalf("second ready on worker B: %v", err)
	}
	if !allReady {
		t.Fatal("both votes cast, expected allReady")
	}
	if err := mgrB.CompleteInterHandPhase(ctx, tbl.ID); err != nil {
		t.Fatalf("CompleteInterHandPhase on worker B: %v", err)
	}

	hand := activeHand(t, db, tbl.ID)
	if hand.HandNo != 2 || hand.Status != model.HandStatusPreflop {
		t.Fatalf("hand = no %d status %s, want 2/preflop", hand.HandNo, hand.Status)
	}
}

// A mid-street action by another worker changes the persisted snapshot
// without changing the hand status; the lagging worker must pick it up and
// accept the next in-turn action.
func TestStaleRuntimeSeesRemoteAction(t *testing.T) {
	db, mgrA := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgrA.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	mgrB := newManagerOn(db)
	if _, err := mgrB.GetState(ctx, tbl.ID, seats[1].UserID); err != nil {
		t.Fatalf("GetState on worker B: %v", err)
	}

	// Button completes the small blind through worker A; the big blind's
	// option is now pending, but only the row knows.
	if _, err := mgrA.HandleAction(ctx, tbl.ID, seats[0].UserID, table.ActionCall, 0); err != nil {
		t.Fatalf("call on worker A: %v", err)
	}

	after, err := mgrB.HandleAction(ctx, tbl.ID, seats[1].UserID, table.ActionCheck, 0)
	if err != nil {
		t.Fatalf("check on lagging worker B: %v", err)
	}
	if after.Street != "flop" || len(after.Board) != 3 {
		t.Fatalf("after check: street %s board %v", after.Street, after.Board)
	}
	if activeHand(t, db, tbl.ID).Status != model.HandStatusFlop {
		t.Fatal("persisted hand status must follow the street")
	}
}

func TestActionOutOfTurnRejected(t *testing.T) {
	db, mgr := newManager(t)
	tbl, seats := seedTable(t, db, 1000, 1000)
	ctx := context.Background()

	if _, err := mgr.StartGame(ctx, tbl.ID, seats[0].UserID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	_, err := mgr.HandleAction(ctx, tbl.ID, seats[1].UserID, table.ActionCall, 0)
	if !errors.Is(err, appErr.ErrIllegalAction) {
		t.Fatalf("err = %v, want ErrIllegalAction", err)
	}

	hand := activeHand(t, db, tbl.ID)
	if hand.PotSize != 30 {
		t.Fatalf("pot = %d, rejected action must not change state", hand.PotSize)
	}
}
