package table

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"holdem-service/internal/holdem"
	"holdem-service/internal/model"
	"holdem-service/internal/service/lifecycle"
	"holdem-service/internal/service/rake"
	"holdem-service/internal/service/wallet"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the runtime manager: one instance per process, holding the
// per-table runtimes and the per-table locks that serialize all game
// operations. The database row lock on the active hand is the cross-process
// arbiter; the in-process lock only orders local callers.
type Service struct {
	db        *gorm.DB
	rdb       *redis.Client
	wallet    *wallet.Service
	rake      *rake.Service
	lifecycle *lifecycle.Service
	cfg       Config

	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	runtimes map[int64]*TableRuntime
}

func NewService(db *gorm.DB, rdb *redis.Client, walletSvc *wallet.Service, rakeSvc *rake.Service, lifecycleSvc *lifecycle.Service, cfg Config) *Service {
	return &Service{
		db:        db,
		rdb:       rdb,
		wallet:    walletSvc,
		rake:      rakeSvc,
		lifecycle: lifecycleSvc,
		cfg:       cfg.withDefaults(),
		locks:     make(map[int64]*sync.Mutex),
		runtimes:  make(map[int64]*TableRuntime),
	}
}

func (s *Service) tableLock(tableID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[tableID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tableID] = l
	}
	return l
}

func (s *Service) cachedRuntime(tableID int64) (*TableRuntime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[tableID]
	return rt, ok
}

// EnsureTable loads or restores the runtime for a table. Idempotent: a
// second call for the same table returns the cached runtime. When an active
// hand exists its engine is rebuilt from the persisted snapshot.
func (s *Service) EnsureTable(ctx context.Context, tableID int64) (*TableRuntime, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()
	return s.ensureLocked(ctx, tableID)
}

func (s *Service) ensureLocked(ctx context.Context, tableID int64) (*TableRuntime, error) {
	rt, cached := s.cachedRuntime(tableID)
	if !cached {
		rt = newTableRuntime(model.Table{ID: tableID}, nil)
	}
	if err := s.refreshLocked(ctx, rt); err != nil {
		return nil, err
	}
	if !cached {
		s.mu.Lock()
		s.runtimes[tableID] = rt
		s.mu.Unlock()
	}
	return rt, nil
}

// refreshLocked reconciles a runtime with the store. The cache is a lagging
// optimization: another worker may have advanced or settled the hand since
// the last access, so Table, Seats and the open Hand row are re-read every
// time and a diverged engine is rebuilt from the persisted snapshot.
func (s *Service) refreshLocked(ctx context.Context, rt *TableRuntime) error {
	var table model.Table
	if err := s.db.WithContext(ctx).First(&table, rt.table.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.ErrTableNotFound
		}
		return err
	}
	rt.table = table
	if table.Status == model.TableStatusEnded || table.Status == model.TableStatusExpired {
		return appErr.ErrTableEnded
	}

	seats, err := s.loadSeats(ctx, table.ID)
	if err != nil {
		return err
	}
	rt.seats = seats

	var hand model.Hand
	err = s.db.WithContext(ctx).
		Where("table_id = ? AND status <> ?", table.ID, model.HandStatusEnded).
		Order("hand_no DESC").
		First(&hand).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Another worker may have closed the cached hand without a successor.
		if rt.hand.ID != 0 {
			rt.hand = model.Hand{}
			rt.clearHand()
		}
		return nil
	case err != nil:
		return err
	}

	// The persisted snapshot is written after every committed action, so
	// byte equality means the in-memory engine is current.
	if rt.eng != nil && hand.ID == rt.hand.ID && bytes.Equal(hand.SnapshotJSON, rt.hand.SnapshotJSON) {
		rt.hand = hand
		return nil
	}

	if restoreErr := s.restoreHand(rt, hand); restoreErr != nil {
		// Keep the runtime so StartGame can close the stuck hand and deal a
		// fresh one; reads surface the restoration failure.
		logger.Log.Warn("hand snapshot restore failed",
			zap.Int64("tableID", table.ID),
			zap.Int64("handID", hand.ID),
			zap.Error(restoreErr),
		)
		rt.clearHand()
		rt.hand = hand
	}
	return nil
}

func (s *Service) loadSeats(ctx context.Context, tableID int64) ([]model.Seat, error) {
	var seats []model.Seat
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND left_at IS NULL", tableID).
		Order("position ASC").
		Find(&seats).Error
	return seats, err
}

// restoreHand rebuilds the engine and canonical player order from a
// persisted hand row. Restore is the exact inverse of the snapshot written
// after every action.
func (s *Service) restoreHand(rt *TableRuntime, hand model.Hand) error {
	var snap holdem.Snapshot
	if err := json.Unmarshal(hand.SnapshotJSON, &snap); err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrSnapshotRestore, err)
	}

	var order []int64
	if len(hand.PlayerOrderJSON) > 0 {
		if err := json.Unmarshal(hand.PlayerOrderJSON, &order); err != nil {
			return fmt.Errorf("%w: player order: %v", appErr.ErrSnapshotRestore, err)
		}
	}
	if len(order) == 0 {
		// Rows written before player order was persisted: fall back to the
		// current seat order.
		logger.Log.Warn("hand has no persisted player order, deriving from seats",
			zap.Int64("handID", hand.ID),
		)
		for _, seat := range rt.seats {
			order = append(order, seat.UserID)
		}
		if len(order) > len(snap.Players) {
			order = order[:len(snap.Players)]
		}
	}
	if len(order) != len(snap.Players) {
		return fmt.Errorf("%w: order has %d players, snapshot has %d",
			appErr.ErrSnapshotRestore, len(order), len(snap.Players))
	}

	eng, err := holdem.Restore(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrSnapshotRestore, err)
	}
	rt.setHand(hand, eng, order)
	return nil
}

// stuck reports a hand that exists in the store but whose engine could not
// be restored.
func (rt *TableRuntime) stuck() bool {
	return rt.eng == nil && rt.hand.ID != 0 && rt.hand.Status != model.HandStatusEnded
}

// StartGame deals the first hand of a table. The caller must be seated and
// at least two funded, willing players are required. A hand whose snapshot
// could not be restored is closed first.
func (s *Service) StartGame(ctx context.Context, tableID, userID int64) (*TableState, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if rt.seatByUser(userID) == nil {
		return nil, appErr.ErrNotSeated
	}

	if rt.stuck() {
		logger.Log.Warn("closing unrestorable hand before starting a new one",
			zap.Int64("tableID", tableID),
			zap.Int64("handID", rt.hand.ID),
		)
		now := time.Now()
		err := s.db.WithContext(ctx).Model(&model.Hand{}).
			Where("id = ?", rt.hand.ID).
			Updates(map[string]interface{}{
				"status":   model.HandStatusEnded,
				"ended_at": now,
			}).Error
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
		}
		rt.hand = model.Hand{}
		rt.clearHand()
	} else if rt.hand.ID != 0 && rt.hand.Status != model.HandStatusEnded {
		return nil, appErr.ErrHandInProgress
	}

	if err := s.startHandLocked(ctx, rt, nil); err != nil {
		return nil, err
	}
	rt.broadcastState()
	state := rt.exportState(userID)
	return &state, nil
}

// startHandLocked deals the next hand: participants are the active seats
// that are willing (not sitting out) and can cover the big blind plus ante.
// When prior is set the inter-hand hand row is closed in the same
// transaction that creates the new one.
func (s *Service) startHandLocked(ctx context.Context, rt *TableRuntime, prior *model.Hand) error {
	now := time.Now()

	seats, err := s.loadSeats(ctx, rt.table.ID)
	if err != nil {
		return err
	}
	rt.seats = seats

	participants := make([]model.Seat, 0, len(seats))
	for _, seat := range seats {
		if seat.IsSittingOutNextHand {
			continue
		}
		if ok, _ := s.lifecycle.CheckBalanceRequirement(seat, rt.table.BigBlind, rt.table.Ante); !ok {
			continue
		}
		participants = append(participants, seat)
	}
	if len(participants) < 2 {
		return fmt.Errorf("%w: %d willing players", appErr.ErrNotEnoughPlayers, len(participants))
	}

	var maxHandNo int64
	err = s.db.WithContext(ctx).Model(&model.Hand{}).
		Where("table_id = ?", rt.table.ID).
		Select("COALESCE(MAX(hand_no), 0)").
		Scan(&maxHandNo).Error
	if err != nil {
		return err
	}
	handNo := maxHandNo + 1

	n := len(participants)
	button := int((handNo - 1) % int64(n))
	stacks := make([]int64, n)
	order := make([]int64, n)
	for i, seat := range participants {
		stacks[i] = seat.Chips
		order[i] = seat.UserID
	}

	eng, err := holdem.New(holdem.Config{
		Stacks:     stacks,
		SmallBlind: rt.table.SmallBlind,
		BigBlind:   rt.table.BigBlind,
		Ante:       rt.table.Ante,
		Button:     button,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return err
	}

	hand := model.Hand{
		TableID:         rt.table.ID,
		HandNo:          handNo,
		Status:          model.HandStatusPreflop,
		SnapshotJSON:    mustJSON(eng.Serialize()),
		PlayerOrderJSON: mustJSON(order),
		PotSize:         eng.Pot(),
		CreatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prior != nil {
			var old model.Hand
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&old, prior.ID).Error; err != nil {
				return err
			}
			if old.Status != model.HandStatusInterHandWait {
				return appErr.ErrNotInterHandWait
			}
			if err := tx.Model(&model.Hand{}).Where("id = ?", old.ID).Updates(map[string]interface{}{
				"status":   model.HandStatusEnded,
				"ended_at": now,
			}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&hand).Error; err != nil {
			return err
		}
		return tx.Model(&model.Table{}).Where("id = ?", rt.table.ID).Updates(map[string]interface{}{
			"status":         model.TableStatusActive,
			"last_action_at": now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, appErr.ErrNotInterHandWait) {
			return err
		}
		return fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	rt.table.Status = model.TableStatusActive
	rt.table.LastActionAt = &now
	rt.setHand(hand, eng, order)

	logger.Log.Info("hand started",
		zap.Int64("tableID", rt.table.ID),
		zap.Int64("handNo", handNo),
		zap.Int("players", n),
		zap.Int("button", button),
	)
	return nil
}

// HandleAction applies one player action to the active hand: fold, check,
// call, raise, or the ready pseudo-action between hands. The engine is
// mutated only after validation; on persistence failure it is rolled back
// to the pre-action snapshot so memory never runs ahead of the store.
func (s *Service) HandleAction(ctx context.Context, tableID, userID int64, action string, amount int64) (*TableState, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}

	if action == ActionReady {
		allReady, err := s.markReadyLocked(ctx, rt, userID)
		if err != nil {
			return nil, err
		}
		if allReady {
			if err := s.completeInterHandLocked(ctx, rt); err != nil {
				return nil, err
			}
		}
		state := rt.exportState(userID)
		return &state, nil
	}

	if rt.stuck() {
		return nil, fmt.Errorf("%w: hand %d", appErr.ErrSnapshotRestore, rt.hand.ID)
	}
	if rt.eng == nil {
		return nil, appErr.ErrNoActiveHand
	}
	if rt.hand.Status == model.HandStatusInterHandWait {
		return nil, fmt.Errorf("%w: only %q is accepted between hands", appErr.ErrIllegalAction, ActionReady)
	}

	idx, seated := rt.indexByUser[userID]
	if !seated {
		return nil, appErr.ErrNotSeated
	}

	pre := rt.eng.Serialize()

	switch action {
	case ActionFold:
		err = rt.eng.Fold(idx)
	case ActionCheck, ActionCall:
		err = rt.eng.CheckCall(idx)
	case ActionRaise:
		err = rt.eng.BetRaiseTo(idx, amount)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", appErr.ErrIllegalAction, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrIllegalAction, err)
	}

	// Closed betting rounds advance immediately; this loop also runs out
	// the board when everyone is all-in.
	for rt.eng.PendingActor() < 0 && !rt.eng.Complete() {
		if err := rt.eng.DealNextStreet(); err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrIllegalAction, err)
		}
	}

	if rt.eng.Complete() {
		if err := s.settleHandLocked(ctx, rt, pre); err != nil {
			return nil, err
		}
	} else {
		if err := s.persistActionLocked(ctx, rt); err != nil {
			s.rollbackEngine(rt, pre)
			return nil, err
		}
	}

	rt.broadcastState()
	state := rt.exportState(userID)
	return &state, nil
}

func (s *Service) rollbackEngine(rt *TableRuntime, pre holdem.Snapshot) {
	eng, err := holdem.Restore(pre)
	if err != nil {
		logger.Log.Error("engine rollback failed",
			zap.Int64("tableID", rt.table.ID),
			zap.Int64("handID", rt.hand.ID),
			zap.Error(err),
		)
		return
	}
	rt.eng = eng
}

// persistActionLocked writes the post-action snapshot into the active hand
// row under a row lock. A hand another process already ended fails the
// write, which is how concurrent settlement is arbitrated.
func (s *Service) persistActionLocked(ctx context.Context, rt *TableRuntime) error {
	now := time.Now()
	snap := rt.eng.Serialize()
	status := handStatusFor(rt.eng.Street())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hand model.Hand
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&hand, rt.hand.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ErrHandNotFound
			}
			return err
		}
		if hand.Status == model.HandStatusEnded || hand.Status == model.HandStatusInterHandWait {
			return appErr.ErrNoActiveHand
		}
		if err := tx.Model(&model.Hand{}).Where("id = ?", hand.ID).Updates(map[string]interface{}{
			"snapshot_json": mustJSON(snap),
			"status":        status,
			"pot_size":      rt.eng.Pot(),
			"updated_at":    now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Table{}).Where("id = ?", rt.table.ID).
			Update("last_action_at", now).Error
	})
	if err != nil {
		if errors.Is(err, appErr.ErrHandNotFound) || errors.Is(err, appErr.ErrNoActiveHand) {
			return err
		}
		return fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	rt.hand.Status = status
	rt.hand.SnapshotJSON = mustJSON(snap)
	rt.table.LastActionAt = &now
	return nil
}

// settleHandLocked runs the completion path of a finished hand: rake, final
// snapshot, wallet deltas, forced sit-out, and the unified hand-ended
// broadcast. The hand moves to inter-hand wait; it is marked ended when the
// next hand starts or the table shuts down.
func (s *Service) settleHandLocked(ctx context.Context, rt *TableRuntime, pre holdem.Snapshot) error {
	now := time.Now()
	snap := rt.eng.Serialize()
	pot := rt.eng.Pot()

	rateBP, rakeCap := s.rake.ResolveForTable(ctx, rt.table)
	rakeAmt := rake.Compute(pot, rateBP, rakeCap)

	winners := rt.eng.Winners()
	amounts := make([]int64, len(winners))
	for i, w := range winners {
		amounts[i] = w.Amount
	}
	cuts := rake.Distribute(amounts, rakeAmt)

	cutByIdx := make(map[int]int64, len(winners))
	wonByIdx := make(map[int]bool, len(winners))
	winnerViews := make([]WinnerView, len(winners))
	for i, w := range winners {
		cutByIdx[w.Player] += cuts[i]
		wonByIdx[w.Player] = true
		winnerViews[i] = WinnerView{
			UserID: rt.playerOrder[w.Player],
			Amount: w.Amount - cuts[i],
			Rank:   w.Rank,
			Best:   cardStrings(w.Best),
		}
	}

	results := make([]wallet.PlayerHandResult, 0, len(rt.playerOrder))
	for i, uid := range rt.playerOrder {
		seat := rt.seatByUser(uid)
		if seat == nil {
			s.rollbackEngine(rt, pre)
			return fmt.Errorf("%w: no seat for user %d", appErr.ErrSettlementValidation, uid)
		}
		ending := snap.Players[i].Stack - cutByIdx[i]
		results = append(results, wallet.PlayerHandResult{
			UserID:      uid,
			SeatID:      seat.ID,
			EndingChips: ending,
			Delta:       ending - seat.Chips,
			Rake:        cutByIdx[i],
			Won:         wonByIdx[i],
		})
	}

	deadline := now.Add(s.cfg.InterHandWait)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hand model.Hand
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&hand, rt.hand.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ErrHandNotFound
			}
			return err
		}
		if hand.Status == model.HandStatusEnded || hand.Status == model.HandStatusInterHandWait {
			return appErr.ErrNoActiveHand
		}

		if err := tx.Model(&model.Hand{}).Where("id = ?", hand.ID).Updates(map[string]interface{}{
			"snapshot_json": mustJSON(snap),
			"status":        model.HandStatusInterHandWait,
			"pot_size":      pot,
			"rake_amount":   rakeAmt,
			"result_json":   mustJSON(winnerViews),
			"timeout_at":    deadline,
			"updated_at":    now,
		}).Error; err != nil {
			return err
		}

		if err := s.wallet.ApplyHandResult(tx, rt.table, rt.hand, results, now); err != nil {
			return err
		}
		if err := s.wallet.RecordRake(tx, rakeAmt, rt.hand.ID, rt.table.ID, now); err != nil {
			return err
		}

		// Everyone sits out until they vote ready for the next hand.
		if err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND left_at IS NULL", rt.table.ID).
			Update("is_sitting_out_next_hand", true).Error; err != nil {
			return err
		}

		return tx.Model(&model.Table{}).Where("id = ?", rt.table.ID).
			Update("last_action_at", now).Error
	})
	if err != nil {
		s.rollbackEngine(rt, pre)
		if errors.Is(err, appErr.ErrHandNotFound) || errors.Is(err, appErr.ErrNoActiveHand) || errors.Is(err, appErr.ErrSettlementValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	rt.hand.Status = model.HandStatusInterHandWait
	rt.hand.SnapshotJSON = mustJSON(snap)
	rt.hand.PotSize = pot
	rt.hand.RakeAmount = rakeAmt
	rt.hand.TimeoutAt = &deadline
	rt.table.LastActionAt = &now
	rt.ready = make(map[int64]bool)

	seats, err := s.loadSeats(ctx, rt.table.ID)
	if err == nil {
		rt.seats = seats
	}

	if shouldEnd, reason := s.lifecycle.ComputeInactivity(rt.table, rt.seats, now); shouldEnd {
		logger.Log.Info("table flagged for shutdown",
			zap.Int64("tableID", rt.table.ID),
			zap.String("reason", reason),
		)
	}

	logger.Log.Info("hand settled",
		zap.Int64("tableID", rt.table.ID),
		zap.Int64("handNo", rt.hand.HandNo),
		zap.Int64("pot", pot),
		zap.Int64("rake", rakeAmt),
	)

	s.publishHandEnded(ctx, rt, HandEndedPayload{
		TableID:               rt.table.ID,
		HandID:                rt.hand.ID,
		HandNo:                rt.hand.HandNo,
		Pot:                   pot,
		Rake:                  rakeAmt,
		Winners:               winnerViews,
		InterHandWaitDeadline: deadline.UTC().Format(time.RFC3339),
		ReadyAction:           ActionReady,
	})
	return nil
}

// MarkPlayerReady records a vote for the next hand. Voting requires enough
// chips to cover the big blind plus ante; a short stack gets an explicit
// error, never a silent skip. Returns whether every eligible player has now
// voted.
func (s *Service) MarkPlayerReady(ctx context.Context, tableID, userID int64) (bool, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return false, err
	}
	return s.markReadyLocked(ctx, rt, userID)
}

func (s *Service) markReadyLocked(ctx context.Context, rt *TableRuntime, userID int64) (bool, error) {
	if rt.hand.Status != model.HandStatusInterHandWait {
		return false, appErr.ErrNotInterHandWait
	}
	seat := rt.seatByUser(userID)
	if seat == nil {
		return false, appErr.ErrNotSeated
	}

	ok, required := s.lifecycle.CheckBalanceRequirement(*seat, rt.table.BigBlind, rt.table.Ante)
	if !ok {
		return false, fmt.Errorf("%w: next hand requires %d chips, have %d",
			appErr.ErrInsufficientBalance, required, seat.Chips)
	}

	if !rt.ready[userID] {
		err := s.db.WithContext(ctx).Model(&model.Seat{}).
			Where("id = ?", seat.ID).
			Update("is_sitting_out_next_hand", false).Error
		if err != nil {
			return false, fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
		}
		seat.IsSittingOutNextHand = false
		rt.ready[userID] = true
	}

	// Votes are counted from the durable flag so a vote cast through another
	// worker is visible here after the seat refresh.
	eligible := 0
	allReady := true
	for _, st := range rt.seats {
		if st.LeftAt != nil {
			continue
		}
		if ok, _ := s.lifecycle.CheckBalanceRequirement(st, rt.table.BigBlind, rt.table.Ante); !ok {
			continue
		}
		eligible++
		if st.IsSittingOutNextHand {
			allReady = false
		}
	}

	rt.broadcastState()
	return eligible > 0 && allReady, nil
}

// CompleteInterHandPhase closes the inter-hand window: with two or more
// willing, funded players a new hand is dealt; with fewer the table ends.
// Callers invoke it when everyone is ready or the deadline has elapsed;
// players who never voted stay sitting out.
func (s *Service) CompleteInterHandPhase(ctx context.Context, tableID int64) error {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return err
	}
	return s.completeInterHandLocked(ctx, rt)
}

func (s *Service) completeInterHandLocked(ctx context.Context, rt *TableRuntime) error {
	if rt.hand.Status != model.HandStatusInterHandWait {
		return appErr.ErrNotInterHandWait
	}

	seats, err := s.loadSeats(ctx, rt.table.ID)
	if err != nil {
		return err
	}
	rt.seats = seats

	willing := 0
	for _, seat := range seats {
		if seat.IsSittingOutNextHand {
			continue
		}
		if ok, _ := s.lifecycle.CheckBalanceRequirement(seat, rt.table.BigBlind, rt.table.Ante); !ok {
			continue
		}
		willing++
	}

	if willing < 2 {
		return s.endTableLocked(ctx, rt, fmt.Sprintf("%d willing players after inter-hand wait", willing))
	}

	prior := rt.hand
	if err := s.startHandLocked(ctx, rt, &prior); err != nil {
		return err
	}
	rt.broadcastState()
	return nil
}

func (s *Service) endTableLocked(ctx context.Context, rt *TableRuntime, reason string) error {
	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rt.hand.ID != 0 {
			var hand model.Hand
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&hand, rt.hand.ID).Error; err != nil {
				return err
			}
			if hand.Status != model.HandStatusEnded {
				if err := tx.Model(&model.Hand{}).Where("id = ?", hand.ID).Updates(map[string]interface{}{
					"status":   model.HandStatusEnded,
					"ended_at": now,
				}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Model(&model.Table{}).Where("id = ?", rt.table.ID).
			Update("status", model.TableStatusEnded).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	rt.table.Status = model.TableStatusEnded
	rt.hand.Status = model.HandStatusEnded
	rt.clearHand()

	logger.Log.Info("table ended",
		zap.Int64("tableID", rt.table.ID),
		zap.String("reason", reason),
	)
	rt.broadcastEvent(OutgoingMessage{Type: "table_ended", Seq: rt.nextSeq(), Data: map[string]interface{}{
		"tableId": rt.table.ID,
		"reason":  reason,
	}})
	rt.broadcastState()
	return nil
}

// ValidateAccess reports whether a user may attach to a table's stream.
// Only seated players may watch: hole cards are dealt to the socket.
func (s *Service) ValidateAccess(ctx context.Context, tableID, userID int64) error {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return err
	}
	if rt.seatByUser(userID) == nil {
		return appErr.ErrTableAccessDenied
	}
	return nil
}

// GetState returns the viewer-scoped state of a table.
func (s *Service) GetState(ctx context.Context, tableID, viewerID int64) (*TableState, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if rt.stuck() {
		return nil, fmt.Errorf("%w: hand %d", appErr.ErrSnapshotRestore, rt.hand.ID)
	}
	state := rt.exportState(viewerID)
	return &state, nil
}

func handStatusFor(street holdem.Street) string {
	switch street {
	case holdem.StreetFlop:
		return model.HandStatusFlop
	case holdem.StreetTurn:
		return model.HandStatusTurn
	case holdem.StreetRiver, holdem.StreetShowdown:
		return model.HandStatusRiver
	default:
		return model.HandStatusPreflop
	}
}

func mustJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("{}")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
