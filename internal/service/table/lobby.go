package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"holdem-service/internal/model"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lobby operations: table administration and seating. Chips enter a table
// through a wallet buy-in and leave it through a cash-out; a settled hand
// only moves chips between seats.

type AdminCreateParams struct {
	SmallBlind int64
	BigBlind   int64
	Ante       int64
	StackSize  int64
	MaxPlayers int
	RakeRuleID int64
	ExpiresAt  *time.Time
}

type ListResult struct {
	Items []model.Table
	Total int64
}

func (s *Service) AdminCreateTable(ctx context.Context, params AdminCreateParams) (*model.Table, error) {
	if params.SmallBlind <= 0 || params.BigBlind < params.SmallBlind || params.Ante < 0 {
		return nil, fmt.Errorf("%w: blinds sb=%d bb=%d ante=%d",
			appErr.ErrIllegalAction, params.SmallBlind, params.BigBlind, params.Ante)
	}
	if params.MaxPlayers < 2 || params.MaxPlayers > 9 {
		return nil, fmt.Errorf("%w: maxPlayers %d", appErr.ErrIllegalAction, params.MaxPlayers)
	}

	tbl := model.Table{
		Status:     model.TableStatusWaiting,
		SmallBlind: params.SmallBlind,
		BigBlind:   params.BigBlind,
		Ante:       params.Ante,
		StackSize:  params.StackSize,
		MaxPlayers: params.MaxPlayers,
		RakeRuleID: params.RakeRuleID,
		ExpiresAt:  params.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&tbl).Error; err != nil {
		return nil, err
	}

	logger.Log.Info("table created",
		zap.Int64("tableID", tbl.ID),
		zap.Int64("smallBlind", tbl.SmallBlind),
		zap.Int64("bigBlind", tbl.BigBlind),
	)
	return &tbl, nil
}

func (s *Service) AdminListTables(ctx context.Context, page, size int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Table{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var items []model.Table
	if total > 0 {
		offset := (page - 1) * size
		if err := s.db.WithContext(ctx).
			Model(&model.Table{}).
			Order("id DESC").
			Limit(size).
			Offset(offset).
			Find(&items).Error; err != nil {
			return nil, err
		}
	}
	return &ListResult{Items: items, Total: total}, nil
}

// JoinTable seats a user, moving the buy-in from wallet balance to seat
// chips. Joining is only allowed between hands so a new stack never appears
// mid-hand.
func (s *Service) JoinTable(ctx context.Context, tableID, userID, buyIn int64) (*model.Seat, error) {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if rt.eng != nil && rt.hand.Status != model.HandStatusInterHandWait {
		return nil, appErr.ErrHandInProgress
	}
	if buyIn <= 0 {
		return nil, appErr.ErrInvalidBuyIn
	}
	if rt.seatByUser(userID) != nil {
		return nil, appErr.ErrAlreadySeated
	}

	now := time.Now()
	seat := model.Seat{
		TableID:              tableID,
		UserID:               userID,
		Chips:                buyIn,
		IsSittingOutNextHand: rt.eng != nil, // joins mid-session wait for the next vote
		CreatedAt:            now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var occupied int64
		if err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND left_at IS NULL", tableID).
			Count(&occupied).Error; err != nil {
			return err
		}
		if int(occupied) >= rt.table.MaxPlayers {
			return appErr.ErrTableFull
		}

		var wallet model.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErr.ErrInsufficientBalance
			}
			return err
		}
		if wallet.BalanceAvailable < buyIn {
			return appErr.ErrInsufficientBalance
		}
		wallet.BalanceAvailable -= buyIn
		wallet.BalanceTotal = wallet.BalanceAvailable + wallet.BalanceFrozen
		wallet.UpdatedAt = now
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}

		var maxPos int
		if err := tx.Model(&model.Seat{}).
			Where("table_id = ? AND left_at IS NULL", tableID).
			Select("COALESCE(MAX(position), -1)").
			Scan(&maxPos).Error; err != nil {
			return err
		}
		seat.Position = maxPos + 1

		if err := tx.Create(&seat).Error; err != nil {
			return err
		}
		return tx.Create(&model.BillingLog{
			UserID:       userID,
			Type:         "buy_in",
			Delta:        -buyIn,
			BalanceAfter: wallet.BalanceAvailable,
			TableID:      &tableID,
			MetaJSON:     mustJSON(map[string]interface{}{"seatId": seat.ID}),
			CreatedAt:    now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, appErr.ErrTableFull) || errors.Is(err, appErr.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	seats, loadErr := s.loadSeats(ctx, tableID)
	if loadErr == nil {
		rt.seats = seats
	}
	rt.broadcastState()

	logger.Log.Info("user joined table",
		zap.Int64("tableID", tableID),
		zap.Int64("userID", userID),
		zap.Int64("buyIn", buyIn),
	)
	return &seat, nil
}

// LeaveTable cashes a seat out, returning its chips to the wallet. Leaving
// mid-hand is rejected; fold first.
func (s *Service) LeaveTable(ctx context.Context, tableID, userID int64) error {
	l := s.tableLock(tableID)
	l.Lock()
	defer l.Unlock()

	rt, err := s.ensureLocked(ctx, tableID)
	if err != nil {
		return err
	}
	seat := rt.seatByUser(userID)
	if seat == nil {
		return appErr.ErrNotSeated
	}
	if _, inHand := rt.indexByUser[userID]; inHand && rt.eng != nil && rt.hand.Status != model.HandStatusInterHandWait {
		return appErr.ErrHandInProgress
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.Seat
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, seat.ID).Error; err != nil {
			return err
		}
		if row.LeftAt != nil {
			return appErr.ErrNotSeated
		}

		if err := tx.Model(&model.Seat{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"left_at":    now,
			"chips":      0,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}

		var wallet model.Wallet
		exists := true
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&wallet).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			exists = false
			wallet = model.Wallet{UserID: userID}
		}
		wallet.BalanceAvailable += row.Chips
		wallet.BalanceTotal = wallet.BalanceAvailable + wallet.BalanceFrozen
		wallet.UpdatedAt = now
		if exists {
			if err := tx.Save(&wallet).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&wallet).Error; err != nil {
			return err
		}

		return tx.Create(&model.BillingLog{
			UserID:       userID,
			Type:         "cash_out",
			Delta:        row.Chips,
			BalanceAfter: wallet.BalanceAvailable,
			TableID:      &tableID,
			MetaJSON:     mustJSON(map[string]interface{}{"seatId": row.ID}),
			CreatedAt:    now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, appErr.ErrNotSeated) {
			return err
		}
		return fmt.Errorf("%w: %v", appErr.ErrPersistFailed, err)
	}

	seats, loadErr := s.loadSeats(ctx, tableID)
	if loadErr == nil {
		rt.seats = seats
	}
	rt.broadcastState()

	logger.Log.Info("user left table",
		zap.Int64("tableID", tableID),
		zap.Int64("userID", userID),
	)
	return nil
}
