package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"holdem-service/internal/model"
	appErr "holdem-service/pkg/errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

// PlayerHandResult is one player's outcome for a completed hand. Delta is
// the net chip movement after rake; Rake is the player's share of the house
// cut (zero for losers).
type PlayerHandResult struct {
	UserID      int64
	SeatID      int64
	EndingChips int64
	Delta       int64
	Rake        int64
	Won         bool
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &model.Wallet{UserID: userID}, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// ApplyHandResult applies all post-hand chip deltas: seat stacks, wallet
// aggregates, and billing entries. The runtime never writes chips itself.
// Runs inside the caller's transaction so it commits or rolls back with the
// hand snapshot.
func (s *Service) ApplyHandResult(tx *gorm.DB, table model.Table, hand model.Hand, results []PlayerHandResult, now time.Time) error {
	if hand.ID == 0 || len(results) == 0 {
		return appErr.ErrSettlementValidation
	}

	wallets := newWalletBook(tx)
	billingLogs := make([]model.BillingLog, 0, len(results)*2)

	for _, res := range results {
		if res.UserID == 0 {
			return appErr.ErrSettlementValidation
		}

		if err := tx.Model(&model.Seat{}).
			Where("id = ?", res.SeatID).
			Updates(map[string]interface{}{
				"chips":      res.EndingChips,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		wallet, err := wallets.Ensure(res.UserID)
		if err != nil {
			return err
		}
		wallet.HandsPlayed++

		meta := map[string]interface{}{
			"handId":  hand.ID,
			"handNo":  hand.HandNo,
			"tableId": table.ID,
		}

		logType := "lose"
		if res.Won {
			logType = "win"
			wallet.TotalWin += res.Delta
		} else if res.Delta < 0 {
			wallet.TotalConsume += -res.Delta
		}
		if res.Delta != 0 {
			billingLogs = append(billingLogs, model.BillingLog{
				UserID:       res.UserID,
				Type:         logType,
				Delta:        res.Delta,
				BalanceAfter: res.EndingChips,
				HandID:       &hand.ID,
				TableID:      &table.ID,
				MetaJSON:     mustJSON(meta),
				CreatedAt:    now,
			})
		}
		if res.Rake > 0 {
			wallet.TotalRake += res.Rake
			billingLogs = append(billingLogs, model.BillingLog{
				UserID:       res.UserID,
				Type:         "rake",
				Delta:        -res.Rake,
				BalanceAfter: res.EndingChips,
				HandID:       &hand.ID,
				TableID:      &table.ID,
				MetaJSON:     mustJSON(meta),
				CreatedAt:    now,
			})
		}
	}

	if err := wallets.SaveAll(now); err != nil {
		return err
	}

	if len(billingLogs) > 0 {
		if err := tx.Create(&billingLogs).Error; err != nil {
			return err
		}
	}
	return nil
}

// RecordRake books the house cut of one hand as platform income.
func (s *Service) RecordRake(tx *gorm.DB, amount, handID, tableID int64, now time.Time) error {
	if amount <= 0 {
		return nil
	}
	meta := map[string]interface{}{
		"handId":  handID,
		"tableId": tableID,
	}
	return tx.Create(&model.BillingLog{
		UserID:       0,
		Type:         "platform_income",
		Delta:        amount,
		BalanceAfter: 0,
		HandID:       &handID,
		TableID:      &tableID,
		MetaJSON:     mustJSON(meta),
		CreatedAt:    now,
	}).Error
}

type AdminSetWalletRequest struct {
	BalanceAvailable *int64
	BalanceFrozen    *int64
}

func (s *Service) AdminSetWallet(ctx context.Context, userID int64, req AdminSetWalletRequest) (*model.Wallet, error) {
	if req.BalanceAvailable == nil && req.BalanceFrozen == nil {
		return nil, fmt.Errorf("%w: balanceAvailable or balanceFrozen is required", appErr.ErrInvalidWalletPayload)
	}

	var wallet model.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).FirstOrCreate(&wallet, model.Wallet{UserID: userID}).Error; err != nil {
		return nil, err
	}

	if req.BalanceAvailable != nil {
		if *req.BalanceAvailable < 0 {
			return nil, fmt.Errorf("%w: balanceAvailable must be >= 0", appErr.ErrInvalidWalletPayload)
		}
		wallet.BalanceAvailable = *req.BalanceAvailable
	}
	if req.BalanceFrozen != nil {
		if *req.BalanceFrozen < 0 {
			return nil, fmt.Errorf("%w: balanceFrozen must be >= 0", appErr.ErrInvalidWalletPayload)
		}
		wallet.BalanceFrozen = *req.BalanceFrozen
	}
	wallet.BalanceTotal = wallet.BalanceAvailable + wallet.BalanceFrozen
	wallet.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
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

// walletBook caches row-locked wallets inside one transaction so a wallet is
// loaded and saved at most once per settlement.
type walletBook struct {
	tx      *gorm.DB
	entries map[int64]*walletEntry
}

type walletEntry struct {
	wallet *model.Wallet
	exists bool
	dirty  bool
}

func newWalletBook(tx *gorm.DB) *walletBook {
	return &walletBook{
		tx:      tx,
		entries: make(map[int64]*walletEntry),
	}
}

func (wb *walletBook) Ensure(userID int64) (*model.Wallet, error) {
	if entry, ok := wb.entries[userID]; ok {
		entry.dirty = true
		return entry.wallet, nil
	}

	wallet := &model.Wallet{}
	err := wb.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(wallet).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		wallet = &model.Wallet{UserID: userID}
	}

	entry := &walletEntry{
		wallet: wallet,
		exists: err == nil,
		dirty:  true,
	}
	wb.entries[userID] = entry
	return wallet, nil
}

func (wb *walletBook) SaveAll(now time.Time) error {
	for _, entry := range wb.entries {
		if !entry.dirty {
			continue
		}
		entry.wallet.UpdatedAt = now
		var err error
		if entry.exists {
			err = wb.tx.Save(entry.wallet).Error
		} else {
			err = wb.tx.Create(entry.wallet).Error
			if err == nil {
				entry.exists = true
			}
		}
		if err != nil {
			return err
		}
		entry.dirty = false
	}
	return nil
}
