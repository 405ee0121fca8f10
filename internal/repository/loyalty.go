package repository

import (
	"context"
	"errors"
	"order-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type LoyaltyRepository interface {
	CreateAccountIfAbsent(ctx context.Context, tx *gorm.DB, account *model.LoyaltyAccount) (bool, error)
	FindAccount(ctx context.Context, tx *gorm.DB, customerID string) (*model.LoyaltyAccount, error)
	FindAccountForUpdate(ctx context.Context, tx *gorm.DB, customerID string) (*model.LoyaltyAccount, error)
	SaveBalances(ctx context.Context, tx *gorm.DB, account *model.LoyaltyAccount) error

	CreateHold(ctx context.Context, tx *gorm.DB, hold *model.LoyaltyHold) error
	FindHold(ctx context.Context, tx *gorm.DB, holdID string) (*model.LoyaltyHold, error)
	FindHoldForUpdate(ctx context.Context, tx *gorm.DB, holdID string) (*model.LoyaltyHold, error)
	FindHoldingForOrder(ctx context.Context, tx *gorm.DB, orderID string) (*model.LoyaltyHold, error)
	UpdateHoldStatus(ctx context.Context, tx *gorm.DB, holdID string, status model.HoldStatus) error
	ExpireHolds(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)

	CreateLedgerEntryIfAbsent(ctx context.Context, tx *gorm.DB, entry *model.LoyaltyLedgerEntry) (bool, error)
	ListLedger(ctx context.Context, tx *gorm.DB, customerID string) ([]*model.LoyaltyLedgerEntry, error)
	ListLedgerByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.LoyaltyLedgerEntry, error)
}

type loyaltyRepoImpl struct {
	db *gorm.DB
}

func NewLoyaltyRepository(db *gorm.DB) LoyaltyRepository {
	return &loyaltyRepoImpl{
		db: db,
	}
}

func (r *loyaltyRepoImpl) CreateAccountIfAbsent(ctx context.Context, tx *gorm.DB, account *model.LoyaltyAccount) (bool, error) {
	created, err := createIfAbsent(ctx, tx, account)
	return created, translate(err, "loyalty account")
}

func (r *loyaltyRepoImpl) FindAccount(ctx context.Context, tx *gorm.DB, customerID string) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := tx.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&account).Error
	if err != nil {
		return nil, translate(err, "loyalty account")
	}
	return &account, nil
}

func (r *loyaltyRepoImpl) FindAccountForUpdate(ctx context.Context, tx *gorm.DB, customerID string) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("customer_id = ?", customerID).
		First(&account).Error
	if err != nil {
		return nil, translate(err, "loyalty account")
	}
	return &account, nil
}

// SaveBalances writes the counters of an account previously read under lock.
func (r *loyaltyRepoImpl) SaveBalances(ctx context.Context, tx *gorm.DB, account *model.LoyaltyAccount) error {
	return translate(tx.WithContext(ctx).Model(&model.LoyaltyAccount{}).
		Where("customer_id = ?", account.CustomerID).
		Updates(map[string]interface{}{
			"points_balance":  account.PointsBalance,
			"points_held":     account.PointsHeld,
			"lifetime_points": account.LifetimePoints,
			"tier":            account.Tier,
			"updated_at":      time.Now(),
		}).Error, "loyalty account")
}

func (r *loyaltyRepoImpl) CreateHold(ctx context.Context, tx *gorm.DB, hold *model.LoyaltyHold) error {
	return translate(tx.WithContext(ctx).Create(hold).Error, "loyalty hold")
}

func (r *loyaltyRepoImpl) FindHold(ctx context.Context, tx *gorm.DB, holdID string) (*model.LoyaltyHold, error) {
	var hold model.LoyaltyHold
	err := tx.WithContext(ctx).
		Where("id = ?", holdID).
		First(&hold).Error
	if err != nil {
		return nil, translate(err, "loyalty hold")
	}
	return &hold, nil
}

func (r *loyaltyRepoImpl) FindHoldForUpdate(ctx context.Context, tx *gorm.DB, holdID string) (*model.LoyaltyHold, error) {
	var hold model.LoyaltyHold
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ?", holdID).
		First(&hold).Error
	if err != nil {
		return nil, translate(err, "loyalty hold")
	}
	return &hold, nil
}

// FindHoldingForOrder returns the hold still reserving points for the order, or nil.
func (r *loyaltyRepoImpl) FindHoldingForOrder(ctx context.Context, tx *gorm.DB, orderID string) (*model.LoyaltyHold, error) {
	var hold model.LoyaltyHold
	err := tx.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, model.HoldingStatuses).
		Order("created_at DESC").
		First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "loyalty hold")
	}
	return &hold, nil
}

func (r *loyaltyRepoImpl) UpdateHoldStatus(ctx context.Context, tx *gorm.DB, holdID string, status model.HoldStatus) error {
	return translate(tx.WithContext(ctx).Model(&model.LoyaltyHold{}).
		Where("id = ?", holdID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error, "loyalty hold")
}

// ExpireHolds only relabels holds; balances stay untouched.
func (r *loyaltyRepoImpl) ExpireHolds(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).Model(&model.LoyaltyHold{}).
		Where("status = ? AND expires_at < ?", model.HoldStatusActive, now).
		Updates(map[string]interface{}{
			"status":     model.HoldStatusExpired,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, translate(result.Error, "loyalty holds")
	}
	return result.RowsAffected, nil
}

func (r *loyaltyRepoImpl) CreateLedgerEntryIfAbsent(ctx context.Context, tx *gorm.DB, entry *model.LoyaltyLedgerEntry) (bool, error) {
	created, err := createIfAbsent(ctx, tx, entry)
	return created, translate(err, "loyalty ledger entry")
}

func (r *loyaltyRepoImpl) ListLedger(ctx context.Context, tx *gorm.DB, customerID string) ([]*model.LoyaltyLedgerEntry, error) {
	var entries []*model.LoyaltyLedgerEntry
	err := tx.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("occurred_at").
		Find(&entries).Error
	if err != nil {
		return nil, translate(err, "loyalty ledger")
	}
	return entries, nil
}

func (r *loyaltyRepoImpl) ListLedgerByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.LoyaltyLedgerEntry, error) {
	var entries []*model.LoyaltyLedgerEntry
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at").
		Find(&entries).Error
	if err != nil {
		return nil, translate(err, "loyalty ledger")
	}
	return entries, nil
}
