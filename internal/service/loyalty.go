package service

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/config"
	"order-settlement/internal/model"
	"order-settlement/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TierRule struct {
	Tier           model.LoyaltyTier
	LifetimePoints int64
	Multiplier     decimal.Decimal
}

type LoyaltyPolicy struct {
	MinRedeemPoints      int64
	MaxRedeemPoints      int64
	RedeemRate           decimal.Decimal // minor units per point
	MaxRedeemBasisPoints int64
	EarnRate             decimal.Decimal // points per major unit
	TieringEnabled       bool
	HoldTTL              time.Duration
	// Tiers are ordered by ascending threshold; the first must start at zero.
	Tiers []TierRule
}

var defaultTiers = []TierRule{
	{Tier: model.TierBronze, LifetimePoints: 0, Multiplier: decimal.NewFromInt(1)},
	{Tier: model.TierSilver, LifetimePoints: 1000, Multiplier: decimal.RequireFromString("1.5")},
	{Tier: model.TierGold, LifetimePoints: 5000, Multiplier: decimal.NewFromInt(2)},
	{Tier: model.TierPlatinum, LifetimePoints: 20000, Multiplier: decimal.NewFromInt(3)},
}

func DefaultLoyaltyPolicy() LoyaltyPolicy {
	return LoyaltyPolicy{
		MinRedeemPoints:      100,
		MaxRedeemPoints:      10000,
		RedeemRate:           decimal.NewFromInt(1),
		MaxRedeemBasisPoints: 5000,
		EarnRate:             decimal.NewFromInt(1),
		TieringEnabled:       true,
		HoldTTL:              15 * time.Minute,
		Tiers:                defaultTiers,
	}
}

func PolicyFromConfig(cfg config.Loyalty) (LoyaltyPolicy, error) {
	policy := DefaultLoyaltyPolicy()
	policy.MinRedeemPoints = cfg.MinRedeemPoints
	policy.MaxRedeemPoints = cfg.MaxRedeemPoints
	policy.MaxRedeemBasisPoints = cfg.MaxRedeemPercent
	policy.TieringEnabled = cfg.TieringEnabled
	policy.HoldTTL = cfg.HoldTTL

	var err error
	if policy.RedeemRate, err = decimal.NewFromString(cfg.RedeemRate); err != nil {
		return policy, fmt.Errorf("parse loyalty redeem rate: %w", err)
	}
	if policy.EarnRate, err = decimal.NewFromString(cfg.EarnRate); err != nil {
		return policy, fmt.Errorf("parse loyalty earn rate: %w", err)
	}

	switch {
	case !policy.RedeemRate.IsPositive():
		return policy, fmt.Errorf("loyalty redeem rate must be positive")
	case policy.EarnRate.IsNegative():
		return policy, fmt.Errorf("loyalty earn rate must not be negative")
	case policy.MinRedeemPoints <= 0 || policy.MaxRedeemPoints < policy.MinRedeemPoints:
		return policy, fmt.Errorf("loyalty redeem bounds are invalid: min %d, max %d", policy.MinRedeemPoints, policy.MaxRedeemPoints)
	case policy.MaxRedeemBasisPoints < 0 || policy.MaxRedeemBasisPoints > 10000:
		return policy, fmt.Errorf("loyalty max redeem basis points out of range: %d", policy.MaxRedeemBasisPoints)
	case policy.HoldTTL <= 0:
		return policy, fmt.Errorf("loyalty hold ttl must be positive")
	}
	return policy, nil
}

func (p LoyaltyPolicy) tierFor(lifetime int64) model.LoyaltyTier {
	tier := p.Tiers[0].Tier
	for _, rule := range p.Tiers {
		if lifetime >= rule.LifetimePoints {
			tier = rule.Tier
		}
	}
	return tier
}

func (p LoyaltyPolicy) multiplier(tier model.LoyaltyTier) decimal.Decimal {
	if !p.TieringEnabled {
		return decimal.NewFromInt(1)
	}
	for _, rule := range p.Tiers {
		if rule.Tier == tier {
			return rule.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

type LoyaltyService interface {
	AccountFor(ctx context.Context, customerID string) (*model.LoyaltyAccount, error)
	CreateOrRefreshHold(ctx context.Context, customerID, orderID string, points int64) (*model.LoyaltyHold, error)
	ConsumeHold(ctx context.Context, holdID string) (*model.LoyaltyHold, error)
	ReleaseHold(ctx context.Context, holdID string) error
	EarnPointsForOrder(ctx context.Context, customerID, orderID string) (int64, error)
	ExpireHolds(ctx context.Context) (int64, error)
	HoldForOrder(ctx context.Context, orderID string) (*model.LoyaltyHold, error)
	History(ctx context.Context, customerID string) ([]*model.LoyaltyLedgerEntry, error)
}

type loyaltyServiceImpl struct {
	db          *gorm.DB
	policy      LoyaltyPolicy
	loyaltyRepo repository.LoyaltyRepository
	orderRepo   repository.OrderRepository
	totals      *orderTotals
	log         *zap.Logger
	now         func() time.Time
}

func NewLoyaltyService(
	db *gorm.DB,
	policy LoyaltyPolicy,
	loyaltyRepo repository.LoyaltyRepository,
	orderRepo repository.OrderRepository,
	reservationRepo repository.ReservationRepository,
	log *zap.Logger,
) LoyaltyService {
	return &loyaltyServiceImpl{
		db:          db,
		policy:      policy,
		loyaltyRepo: loyaltyRepo,
		orderRepo:   orderRepo,
		totals: &orderTotals{
			orderRepo:       orderRepo,
			reservationRepo: reservationRepo,
			loyaltyRepo:     loyaltyRepo,
		},
		log: log,
		now: time.Now,
	}
}

func (s *loyaltyServiceImpl) AccountFor(ctx context.Context, customerID string) (*model.LoyaltyAccount, error) {
	if customerID == "" {
		return nil, apperror.Validation("customer id is required")
	}
	var account *model.LoyaltyAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loyaltyRepo.CreateAccountIfAbsent(ctx, tx, newAccount(customerID)); err != nil {
			return err
		}
		var err error
		account, err = s.loyaltyRepo.FindAccount(ctx, tx, customerID)
		return err
	})
	return account, err
}

func newAccount(customerID string) *model.LoyaltyAccount {
	return &model.LoyaltyAccount{CustomerID: customerID, Tier: model.TierBronze}
}

// lockAccount creates the account on first use and returns it locked.
func (s *loyaltyServiceImpl) lockAccount(ctx context.Context, tx *gorm.DB, customerID string) (*model.LoyaltyAccount, error) {
	if _, err := s.loyaltyRepo.CreateAccountIfAbsent(ctx, tx, newAccount(customerID)); err != nil {
		return nil, err
	}
	return s.loyaltyRepo.FindAccountForUpdate(ctx, tx, customerID)
}

func (s *loyaltyServiceImpl) CreateOrRefreshHold(ctx context.Context, customerID, orderID string, points int64) (*model.LoyaltyHold, error) {
	if customerID == "" {
		return nil, apperror.Validation("customer id is required")
	}
	if points < s.policy.MinRedeemPoints {
		return nil, apperror.Validation(fmt.Sprintf("at least %d points must be redeemed", s.policy.MinRedeemPoints))
	}

	var hold *model.LoyaltyHold
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !acceptsDiscounts(order) {
			return apperror.Conflict(fmt.Sprintf("order is %s and no longer accepts loyalty discounts", order.Status))
		}
		if owner := order.Customer(); owner != "" && owner != customerID {
			return apperror.Validation("order belongs to another customer")
		}

		account, err := s.lockAccount(ctx, tx, customerID)
		if err != nil {
			return err
		}

		// replace the previous hold for this order
		previous, err := s.loyaltyRepo.FindHoldingForOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if previous != nil {
			owner := account
			if previous.CustomerID != customerID {
				if owner, err = s.loyaltyRepo.FindAccountForUpdate(ctx, tx, previous.CustomerID); err != nil {
					return err
				}
			}
			if err := s.releaseLocked(ctx, tx, previous, owner); err != nil {
				return err
			}
		}

		available := account.Available()
		if available <= 0 {
			return apperror.Insufficient("no loyalty points available")
		}
		held := min(points, s.policy.MaxRedeemPoints, available)
		if held < s.policy.MinRedeemPoints {
			return apperror.Insufficient(fmt.Sprintf("only %d points available, at least %d required", available, s.policy.MinRedeemPoints))
		}

		promotionDiscount, err := s.totals.promotionDiscount(ctx, tx, orderID)
		if err != nil {
			return err
		}
		discount, held := s.discountFor(held, max(order.SubtotalMinor-promotionDiscount, 0))
		if discount <= 0 {
			return apperror.Validation("order total is too small for a loyalty discount")
		}

		hold = &model.LoyaltyHold{
			ID:             uuid.NewString(),
			CustomerID:     customerID,
			OrderID:        orderID,
			PointsHeld:     held,
			DiscountAmount: discount,
			Status:         model.HoldStatusActive,
			ExpiresAt:      s.now().Add(s.policy.HoldTTL),
		}
		hold.IdempotencyKey = fmt.Sprintf("loyalty-hold:%s:%s", orderID, hold.ID)
		if err := s.loyaltyRepo.CreateHold(ctx, tx, hold); err != nil {
			return fmt.Errorf("store loyalty hold: %w", err)
		}

		account.PointsHeld += held
		if err := s.loyaltyRepo.SaveBalances(ctx, tx, account); err != nil {
			return err
		}
		return s.totals.refresh(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("loyalty hold placed",
		zap.String("hold_id", hold.ID),
		zap.String("order_id", orderID),
		zap.String("customer_id", customerID),
		zap.Int64("points", hold.PointsHeld),
		zap.Int64("discount", hold.DiscountAmount),
	)
	return hold, nil
}

// discountFor converts points to a discount capped at the configured share of the
// order total, shrinking the points to the ceiling needed for a capped discount.
func (s *loyaltyServiceImpl) discountFor(points, orderTotal int64) (int64, int64) {
	discount := decimal.NewFromInt(points).Mul(s.policy.RedeemRate).Floor().IntPart()

	limit := decimal.NewFromInt(orderTotal).
		Mul(decimal.NewFromInt(s.policy.MaxRedeemBasisPoints)).
		Div(decimal.NewFromInt(10000)).
		Floor().IntPart()
	if discount > limit {
		discount = limit
		points = decimal.NewFromInt(discount).Div(s.policy.RedeemRate).Ceil().IntPart()
	}
	return discount, points
}

// releaseLocked frees a holding hold; both hold and account must already be locked.
func (s *loyaltyServiceImpl) releaseLocked(ctx context.Context, tx *gorm.DB, hold *model.LoyaltyHold, account *model.LoyaltyAccount) error {
	account.PointsHeld = max(account.PointsHeld-hold.PointsHeld, 0)
	if err := s.loyaltyRepo.SaveBalances(ctx, tx, account); err != nil {
		return err
	}
	if err := s.loyaltyRepo.UpdateHoldStatus(ctx, tx, hold.ID, model.HoldStatusReleased); err != nil {
		return err
	}
	hold.Status = model.HoldStatusReleased
	return nil
}

// ConsumeHold converts a hold into a redemption. Expired holds are still honoured
// because the customer already paid against the discount.
func (s *loyaltyServiceImpl) ConsumeHold(ctx context.Context, holdID string) (*model.LoyaltyHold, error) {
	var hold *model.LoyaltyHold
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if hold, err = s.loyaltyRepo.FindHold(ctx, tx, holdID); err != nil {
			return err
		}
		if _, err := s.orderRepo.FindByIDForUpdate(ctx, tx, hold.OrderID); err != nil {
			return err
		}
		if hold, err = s.loyaltyRepo.FindHoldForUpdate(ctx, tx, holdID); err != nil {
			return err
		}

		switch hold.Status {
		case model.HoldStatusConsumed:
			return nil
		case model.HoldStatusReleased:
			return apperror.Conflict("loyalty hold was released")
		case model.HoldStatusExpired:
			s.log.Warn("consuming expired loyalty hold", zap.String("hold_id", hold.ID), zap.String("order_id", hold.OrderID))
		}

		account, err := s.lockAccount(ctx, tx, hold.CustomerID)
		if err != nil {
			return err
		}

		redeemed := min(hold.PointsHeld, account.PointsBalance)
		if redeemed < hold.PointsHeld {
			s.log.Warn("loyalty balance below held points",
				zap.String("hold_id", hold.ID),
				zap.Int64("held", hold.PointsHeld),
				zap.Int64("balance", account.PointsBalance),
			)
		}

		orderID := hold.OrderID
		created, err := s.loyaltyRepo.CreateLedgerEntryIfAbsent(ctx, tx, &model.LoyaltyLedgerEntry{
			IdempotencyKey: fmt.Sprintf("loyalty-redeem:%s:%s", hold.OrderID, hold.ID),
			CustomerID:     hold.CustomerID,
			OrderID:        &orderID,
			Type:           model.LedgerEntryRedeem,
			Points:         -redeemed,
			BalanceAfter:   account.PointsBalance - redeemed,
			OccurredAt:     s.now(),
		})
		if err != nil {
			return fmt.Errorf("record loyalty redemption: %w", err)
		}
		if created {
			account.PointsBalance -= redeemed
			account.PointsHeld = max(account.PointsHeld-hold.PointsHeld, 0)
			if err := s.loyaltyRepo.SaveBalances(ctx, tx, account); err != nil {
				return err
			}
		}

		if err := s.loyaltyRepo.UpdateHoldStatus(ctx, tx, hold.ID, model.HoldStatusConsumed); err != nil {
			return err
		}
		hold.Status = model.HoldStatusConsumed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// ReleaseHold is a no-op for holds that are no longer reserving points.
func (s *loyaltyServiceImpl) ReleaseHold(ctx context.Context, holdID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, err := s.loyaltyRepo.FindHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, hold.OrderID)
		if err != nil {
			return err
		}
		if hold, err = s.loyaltyRepo.FindHoldForUpdate(ctx, tx, holdID); err != nil {
			return err
		}
		if !hold.IsHolding() {
			return nil
		}

		account, err := s.lockAccount(ctx, tx, hold.CustomerID)
		if err != nil {
			return err
		}
		if err := s.releaseLocked(ctx, tx, hold, account); err != nil {
			return err
		}

		s.log.Info("loyalty hold released", zap.String("hold_id", hold.ID), zap.String("order_id", hold.OrderID))
		if acceptsDiscounts(order) {
			return s.totals.refresh(ctx, tx, order)
		}
		return nil
	})
}

// EarnPointsForOrder credits floor(total × earn rate × tier multiplier) points once per
// (order, customer) and returns the points credited by this call.
func (s *loyaltyServiceImpl) EarnPointsForOrder(ctx context.Context, customerID, orderID string) (int64, error) {
	if customerID == "" {
		return 0, apperror.Validation("customer id is required")
	}

	var earned int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsSettled() {
			return apperror.Conflict(fmt.Sprintf("order is %s, points are only earned on paid orders", order.Status))
		}

		account, err := s.lockAccount(ctx, tx, customerID)
		if err != nil {
			return err
		}

		points := decimal.New(order.TotalMinor, -2).
			Mul(s.policy.EarnRate).Floor().
			Mul(s.policy.multiplier(account.Tier)).Floor().
			IntPart()
		if points <= 0 {
			return nil
		}

		created, err := s.loyaltyRepo.CreateLedgerEntryIfAbsent(ctx, tx, &model.LoyaltyLedgerEntry{
			IdempotencyKey: fmt.Sprintf("loyalty-earn:%s:%s", orderID, customerID),
			CustomerID:     customerID,
			OrderID:        &order.ID,
			Type:           model.LedgerEntryEarn,
			Points:         points,
			BalanceAfter:   account.PointsBalance + points,
			OccurredAt:     s.now(),
		})
		if err != nil {
			return fmt.Errorf("record loyalty earn: %w", err)
		}
		if !created {
			return nil
		}

		account.PointsBalance += points
		account.LifetimePoints += points
		if s.policy.TieringEnabled {
			account.Tier = s.policy.tierFor(account.LifetimePoints)
		}
		earned = points
		return s.loyaltyRepo.SaveBalances(ctx, tx, account)
	})
	if err != nil {
		return 0, err
	}

	if earned > 0 {
		s.log.Info("loyalty points earned",
			zap.String("customer_id", customerID),
			zap.String("order_id", orderID),
			zap.Int64("points", earned),
		)
	}
	return earned, nil
}

// ExpireHolds relabels overdue holds; their points stay reserved until released.
func (s *loyaltyServiceImpl) ExpireHolds(ctx context.Context) (int64, error) {
	var expired int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		expired, err = s.loyaltyRepo.ExpireHolds(ctx, tx, s.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("loyalty holds expired", zap.Int64("count", expired))
	}
	return expired, nil
}

func (s *loyaltyServiceImpl) HoldForOrder(ctx context.Context, orderID string) (*model.LoyaltyHold, error) {
	return s.loyaltyRepo.FindHoldingForOrder(ctx, s.db, orderID)
}

func (s *loyaltyServiceImpl) History(ctx context.Context, customerID string) ([]*model.LoyaltyLedgerEntry, error) {
	return s.loyaltyRepo.ListLedger(ctx, s.db, customerID)
}
