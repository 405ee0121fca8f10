package service

import (
	"context"
	"order-settlement/internal/apperror"
	"order-settlement/internal/model"
	"order-settlement/internal/money"
	"order-settlement/internal/repository"
	"time"

	"gorm.io/gorm"
)

// Reasons reported for an invalid promotion.
const (
	ReasonNotFound           = "not found"
	ReasonInactive           = "inactive"
	ReasonNotYetValid        = "not yet valid"
	ReasonExpired            = "expired"
	ReasonUsageLimit         = "usage limit reached"
	ReasonMinimumOrder       = "minimum order amount not met"
	ReasonCustomerUsageLimit = "customer usage limit reached"
	ReasonNoApplicableItems  = "does not apply to any items"
)

type EvaluationResult struct {
	Valid          bool             `json:"valid"`
	DiscountAmount int64            `json:"discountAmount"`
	Reason         string           `json:"reason,omitempty"`
	Promotion      *model.Promotion `json:"-"`
}

func invalid(reason string, promotion *model.Promotion) *EvaluationResult {
	return &EvaluationResult{Reason: reason, Promotion: promotion}
}

// PromotionEvaluator computes a discount without writing anything.
// The order must be passed with its items loaded.
type PromotionEvaluator interface {
	Evaluate(ctx context.Context, tx *gorm.DB, code string, order *model.Order, customerID string) (*EvaluationResult, error)
}

type promotionEvaluatorImpl struct {
	promotionRepo repository.PromotionRepository
	now           func() time.Time
}

func NewPromotionEvaluator(promotionRepo repository.PromotionRepository) PromotionEvaluator {
	return &promotionEvaluatorImpl{
		promotionRepo: promotionRepo,
		now:           time.Now,
	}
}

func (e *promotionEvaluatorImpl) Evaluate(ctx context.Context, tx *gorm.DB, code string, order *model.Order, customerID string) (*EvaluationResult, error) {
	code = repository.NormalizeCode(code)
	if code == "" {
		return nil, apperror.Validation("promotion code is required")
	}

	promotion, err := e.promotionRepo.FindByCode(ctx, tx, code)
	if apperror.Is(err, apperror.CodeNotFound) {
		return invalid(ReasonNotFound, nil), nil
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch {
	case !promotion.Active:
		return invalid(ReasonInactive, promotion), nil
	case promotion.ValidFrom != nil && now.Before(*promotion.ValidFrom):
		return invalid(ReasonNotYetValid, promotion), nil
	case promotion.ValidTo != nil && now.After(*promotion.ValidTo):
		return invalid(ReasonExpired, promotion), nil
	case promotion.MaxUses != nil && promotion.RedemptionsCount >= *promotion.MaxUses:
		return invalid(ReasonUsageLimit, promotion), nil
	case order.SubtotalMinor < promotion.MinOrderAmount:
		return invalid(ReasonMinimumOrder, promotion), nil
	}

	if promotion.MaxUsesPerCustomer != nil && customerID != "" {
		used, err := e.promotionRepo.CountCustomerRedemptions(ctx, tx, promotion.ID, customerID)
		if err != nil {
			return nil, err
		}
		if used >= *promotion.MaxUsesPerCustomer {
			return invalid(ReasonCustomerUsageLimit, promotion), nil
		}
	}

	lines := applicableLines(promotion.Targets, order.Items)
	discount, err := discountFor(promotion, lines, order.Currency)
	if err != nil {
		return nil, err
	}
	if discount <= 0 {
		return invalid(ReasonNoApplicableItems, promotion), nil
	}

	return &EvaluationResult{
		Valid:          true,
		DiscountAmount: discount,
		Promotion:      promotion,
	}, nil
}

type targetSet map[model.TargetKind]map[string]bool

func (s targetSet) add(target model.PromotionTarget) {
	if s[target.Kind] == nil {
		s[target.Kind] = make(map[string]bool)
	}
	s[target.Kind][target.TargetID] = true
}

func (s targetSet) matches(item model.OrderItem) bool {
	if s[model.TargetKindItem][item.ItemID] {
		return true
	}
	return item.CategoryID != "" && s[model.TargetKindCategory][item.CategoryID]
}

// applicableLines keeps lines matching an include target (or all lines when there
// are no include targets) and drops lines matching an exclude target.
func applicableLines(targets []model.PromotionTarget, items []model.OrderItem) []model.OrderItem {
	if len(targets) == 0 {
		return items
	}

	include, exclude := targetSet{}, targetSet{}
	for _, target := range targets {
		if target.Mode == model.TargetModeExclude {
			exclude.add(target)
		} else {
			include.add(target)
		}
	}

	lines := make([]model.OrderItem, 0, len(items))
	for _, item := range items {
		if exclude.matches(item) {
			continue
		}
		if len(include) > 0 && !include.matches(item) {
			continue
		}
		lines = append(lines, item)
	}
	return lines
}

func discountFor(promotion *model.Promotion, lines []model.OrderItem, currency string) (int64, error) {
	applicable := money.Zero(currency)
	for _, line := range lines {
		unit, err := money.New(line.UnitPrice, currency)
		if err != nil {
			return 0, err
		}
		total, err := unit.Multiply(line.Quantity)
		if err != nil {
			return 0, err
		}
		if applicable, err = applicable.Add(total); err != nil {
			return 0, err
		}
	}
	if applicable.IsZero() {
		return 0, nil
	}

	var discount money.Money
	var err error
	switch promotion.Type {
	case model.PromotionTypeFixed:
		discount, err = money.New(promotion.DiscountValue, currency)
		if err != nil {
			return 0, err
		}
	case model.PromotionTypePercentage:
		discount, err = applicable.PercentageOf(promotion.DiscountValue)
		if err != nil {
			return 0, err
		}
	case model.PromotionTypeFreeItem:
		discount, err = cheapestUnit(lines, currency)
		if err != nil {
			return 0, err
		}
	default:
		return 0, apperror.Validation("unknown promotion type " + string(promotion.Type))
	}

	// never discount more than the lines it applies to
	discount, err = discount.Min(applicable)
	if err != nil {
		return 0, err
	}
	return discount.Amount(), nil
}

func cheapestUnit(lines []model.OrderItem, currency string) (money.Money, error) {
	var cheapest *model.OrderItem
	for i := range lines {
		if lines[i].Quantity <= 0 {
			continue
		}
		if cheapest == nil || lines[i].UnitPrice < cheapest.UnitPrice {
			cheapest = &lines[i]
		}
	}
	if cheapest == nil {
		return money.Zero(currency), nil
	}
	return money.New(cheapest.UnitPrice, currency)
}
