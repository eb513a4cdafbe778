package entitlement

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"findyourdeal_backend/internal/model"
)

// Entitlement is what a user is allowed to do right now: the resolver is a
// pure projection over users + subscriptions + plans/plan_features and
// never mutates state.
type Entitlement struct {
	UserID                 uint       `json:"user_id"`
	PlanID                 uint       `json:"plan_id"`
	PlanCode               string     `json:"plan_code"`
	PlanName               string     `json:"plan_name"`
	ExpiresAt              *time.Time `json:"expires_at"`
	Active                 bool       `json:"active"`
	ExtraLinkPacks         int        `json:"extra_link_packs"`
	LinksLimitTotal        int        `json:"links_limit_total"`
	HistoryLimit           int        `json:"history_limit"`
	DailyNotificationLimit int        `json:"daily_notification_limit"`
	SourcesAllowed         []string   `json:"sources_allowed"`
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(userID uint) (*Entitlement, error) {
	var user model.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return r.resolveUser(&user)
}

func (r *Resolver) ResolveByTelegramID(telegramUserID int64) (*Entitlement, error) {
	var user model.User
	if err := r.db.Where("telegram_user_id = ?", telegramUserID).First(&user).Error; err != nil {
		return nil, err
	}
	return r.resolveUser(&user)
}

func (r *Resolver) resolveUser(user *model.User) (*Entitlement, error) {
	planCode := user.PlanName
	expiresAt := user.PlanExpiresAt
	extraPacks := user.ExtraLinkPacks
	var planID uint
	var planName string

	// the most recent active subscription row wins over the users snapshot
	var sub model.Subscription
	err := r.db.Where("user_id = ? AND status = ?", user.ID, "active").
		Order("updated_at DESC").
		First(&sub).Error
	if err == nil {
		var plan model.Plan
		if perr := r.db.First(&plan, sub.PlanID).Error; perr == nil {
			planID = plan.ID
			planCode = plan.Code
			planName = plan.Name
			expiresAt = sub.CurrentPeriodEnd
			extraPacks = sub.AddonQty
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if planID == 0 && planCode != "" && planCode != "none" {
		var plan model.Plan
		if perr := r.db.Where("code = ?", planCode).First(&plan).Error; perr == nil {
			planID = plan.ID
			planName = plan.Name
		}
	}

	features, err := r.planFeatures(planID)
	if err != nil {
		return nil, err
	}

	ent := Compute(planCode, planID, planName, expiresAt, extraPacks, features, time.Now())
	ent.UserID = user.ID
	return ent, nil
}

// planFeatures tolerates a missing plan_features table: absence of a
// feature yields defaults, not an error.
func (r *Resolver) planFeatures(planID uint) (FeatureMap, error) {
	if planID == 0 {
		return FeatureMap{}, nil
	}
	var rows []model.PlanFeature
	if err := r.db.Where("plan_id = ?", planID).Find(&rows).Error; err != nil {
		return FeatureMap{}, nil
	}
	out := FeatureMap{}
	for _, row := range rows {
		out[row.FeatureKey] = []byte(row.FeatureValue)
	}
	return out, nil
}

// Compute derives the limits snapshot. An expired plan keeps its code and
// history depth (read-only access stays) but reports zero creation and
// notification capacity.
func Compute(planCode string, planID uint, planName string, expiresAt *time.Time, extraPacks int, features FeatureMap, now time.Time) *Entitlement {
	if planCode == "" {
		planCode = "none"
	}

	ent := &Entitlement{
		PlanID:         planID,
		PlanCode:       planCode,
		PlanName:       planName,
		ExpiresAt:      expiresAt,
		Active:         planCode != "none" && (expiresAt == nil || !expiresAt.Before(now)),
		ExtraLinkPacks: extraPacks,
		HistoryLimit:   features.Int("history_limit", defaultHistoryLimit),
		SourcesAllowed: features.Strings("sources_allowed"),
	}

	if planCode == "none" {
		return ent
	}

	links := features.Int("links_limit", baseLinkLimit(planCode))
	// add-on packs extend only the top tier; lower tiers ignore them
	if planCode == "platinum" && extraPacks > 0 {
		links += extraPacks * 10
	}

	if ent.Active {
		ent.LinksLimitTotal = links
		ent.DailyNotificationLimit = features.Int("daily_notifications_limit", defaultDailyLimit(planCode))
	}

	return ent
}

const defaultHistoryLimit = 20

func baseLinkLimit(planCode string) int {
	switch planCode {
	case "trial":
		return 5
	case "starter":
		return 10
	case "growth":
		return 50
	case "platinum":
		return 200
	default:
		return 0
	}
}

func defaultDailyLimit(planCode string) int {
	switch planCode {
	case "trial":
		return 50
	case "starter":
		return 200
	case "growth":
		return 500
	case "platinum":
		return 2000
	default:
		return 0
	}
}

// DurationDays translates a plan into its entitlement period. A
// duration_days feature overrides the fallback.
func DurationDays(planCode string, features FeatureMap) int {
	if d := features.Int("duration_days", 0); d > 0 {
		return d
	}
	if planCode == "trial" {
		return 3
	}
	return 30
}
