package billing

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"gorm.io/gorm"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/entitlement"
)

const tokenTTL = 7 * 24 * time.Hour

// Reconciler converts external billing events and activation requests into
// durable entitlement state. Primary writes run in explicit transactions;
// denormalization writes are best-effort and never abort them.
type Reconciler struct {
	db     *gorm.DB
	prices PriceMap
	tokens *TokenStore

	// Notifier receives short admin-facing messages about activations.
	// Optional, best-effort.
	Notifier func(text string)
}

func NewReconciler(db *gorm.DB, prices PriceMap, tokens *TokenStore) *Reconciler {
	return &Reconciler{db: db, prices: prices, tokens: tokens}
}

// bestEffort runs a secondary write that must not abort the primary flow;
// failures land in the log, not at the caller.
func bestEffort(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("[billing] best-effort %s failed: %v", name, err)
	}
}

// ---------- webhook delivery log ----------

// RecordDelivery upserts the event into the delivery log and reports
// whether it was already fully processed (idempotent replay).
func (r *Reconciler) RecordDelivery(event *stripe.Event, payload []byte) (bool, error) {
	var eventCreated *time.Time
	if event.Created > 0 {
		t := time.Unix(event.Created, 0)
		eventCreated = &t
	}

	var status string
	res := r.db.Raw(`
		INSERT INTO stripe_webhook_events
			(event_id, type, livemode, api_version, event_created, payload, attempts, status, received_at)
		VALUES
			(?, ?, ?, ?, ?, ?, 1, 'received', NOW())
		ON CONFLICT (event_id) DO UPDATE SET
			attempts      = stripe_webhook_events.attempts + 1,
			received_at   = NOW(),
			type          = EXCLUDED.type,
			livemode      = EXCLUDED.livemode,
			api_version   = EXCLUDED.api_version,
			event_created = COALESCE(EXCLUDED.event_created, stripe_webhook_events.event_created),
			payload       = COALESCE(EXCLUDED.payload, stripe_webhook_events.payload)
		RETURNING status
	`, event.ID, event.Type, event.Livemode, event.APIVersion, eventCreated, string(payload)).Scan(&status)
	if res.Error != nil {
		return false, res.Error
	}
	if status == "processed" {
		return true, nil
	}

	return false, r.db.Exec(`
		UPDATE stripe_webhook_events SET status = 'processing' WHERE event_id = ? AND status <> 'processed'
	`, event.ID).Error
}

func (r *Reconciler) MarkProcessed(eventID string) error {
	return r.db.Exec(`
		UPDATE stripe_webhook_events
		SET status = 'processed', processed_at = NOW(), last_error = NULL
		WHERE event_id = ?
	`, eventID).Error
}

func (r *Reconciler) MarkError(eventID string, cause error) error {
	msg := cause.Error()
	if len(msg) > 1800 {
		msg = msg[:1800]
	}
	return r.db.Exec(`
		UPDATE stripe_webhook_events
		SET status = 'error', last_error = ?
		WHERE event_id = ?
	`, msg, eventID).Error
}

// ---------- event handling ----------

// HandleEvent is the reconciliation entry point. Irrelevant or malformed
// events are common and are discarded without error.
func (r *Reconciler) HandleEvent(event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return r.handleCheckoutCompleted(event)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return r.handleSubscriptionEvent(event)
	default:
		return nil
	}
}

type checkoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

func (r *Reconciler) handleCheckoutCompleted(event *stripe.Event) error {
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Printf("[stripe] unreadable checkout session in %s: %v", event.ID, err)
		return nil
	}
	if session.Mode != "subscription" {
		return nil
	}

	meta := session.Metadata
	userID := r.resolveUserID(meta, session.Customer)

	if session.Customer != "" && userID != 0 {
		bestEffort("stripe_customer_id stamp", func() error {
			return r.db.Exec(`
				UPDATE users SET stripe_customer_id = ?
				WHERE id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = ?)
			`, session.Customer, userID, session.Customer).Error
		})
	}

	if meta["kind"] == "addon" || meta["plan_code"] == "addon" || meta["fyd_kind"] == "addon10" {
		packs := metaPacks(meta)
		if packs < 1 {
			packs = 1
		}
		if userID == 0 {
			log.Printf("[stripe] addon checkout %s: cannot resolve user", session.ID)
			return nil
		}
		return r.applyAddonPurchase(session.ID, userID, packs)
	}

	planID := uint(atoi(meta["fyd_plan_id"]))
	if planID == 0 {
		planID = uint(atoi(meta["plan_id"]))
	}
	if planID == 0 {
		planID = PlanIDByCode(meta["plan_code"])
	}
	if session.Subscription == "" || planID == 0 {
		// malformed or foreign checkout, nothing to reconcile
		return nil
	}

	addonPacks := metaPacks(meta)
	providerRef := buildProviderRef(session.Subscription, session.Customer, addonPacks, session.ID)

	token := strings.TrimSpace(meta["fyd_activation_token"])
	if token == "" {
		token = strings.TrimSpace(meta["activation_token"])
	}
	if token != "" {
		return r.tokens.MergeFromEvent(token, planID, providerRef, tokenTTL)
	}

	minted, err := r.tokens.Mint(planID, "stripe", providerRef, tokenTTL)
	if err != nil {
		return err
	}
	log.Printf("[stripe] activation token minted sub=%s plan_id=%d token=%s", session.Subscription, planID, minted)
	return nil
}

// metaPacks reads the add-on pack count from event metadata, accepting the
// prefixed and plain key.
func metaPacks(meta map[string]string) int {
	if n := atoi(meta["fyd_addon_packs"]); n > 0 {
		return n
	}
	return atoi(meta["addon_packs"])
}

type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Quantity int64 `json:"quantity"`
			Price    struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

// handleSubscriptionEvent refreshes the local subscription row through a
// genuine conditional upsert keyed on (provider, provider_subscription_id),
// so concurrent deliveries cannot double-insert.
func (r *Reconciler) handleSubscriptionEvent(event *stripe.Event) error {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		log.Printf("[stripe] unreadable subscription in %s: %v", event.ID, err)
		return nil
	}
	if sub.ID == "" || sub.Customer == "" {
		return nil
	}

	var userID uint
	res := r.db.Raw(`SELECT id FROM users WHERE stripe_customer_id = ? LIMIT 1`, sub.Customer).Scan(&userID)
	if res.Error != nil {
		return res.Error
	}
	if userID == 0 {
		log.Printf("[stripe] no user for customer %s, skipping %s", sub.Customer, event.Type)
		return nil
	}

	priceID := ""
	var qty int64
	if len(sub.Items.Data) > 0 {
		priceID = sub.Items.Data[0].Price.ID
		qty = sub.Items.Data[0].Quantity
	}

	if r.prices.IsAddon(priceID) {
		packs := int(qty)
		if event.Type == "customer.subscription.deleted" || sub.Status == "canceled" {
			packs = 0
		}
		return r.setAddonQty(userID, packs)
	}

	planID, err := r.prices.ResolvePlanID(priceID, sub.Metadata["plan_code"])
	if err != nil {
		return fmt.Errorf("%w: price=%q event=%s", ErrPlanMappingFailed, priceID, event.ID)
	}

	status := sub.Status
	if event.Type == "customer.subscription.deleted" {
		status = "canceled"
	}
	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		periodEnd = &t
	}

	if err := r.upsertSubscription(userID, planID, sub.Customer, sub.ID, status, periodEnd); err != nil {
		return err
	}

	if status == "active" {
		bestEffort("users plan snapshot refresh", func() error {
			return r.db.Exec(`
				UPDATE users
				SET plan_name = (SELECT code FROM plans WHERE id = ?),
					plan_expires_at = ?,
					updated_at = NOW()
				WHERE id = ?
			`, planID, periodEnd, userID).Error
		})
	}
	return nil
}

func (r *Reconciler) upsertSubscription(userID, planID uint, customerID, subscriptionID, status string, periodEnd *time.Time) error {
	return r.db.Exec(`
		INSERT INTO subscriptions
			(user_id, plan_id, provider, provider_customer_id, provider_subscription_id, status, current_period_end, created_at, updated_at)
		VALUES
			(?, ?, 'stripe', ?, ?, ?, ?, NOW(), NOW())
		ON CONFLICT (provider, provider_subscription_id) DO UPDATE SET
			user_id              = EXCLUDED.user_id,
			plan_id              = EXCLUDED.plan_id,
			provider_customer_id = EXCLUDED.provider_customer_id,
			status               = EXCLUDED.status,
			current_period_end   = EXCLUDED.current_period_end,
			updated_at           = NOW()
	`, userID, planID, customerID, subscriptionID, status, periodEnd).Error
}

// applyAddonPurchase grants add-on packs at most once per checkout session.
// Packs only extend the top tier; the update is a no-op for other plans.
func (r *Reconciler) applyAddonPurchase(checkoutSessionID string, userID uint, packs int) error {
	res := r.db.Exec(`
		INSERT INTO addon_purchases (stripe_checkout_session_id, user_id, packs, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON CONFLICT (stripe_checkout_session_id) DO NOTHING
	`, checkoutSessionID, userID, packs)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("[addon] already applied cs=%s", checkoutSessionID)
		return nil
	}

	if err := r.db.Exec(`
		UPDATE subscriptions s
		SET addon_qty = COALESCE(s.addon_qty, 0) + ?,
			updated_at = NOW()
		FROM plans p
		WHERE p.id = s.plan_id
			AND p.code = 'platinum'
			AND s.user_id = ?
			AND s.status = 'active'
	`, packs, userID).Error; err != nil {
		return err
	}

	bestEffort("users extra_link_packs", func() error {
		return r.db.Exec(`
			UPDATE users SET extra_link_packs = extra_link_packs + ?, updated_at = NOW()
			WHERE id = ? AND plan_name = 'platinum'
		`, packs, userID).Error
	})
	return nil
}

func (r *Reconciler) setAddonQty(userID uint, packs int) error {
	if err := r.db.Exec(`
		UPDATE subscriptions s
		SET addon_qty = ?, updated_at = NOW()
		WHERE s.id = (
			SELECT s2.id FROM subscriptions s2
			JOIN plans p ON p.id = s2.plan_id
			WHERE s2.user_id = ? AND s2.provider = 'stripe'
				AND p.code = 'platinum' AND s2.status = 'active'
			ORDER BY s2.updated_at DESC
			LIMIT 1
		)
	`, packs, userID).Error; err != nil {
		return err
	}

	bestEffort("users extra_link_packs", func() error {
		return r.db.Exec(`
			UPDATE users SET extra_link_packs = ?, updated_at = NOW()
			WHERE id = ? AND plan_name = 'platinum'
		`, packs, userID).Error
	})
	return nil
}

func (r *Reconciler) resolveUserID(meta map[string]string, customerID string) uint {
	if id := atoi(meta["user_id"]); id > 0 {
		return uint(id)
	}

	var userID uint
	if tg := meta["telegram_user_id"]; tg != "" {
		r.db.Raw(`SELECT id FROM users WHERE telegram_user_id = ? LIMIT 1`, atoi64(tg)).Scan(&userID)
		if userID != 0 {
			return userID
		}
	}
	if tg := meta["fyd_telegram_user_id"]; tg != "" {
		r.db.Raw(`SELECT id FROM users WHERE telegram_user_id = ? LIMIT 1`, atoi64(tg)).Scan(&userID)
		if userID != 0 {
			return userID
		}
	}
	if customerID != "" {
		r.db.Raw(`SELECT id FROM users WHERE stripe_customer_id = ? LIMIT 1`, customerID).Scan(&userID)
	}
	return userID
}

// ---------- activation ----------

type ActivatedPlan struct {
	ID   uint   `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type ActivationResult struct {
	Plan      ActivatedPlan          `json:"plan"`
	Features  entitlement.FeatureMap `json:"features"`
	PeriodEnd time.Time              `json:"period_end"`
}

// Activate redeems a token and grants entitlement in one transaction:
// row-locked token validation, subscription insert, user snapshot update
// and token consumption commit or roll back together. A token is never
// marked used when the grant fails.
func (r *Reconciler) Activate(token string, telegramUserID int64) (*ActivationResult, error) {
	var result *ActivationResult

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var tok model.ActivationToken
		res := tx.Raw(`
			SELECT token, plan_id, provider, provider_ref, expires_at, used_at
			FROM activation_tokens
			WHERE token = ?
			FOR UPDATE
		`, token).Scan(&tok)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenNotFound
		}
		if tok.UsedAt != nil {
			return ErrTokenAlreadyUsed
		}
		if tok.ExpiresAt.Before(time.Now()) {
			return ErrTokenExpired
		}

		var usr struct {
			ID             uint
			ExtraLinkPacks int
		}
		ures := tx.Raw(`SELECT id, extra_link_packs FROM users WHERE telegram_user_id = ? LIMIT 1`, telegramUserID).Scan(&usr)
		if ures.Error != nil {
			return ures.Error
		}
		if usr.ID == 0 {
			return ErrUserNotFound
		}
		userID := usr.ID

		var plan model.Plan
		pres := tx.Raw(`SELECT id, code, name FROM plans WHERE id = ? LIMIT 1`, tok.PlanID).Scan(&plan)
		if pres.Error != nil {
			return pres.Error
		}
		if pres.RowsAffected == 0 {
			return ErrPlanNotFound
		}

		features := entitlement.FeatureMap{}
		var featRows []model.PlanFeature
		if err := tx.Raw(`SELECT feature_key, feature_value FROM plan_features WHERE plan_id = ?`, plan.ID).Scan(&featRows).Error; err != nil {
			return err
		}
		for _, f := range featRows {
			features[f.FeatureKey] = []byte(f.FeatureValue)
		}

		now := time.Now()
		periodEnd := now.Add(time.Duration(entitlement.DurationDays(plan.Code, features)) * 24 * time.Hour)

		if err := tx.Exec(`
			UPDATE activation_tokens
			SET used_at = NOW(), used_by_telegram_user_id = ?, updated_at = NOW()
			WHERE token = ?
		`, telegramUserID, token).Error; err != nil {
			return err
		}

		providerSubID := tok.ProviderRef
		if providerSubID == "" {
			providerSubID = "token:" + token
		}
		// a renewal checkout carries no packs; keep the ones already paid for
		addonQty := 0
		if plan.Code == "platinum" {
			addonQty = addonPacksFromRef(tok.ProviderRef)
			if addonQty == 0 {
				addonQty = usr.ExtraLinkPacks
			}
		}

		if err := tx.Exec(`
			INSERT INTO subscriptions
				(user_id, plan_id, provider, provider_customer_id, provider_subscription_id, status, current_period_end, addon_qty, created_at, updated_at)
			VALUES
				(?, ?, ?, NULL, ?, 'active', ?, ?, NOW(), NOW())
		`, userID, plan.ID, tok.Provider, providerSubID, periodEnd, addonQty).Error; err != nil {
			return err
		}

		// extra_link_packs is owned by the add-on webhook flow; activation
		// must not reset what the user already purchased
		if err := tx.Exec(`
			UPDATE users
			SET plan_name = ?,
				plan_started_at = ?,
				plan_expires_at = ?,
				updated_at = NOW()
			WHERE id = ?
		`, plan.Code, now, periodEnd, userID).Error; err != nil {
			return err
		}

		result = &ActivationResult{
			Plan:      ActivatedPlan{ID: plan.ID, Code: plan.Code, Name: plan.Name},
			Features:  features,
			PeriodEnd: periodEnd,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// any paid activation forecloses future trial eligibility
	bestEffort("trial_used stamp", func() error {
		return r.db.Exec(`
			UPDATE users SET trial_used = TRUE, updated_at = NOW() WHERE telegram_user_id = ?
		`, telegramUserID).Error
	})

	if r.Notifier != nil {
		r.Notifier(fmt.Sprintf("Activation: tg=%d plan=%s until %s",
			telegramUserID, result.Plan.Code, result.PeriodEnd.Format(time.RFC3339)))
	}

	return result, nil
}

// ---------- helpers ----------

func buildProviderRef(subscriptionID, customerID string, addonPacks int, checkoutSessionID string) string {
	if customerID == "" {
		customerID = "?"
	}
	if checkoutSessionID == "" {
		checkoutSessionID = "?"
	}
	return fmt.Sprintf("sub:%s|customer:%s|addon_packs=%d|cs:%s",
		subscriptionID, customerID, addonPacks, checkoutSessionID)
}

func addonPacksFromRef(providerRef string) int {
	for _, part := range strings.Split(providerRef, "|") {
		if v, ok := strings.CutPrefix(part, "addon_packs="); ok {
			return atoi(v)
		}
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}
