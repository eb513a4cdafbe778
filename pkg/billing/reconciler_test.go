package billing

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gdb, mock
}

func newTestReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	db, mock := newTestDB(t)
	return NewReconciler(db, testPrices(), NewTokenStore(db)), mock
}

func stripeEvent(id, typ, raw string) *stripe.Event {
	return &stripe.Event{
		ID:   id,
		Type: typ,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestBuildProviderRef(t *testing.T) {
	ref := buildProviderRef("sub_1", "cus_1", 2, "cs_1")
	assert.Equal(t, "sub:sub_1|customer:cus_1|addon_packs=2|cs:cs_1", ref)

	ref = buildProviderRef("sub_1", "", 0, "")
	assert.Equal(t, "sub:sub_1|customer:?|addon_packs=0|cs:?", ref)
}

func TestAddonPacksFromRef(t *testing.T) {
	assert.Equal(t, 2, addonPacksFromRef("sub:sub_1|customer:cus_1|addon_packs=2|cs:cs_1"))
	assert.Equal(t, 0, addonPacksFromRef("sub:sub_1|customer:cus_1|cs:cs_1"))
	assert.Equal(t, 0, addonPacksFromRef(""))
	assert.Equal(t, 0, addonPacksFromRef("addon_packs=junk"))
}

// ---------- delivery log ----------

func TestRecordDeliveryFresh(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("INSERT INTO stripe_webhook_events").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("received"))
	mock.ExpectExec("SET status = 'processing'").
		WithArgs("evt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := r.RecordDelivery(stripeEvent("evt_1", "checkout.session.completed", `{}`), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeliveryReplayOfProcessed(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("INSERT INTO stripe_webhook_events").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processed"))

	done, err := r.RecordDelivery(stripeEvent("evt_1", "checkout.session.completed", `{}`), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------- checkout.session.completed ----------

func TestHandleCheckoutCompletedMintsToken(t *testing.T) {
	r, mock := newTestReconciler(t)

	// user resolved via stripe customer id
	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WithArgs("cus_1", uint(9), "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activation_tokens").
		WithArgs(sqlmock.AnyArg(), uint(2), "stripe", "sub:sub_1|customer:cus_1|addon_packs=0|cs:cs_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"fyd_plan_id": "2"}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCheckoutCompletedMergesExistingToken(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// re-delivery refreshes provider_ref on the existing row only
	mock.ExpectExec("UPDATE activation_tokens").
		WithArgs("sub:sub_1|customer:cus_1|addon_packs=0|cs:cs_1", "tok123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"fyd_plan_id": "2", "fyd_activation_token": "tok123"}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCheckoutCompletedPlainMetadataKeys(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activation_tokens").
		WithArgs(sqlmock.AnyArg(), uint(3), "stripe", "sub:sub_1|customer:cus_1|addon_packs=1|cs:cs_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"plan_id": "3", "addon_packs": "1"}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCheckoutCompletedIgnoresNonSubscription(t *testing.T) {
	r, mock := newTestReconciler(t)

	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "payment",
		"customer": "cus_1"
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCheckoutCompletedDiscardsUnmappable(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// no plan id and no plan_code alias: nothing to grant, no token
	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCheckoutCompletedAddon(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO addon_purchases").
		WithArgs("cs_1", uint(9), 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(3, uint(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET extra_link_packs").
		WithArgs(3, uint(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"fyd_kind": "addon10", "fyd_addon_packs": "3"}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAddonPurchaseIsIdempotent(t *testing.T) {
	r, mock := newTestReconciler(t)

	// conflict on the checkout session id means the grant already happened
	mock.ExpectExec("INSERT INTO addon_purchases").
		WithArgs("cs_1", uint(9), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.applyAddonPurchase("cs_1", 9, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------- customer.subscription.* ----------

func TestHandleSubscriptionEventUpserts(t *testing.T) {
	r, mock := newTestReconciler(t)
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(uint(9), PlanIDStarter, "cus_1", "sub_1", "active", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event := stripeEvent("evt_1", "customer.subscription.updated", `{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"current_period_end": `+jsonInt(periodEnd)+`,
		"items": {"data": [{"quantity": 1, "price": {"id": "price_starter"}}]}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionEventDeletedCancels(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(uint(9), PlanIDStarter, "cus_1", "sub_1", "canceled", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// no snapshot refresh for a canceled subscription

	event := stripeEvent("evt_1", "customer.subscription.deleted", `{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"items": {"data": [{"quantity": 1, "price": {"id": "price_starter"}}]}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionEventUnknownPrice(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	event := stripeEvent("evt_1", "customer.subscription.updated", `{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"items": {"data": [{"quantity": 1, "price": {"id": "price_mystery"}}]},
		"metadata": {}
	}`)
	err := r.HandleEvent(event)
	assert.True(t, errors.Is(err, ErrPlanMappingFailed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSubscriptionEventUnknownCustomer(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectQuery("FROM users WHERE stripe_customer_id").
		WithArgs("cus_ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	event := stripeEvent("evt_1", "customer.subscription.updated", `{
		"id": "sub_1",
		"customer": "cus_ghost",
		"status": "active",
		"items": {"data": [{"quantity": 1, "price": {"id": "price_starter"}}]}
	}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	r, mock := newTestReconciler(t)

	event := stripeEvent("evt_1", "invoice.paid", `{}`)
	require.NoError(t, r.HandleEvent(event))
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------- activation ----------

func tokenRows(planID uint, provider, ref string, expires time.Time, usedAt *time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"token", "plan_id", "provider", "provider_ref", "expires_at", "used_at"}).
		AddRow("tok123", planID, provider, ref, expires, usedAt)
}

func TestActivateSuccess(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(2, "stripe", "sub:sub_1|customer:cus_1|addon_packs=0|cs:cs_1",
			time.Now().Add(time.Hour), nil))
	mock.ExpectQuery("FROM users WHERE telegram_user_id").
		WithArgs(int64(555)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "extra_link_packs"}).AddRow(9, 0))
	mock.ExpectQuery("FROM plans WHERE id").
		WithArgs(uint(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(2, "starter", "Starter"))
	mock.ExpectQuery("FROM plan_features").
		WithArgs(uint(2)).
		WillReturnRows(sqlmock.NewRows([]string{"feature_key", "feature_value"}))
	mock.ExpectExec("UPDATE activation_tokens").
		WithArgs(int64(555), "tok123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(uint(9), uint(2), "stripe", "sub:sub_1|customer:cus_1|addon_packs=0|cs:cs_1", sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("starter", sqlmock.AnyArg(), sqlmock.AnyArg(), uint(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("SET trial_used = TRUE").
		WithArgs(int64(555)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var notified string
	r.Notifier = func(text string) { notified = text }

	result, err := r.Activate("tok123", 555)
	require.NoError(t, err)
	assert.Equal(t, "starter", result.Plan.Code)
	assert.Equal(t, "Starter", result.Plan.Name)

	// default starter entitlement period
	expected := time.Now().Add(30 * 24 * time.Hour)
	assert.WithinDuration(t, expected, result.PeriodEnd, time.Minute)
	assert.Contains(t, notified, "tg=555")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivatePlatinumCarriesAddonPacks(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(4, "stripe", "sub:sub_1|customer:cus_1|addon_packs=2|cs:cs_1",
			time.Now().Add(time.Hour), nil))
	mock.ExpectQuery("FROM users WHERE telegram_user_id").
		WithArgs(int64(555)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "extra_link_packs"}).AddRow(9, 0))
	mock.ExpectQuery("FROM plans WHERE id").
		WithArgs(uint(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(4, "platinum", "Platinum"))
	mock.ExpectQuery("FROM plan_features").
		WithArgs(uint(4)).
		WillReturnRows(sqlmock.NewRows([]string{"feature_key", "feature_value"}))
	mock.ExpectExec("UPDATE activation_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(uint(9), uint(4), "stripe", "sub:sub_1|customer:cus_1|addon_packs=2|cs:cs_1", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("SET trial_used = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := r.Activate("tok123", 555)
	require.NoError(t, err)
	assert.Equal(t, "platinum", result.Plan.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A platinum renewal checkout carries addon_packs=0 in its ref. Redeeming
// its token must keep the packs the user already paid for: the new
// subscription row inherits them and the users update never touches
// extra_link_packs.
func TestActivateRenewalKeepsPurchasedAddonPacks(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(4, "stripe", "sub:sub_2|customer:cus_1|addon_packs=0|cs:cs_2",
			time.Now().Add(time.Hour), nil))
	mock.ExpectQuery("FROM users WHERE telegram_user_id").
		WithArgs(int64(555)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "extra_link_packs"}).AddRow(9, 3))
	mock.ExpectQuery("FROM plans WHERE id").
		WithArgs(uint(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(4, "platinum", "Platinum"))
	mock.ExpectQuery("FROM plan_features").
		WithArgs(uint(4)).
		WillReturnRows(sqlmock.NewRows([]string{"feature_key", "feature_value"}))
	mock.ExpectExec("UPDATE activation_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(uint(9), uint(4), "stripe", "sub:sub_2|customer:cus_1|addon_packs=0|cs:cs_2", sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE users").
		WithArgs("platinum", sqlmock.AnyArg(), sqlmock.AnyArg(), uint(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("SET trial_used = TRUE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := r.Activate("tok123", 555)
	require.NoError(t, err)
	assert.Equal(t, "platinum", result.Plan.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateTokenNotFound(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"token", "plan_id", "provider", "provider_ref", "expires_at", "used_at"}))
	mock.ExpectRollback()

	_, err := r.Activate("ghost", 555)
	assert.True(t, errors.Is(err, ErrTokenNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateTokenAlreadyUsed(t *testing.T) {
	r, mock := newTestReconciler(t)
	used := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(2, "stripe", "ref", time.Now().Add(time.Hour), &used))
	mock.ExpectRollback()

	_, err := r.Activate("tok123", 555)
	assert.True(t, errors.Is(err, ErrTokenAlreadyUsed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateTokenExpired(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(2, "stripe", "ref", time.Now().Add(-time.Minute), nil))
	mock.ExpectRollback()

	_, err := r.Activate("tok123", 555)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateUnknownTelegramUser(t *testing.T) {
	r, mock := newTestReconciler(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("tok123").
		WillReturnRows(tokenRows(2, "stripe", "ref", time.Now().Add(time.Hour), nil))
	mock.ExpectQuery("FROM users WHERE telegram_user_id").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := r.Activate("tok123", 404)
	assert.True(t, errors.Is(err, ErrUserNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func jsonInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
