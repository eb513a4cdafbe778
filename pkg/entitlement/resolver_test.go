package entitlement

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func future(t *testing.T) *time.Time {
	t.Helper()
	ts := time.Now().Add(10 * 24 * time.Hour)
	return &ts
}

func past(t *testing.T) *time.Time {
	t.Helper()
	ts := time.Now().Add(-24 * time.Hour)
	return &ts
}

func TestComputeBaseLimits(t *testing.T) {
	cases := []struct {
		code  string
		links int
		daily int
	}{
		{"trial", 5, 50},
		{"starter", 10, 200},
		{"growth", 50, 500},
		{"platinum", 200, 2000},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			ent := Compute(tc.code, 1, "Plan", future(t), 0, FeatureMap{}, time.Now())
			assert.True(t, ent.Active)
			assert.Equal(t, tc.links, ent.LinksLimitTotal)
			assert.Equal(t, tc.daily, ent.DailyNotificationLimit)
		})
	}
}

func TestComputeAddonPacksOnlyExtendPlatinum(t *testing.T) {
	ent := Compute("platinum", 4, "Platinum", future(t), 3, FeatureMap{}, time.Now())
	assert.Equal(t, 230, ent.LinksLimitTotal)

	// lower tiers carry the packs but do not count them
	ent = Compute("starter", 2, "Starter", future(t), 3, FeatureMap{}, time.Now())
	assert.Equal(t, 10, ent.LinksLimitTotal)
	assert.Equal(t, 3, ent.ExtraLinkPacks)
}

func TestComputeExpiredKeepsHistory(t *testing.T) {
	features := FeatureMap{"history_limit": []byte(`100`)}
	ent := Compute("platinum", 4, "Platinum", past(t), 2, features, time.Now())

	assert.False(t, ent.Active)
	assert.Equal(t, "platinum", ent.PlanCode)
	assert.Equal(t, 0, ent.LinksLimitTotal)
	assert.Equal(t, 0, ent.DailyNotificationLimit)
	assert.Equal(t, 100, ent.HistoryLimit)
}

func TestComputeNoPlan(t *testing.T) {
	ent := Compute("", 0, "", nil, 0, FeatureMap{}, time.Now())
	assert.Equal(t, "none", ent.PlanCode)
	assert.False(t, ent.Active)
	assert.Equal(t, 0, ent.LinksLimitTotal)
}

func TestComputeNilExpiryMeansNoExpiry(t *testing.T) {
	ent := Compute("starter", 2, "Starter", nil, 0, FeatureMap{}, time.Now())
	assert.True(t, ent.Active)
	assert.Equal(t, 10, ent.LinksLimitTotal)
}

func TestComputeFeatureOverrides(t *testing.T) {
	features := FeatureMap{
		"links_limit":               []byte(`25`),
		"daily_notifications_limit": []byte(`"75"`),
		"sources_allowed":           []byte(`["olx"]`),
	}
	ent := Compute("starter", 2, "Starter", future(t), 0, features, time.Now())

	assert.Equal(t, 25, ent.LinksLimitTotal)
	assert.Equal(t, 75, ent.DailyNotificationLimit)
	assert.Equal(t, []string{"olx"}, ent.SourcesAllowed)
}

func TestComputeIsPure(t *testing.T) {
	features := FeatureMap{"links_limit": []byte(`25`)}
	now := time.Now()
	exp := future(t)

	a := Compute("platinum", 4, "Platinum", exp, 2, features, now)
	b := Compute("platinum", 4, "Platinum", exp, 2, features, now)
	assert.Equal(t, a, b)
}

func TestDurationDays(t *testing.T) {
	assert.Equal(t, 3, DurationDays("trial", FeatureMap{}))
	assert.Equal(t, 30, DurationDays("starter", FeatureMap{}))
	assert.Equal(t, 30, DurationDays("platinum", FeatureMap{}))
	assert.Equal(t, 14, DurationDays("starter", FeatureMap{"duration_days": []byte(`14`)}))
	assert.Equal(t, 7, DurationDays("trial", FeatureMap{"duration_days": []byte(`7`)}))
}

// ---------- DB-backed resolution ----------

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

func userRows(id uint, planName string, expiresAt *time.Time, packs int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "telegram_user_id", "plan_name", "plan_expires_at", "extra_link_packs"}).
		AddRow(id, 555, planName, expiresAt, packs)
}

func TestResolveActiveSubscriptionWinsOverSnapshot(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewResolver(gdb)

	subEnd := time.Now().Add(20 * 24 * time.Hour)

	// snapshot says the starter plan lapsed; a live platinum row exists
	mock.ExpectQuery(`FROM "users" WHERE "users"."id"`).
		WillReturnRows(userRows(9, "starter", past(t), 5))
	mock.ExpectQuery(`FROM "subscriptions" WHERE \(user_id`).
		WithArgs(uint(9), "active", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan_id", "status", "current_period_end", "addon_qty"}).
			AddRow(31, 9, 4, "active", subEnd, 2))
	mock.ExpectQuery(`FROM "plans" WHERE "plans"."id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(4, "platinum", "Platinum"))
	mock.ExpectQuery(`FROM "plan_features" WHERE plan_id`).
		WithArgs(uint(4)).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "feature_key", "feature_value"}))

	ent, err := r.Resolve(9)
	require.NoError(t, err)
	assert.Equal(t, uint(9), ent.UserID)
	assert.Equal(t, "platinum", ent.PlanCode)
	assert.True(t, ent.Active)

	// addon qty comes from the subscription row, not the stale snapshot
	assert.Equal(t, 2, ent.ExtraLinkPacks)
	assert.Equal(t, 220, ent.LinksLimitTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveFallsBackToSnapshot(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewResolver(gdb)

	mock.ExpectQuery(`FROM "users" WHERE "users"."id"`).
		WillReturnRows(userRows(9, "growth", future(t), 0))
	mock.ExpectQuery(`FROM "subscriptions" WHERE \(user_id`).
		WithArgs(uint(9), "active", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM "plans" WHERE code`).
		WithArgs("growth", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name"}).AddRow(3, "growth", "Growth"))
	mock.ExpectQuery(`FROM "plan_features" WHERE plan_id`).
		WithArgs(uint(3)).
		WillReturnRows(sqlmock.NewRows([]string{"plan_id", "feature_key", "feature_value"}))

	ent, err := r.Resolve(9)
	require.NoError(t, err)
	assert.Equal(t, "growth", ent.PlanCode)
	assert.Equal(t, uint(3), ent.PlanID)
	assert.True(t, ent.Active)
	assert.Equal(t, 50, ent.LinksLimitTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveNoPlanAnywhere(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewResolver(gdb)

	mock.ExpectQuery(`FROM "users" WHERE "users"."id"`).
		WillReturnRows(userRows(9, "none", nil, 0))
	mock.ExpectQuery(`FROM "subscriptions" WHERE \(user_id`).
		WithArgs(uint(9), "active", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ent, err := r.Resolve(9)
	require.NoError(t, err)
	assert.Equal(t, "none", ent.PlanCode)
	assert.False(t, ent.Active)
	assert.Equal(t, 0, ent.LinksLimitTotal)
	require.NoError(t, mock.ExpectationsWereMet())
}
