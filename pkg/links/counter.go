package links

import (
	"strings"

	"gorm.io/gorm"

	"findyourdeal_backend/pkg/schema"
)

// Counter answers "how many links does user X have" without assuming a
// fixed schema; the WHERE clause is built from probed column names.
type Counter struct {
	db     *gorm.DB
	prober *schema.Prober
}

func NewCounter(db *gorm.DB, prober *schema.Prober) *Counter {
	return &Counter{db: db, prober: prober}
}

func (c *Counter) CountAll(userID uint) (int, error) {
	return c.count(userID, false)
}

func (c *Counter) CountEnabled(userID uint) (int, error) {
	return c.count(userID, true)
}

func (c *Counter) count(userID uint, onlyEnabled bool) (int, error) {
	meta, err := c.prober.LinksMeta()
	if err != nil {
		return 0, err
	}

	var n int
	if err := c.db.Raw(buildCountQuery(meta, onlyEnabled), userID).Scan(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func buildCountQuery(meta *schema.LinksMeta, onlyEnabled bool) string {
	where := []string{schema.QuoteIdent(meta.UserCol) + " = ?"}

	if meta.DeletedCol != "" {
		where = append(where, schema.QuoteIdent(meta.DeletedCol)+" IS NULL")
	}

	if onlyEnabled && meta.EnabledCol != "" {
		// a "disabled"-style column has inverted polarity
		if strings.Contains(meta.EnabledCol, "disabled") {
			where = append(where, schema.QuoteIdent(meta.EnabledCol)+" = false")
		} else {
			where = append(where, schema.QuoteIdent(meta.EnabledCol)+" = true")
		}
	}

	return "SELECT COUNT(*) FROM " + schema.QuoteIdent(meta.Table) +
		" WHERE " + strings.Join(where, " AND ")
}
