package schema

import (
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
)

// LinksMeta describes where monitored links live in the current schema.
// EnabledCol and DeletedCol are optional ("" when the schema has none).
type LinksMeta struct {
	Table      string
	UserCol    string
	URLCol     string
	EnabledCol string
	DeletedCol string
}

// ItemsMeta is a best-effort mapping for the link_items-like table. Any
// empty column means "feature unavailable", not an error.
type ItemsMeta struct {
	Table        string
	LinkCol      string
	TimestampCol string
	URLCol       string
	TitleCol     string
	PriceCol     string
	CurrencyCol  string
}

// Prober discovers the links/link_items table shape once per process.
// The cache is structural metadata, safe to share between requests; it is
// only refreshed through Invalidate (schema changes require a redeploy).
type Prober struct {
	db *gorm.DB

	mu       sync.Mutex
	links    *LinksMeta
	linksErr error
	items    *ItemsMeta
	itemsErr error
	probed   bool
}

func NewProber(db *gorm.DB) *Prober {
	return &Prober{db: db}
}

// LinksMeta returns the detected links table. Detection failure is cached:
// it means the schema is broken and a migration plus restart (or explicit
// Invalidate) is required.
func (p *Prober) LinksMeta() (*LinksMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.probeLocked(); err != nil {
		return nil, err
	}
	return p.links, p.linksErr
}

func (p *Prober) LinkItemsMeta() (*ItemsMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.probeLocked(); err != nil {
		return nil, err
	}
	return p.items, p.itemsErr
}

func (p *Prober) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = false
	p.links, p.linksErr = nil, nil
	p.items, p.itemsErr = nil, nil
}

func (p *Prober) probeLocked() error {
	if p.probed {
		return nil
	}

	type columnRow struct {
		TableName  string
		ColumnName string
	}
	var rows []columnRow
	err := p.db.Raw(`
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`).Scan(&rows).Error
	if err != nil {
		return err
	}

	tables := newTableSet()
	for _, r := range rows {
		tables.add(r.TableName, r.ColumnName)
	}

	p.links, p.linksErr = detectLinksMeta(tables)
	p.items, p.itemsErr = detectItemsMeta(tables)
	p.probed = true
	return nil
}

// tableSet keeps first-seen table order so score ties resolve
// deterministically.
type tableSet struct {
	order []string
	cols  map[string]map[string]bool
}

func newTableSet() *tableSet {
	return &tableSet{cols: map[string]map[string]bool{}}
}

func (ts *tableSet) add(table, column string) {
	if _, ok := ts.cols[table]; !ok {
		ts.order = append(ts.order, table)
		ts.cols[table] = map[string]bool{}
	}
	ts.cols[table][column] = true
}

func pickFirst(cols map[string]bool, names ...string) string {
	for _, n := range names {
		if cols[n] {
			return n
		}
	}
	return ""
}

func detectLinksMeta(tables *tableSet) (*LinksMeta, error) {
	var best *LinksMeta
	bestScore := -1

	for _, t := range tables.order {
		cols := tables.cols[t]

		userCol := pickFirst(cols, "user_id", "telegram_user_id")
		urlCol := pickFirst(cols, "url", "link", "link_url", "search_url", "query_url")
		if userCol == "" || urlCol == "" {
			continue
		}

		enabledCol := pickFirst(cols, "enabled", "is_enabled", "active", "is_active", "disabled", "is_disabled")
		deletedCol := pickFirst(cols, "deleted_at", "removed_at", "deleted")

		score := 10 // has user+url
		if cols["id"] {
			score += 2
		}
		if enabledCol != "" {
			score += 2
		}
		if cols["title"] || cols["name"] || cols["label"] {
			score++
		}
		if strings.Contains(strings.ToLower(t), "link") {
			score += 2
		}

		if score > bestScore {
			bestScore = score
			best = &LinksMeta{
				Table:      t,
				UserCol:    userCol,
				URLCol:     urlCol,
				EnabledCol: enabledCol,
				DeletedCol: deletedCol,
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("schema: no links table detected (need user_id/telegram_user_id + url-like column)")
	}
	return best, nil
}

func detectItemsMeta(tables *tableSet) (*ItemsMeta, error) {
	var best *ItemsMeta
	bestScore := -1

	for _, t := range tables.order {
		cols := tables.cols[t]

		linkCol := pickFirst(cols, "link_id", "search_id")
		if linkCol == "" {
			continue
		}

		score := 5
		if strings.Contains(strings.ToLower(t), "item") {
			score += 3
		}
		if cols["item_key"] {
			score += 2
		}

		if score > bestScore {
			bestScore = score
			best = &ItemsMeta{
				Table:        t,
				LinkCol:      linkCol,
				TimestampCol: pickFirst(cols, "first_seen_at", "created_at", "inserted_at", "seen_at"),
				URLCol:       pickFirst(cols, "url", "link", "item_url"),
				TitleCol:     pickFirst(cols, "title", "name", "label"),
				PriceCol:     pickFirst(cols, "price", "amount"),
				CurrencyCol:  pickFirst(cols, "currency", "currency_code"),
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("schema: no link_items table detected")
	}
	return best, nil
}

// QuoteIdent quotes a probed identifier for use in hand-built SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
