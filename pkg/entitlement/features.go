package entitlement

import (
	"encoding/json"
	"strconv"
)

// FeatureMap is the aggregated plan_features key→value set. Values are raw
// JSON: numbers may arrive as numbers or numeric strings depending on how
// the catalog was seeded.
type FeatureMap map[string]json.RawMessage

func (f FeatureMap) Int(key string, def int) int {
	raw, ok := f[key]
	if !ok || len(raw) == 0 {
		return def
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}

	return def
}

// Strings returns nil when the key is absent or malformed; callers treat
// nil as "no restriction".
func (f FeatureMap) Strings(key string) []string {
	raw, ok := f[key]
	if !ok || len(raw) == 0 {
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
