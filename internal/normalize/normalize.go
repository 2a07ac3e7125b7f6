// internal/normalize/normalize.go
//
// Platform payload → canonical record mapping.
//
// Context
// -------
// Adapters hand over platform-native JSON.  This package decodes each
// platform's shape, maps its status and objective vocabularies onto the
// canonical ones, converts money through the named converters in
// convert.go, and derives ratios through ComputeRatios.
//
// Contracts
// ---------
//   - Campaign is total.  Unmapped status becomes "active", unmapped
//     objective becomes "unknown", and an undecodable payload still yields a
//     record (with whatever fields decoded, possibly an empty ExternalID
//     which the orchestrator skips).
//   - Metric returns nil when the row cannot be decoded, has no date, or its
//     campaign id is not in the lookup.  Dropped rows are never errors.
//
// Notes
// -----
//   - Platform mappers are selected from a map keyed by platform, so adding
//     a platform adds one file.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yanizio/adsync/internal/canonical"
	"github.com/yanizio/adsync/internal/platform"
)

// Scope carries the ownership fields stamped onto every record.
type Scope struct {
	TenantID     uint64
	ConnectionID uint64
}

// campaignFields is what a mapper extracts from one campaign payload.
type campaignFields struct {
	ExternalID  string
	Name        string
	Status      string
	Objective   string
	DailyBudget decimal.NullDecimal
	TotalBudget decimal.NullDecimal
	Start       *time.Time
	End         *time.Time
}

// metricFields is what a mapper extracts from one metric row.  Money is
// already in currency units.
type metricFields struct {
	CampaignExternalID string
	Date               time.Time
	Impressions        int64
	Clicks             int64
	Conversions        decimal.Decimal
	Spend              decimal.Decimal
	Revenue            decimal.Decimal
}

type mapper interface {
	campaign(raw json.RawMessage) (campaignFields, error)
	metric(raw json.RawMessage) (metricFields, error)
}

var mappers = map[platform.Platform]mapper{
	platform.Google:   googleMapper{},
	platform.Meta:     metaMapper{},
	platform.TikTok:   tiktokMapper{},
	platform.LinkedIn: linkedinMapper{},
}

// Campaign maps one raw campaign into the canonical shape.
func Campaign(p platform.Platform, raw json.RawMessage, scope Scope) canonical.Campaign {
	var f campaignFields
	if m, ok := mappers[p]; ok {
		// A decode error still leaves the fields decoded before it.
		f, _ = m.campaign(raw)
	}
	if f.Status == "" {
		f.Status = canonical.StatusActive
	}
	if f.Objective == "" {
		f.Objective = canonical.ObjectiveUnknown
	}
	return canonical.Campaign{
		TenantID:     scope.TenantID,
		ConnectionID: scope.ConnectionID,
		Platform:     string(p),
		ExternalID:   strings.TrimSpace(f.ExternalID),
		Name:         f.Name,
		Status:       f.Status,
		Objective:    f.Objective,
		DailyBudget:  f.DailyBudget,
		TotalBudget:  f.TotalBudget,
		StartDate:    f.Start,
		EndDate:      f.End,
	}
}

// Metric maps one raw metric row, resolving its campaign through lookup.
// It returns nil when the row must be dropped.
func Metric(p platform.Platform, raw json.RawMessage, scope Scope, lookup canonical.Lookup) *canonical.MetricsRecord {
	m, ok := mappers[p]
	if !ok {
		return nil
	}
	f, err := m.metric(raw)
	if err != nil || f.Date.IsZero() {
		return nil
	}
	campaignID, ok := lookup.Resolve(strings.TrimSpace(f.CampaignExternalID))
	if !ok {
		return nil
	}
	r := ComputeRatios(f.Impressions, f.Clicks, f.Conversions, f.Spend, f.Revenue)
	return &canonical.MetricsRecord{
		TenantID:    scope.TenantID,
		CampaignID:  campaignID,
		Date:        f.Date,
		Granularity: canonical.GranularityDaily,
		Impressions: f.Impressions,
		Clicks:      f.Clicks,
		Conversions: f.Conversions,
		Spend:       f.Spend,
		Revenue:     f.Revenue,
		CTR:         r.CTR,
		CPC:         r.CPC,
		CPA:         r.CPA,
		ROAS:        r.ROAS,
		ROI:         r.ROI,
	}
}

// Campaigns maps a batch, skipping records without an external id.  A
// campaign listed twice keeps its last version.
func Campaigns(recs []platform.RawRecord, scope Scope) []canonical.Campaign {
	out := make([]canonical.Campaign, 0, len(recs))
	seen := make(map[string]int, len(recs))
	for _, r := range recs {
		c := Campaign(r.Platform, r.Data, scope)
		if c.ExternalID == "" {
			continue
		}
		if i, ok := seen[c.ExternalID]; ok {
			out[i] = c
			continue
		}
		seen[c.ExternalID] = len(out)
		out = append(out, c)
	}
	return out
}

// metricKey is the natural key of metrics_record.
type metricKey struct {
	campaignID             uint64
	creativeID, audienceID string
	date                   string
	granularity            canonical.Granularity
}

// Metrics maps a batch and reports how many rows were dropped.  Rows that
// share a natural key collapse into the last one, so the result counts
// distinct stored rows.
func Metrics(recs []platform.RawRecord, scope Scope, lookup canonical.Lookup) ([]canonical.MetricsRecord, int) {
	out := make([]canonical.MetricsRecord, 0, len(recs))
	seen := make(map[metricKey]int, len(recs))
	dropped := 0
	for _, r := range recs {
		m := Metric(r.Platform, r.Data, scope, lookup)
		if m == nil {
			dropped++
			continue
		}
		k := metricKey{m.CampaignID, m.CreativeID, m.AudienceID, m.Date.Format("2006-01-02"), m.Granularity}
		if i, ok := seen[k]; ok {
			out[i] = *m
			continue
		}
		seen[k] = len(out)
		out = append(out, *m)
	}
	return out, dropped
}

/* ------------------------------------------------------------------------ */
/* decoding helpers                                                          */
/* ------------------------------------------------------------------------ */

// num decodes a JSON number or a numeric string.  Empty strings and null
// decode as zero; "set" records whether a value was present.
type num struct {
	decimal.Decimal
	set bool
}

func (n *num) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		n.Decimal, n.set = decimal.Zero, false
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	n.Decimal, n.set = d, true
	return nil
}

func (n num) count() int64 { return n.Decimal.IntPart() }

// nullable returns a NullDecimal that is valid only when a non-zero value
// was present.
func (n num) nullable(conv func(decimal.Decimal) decimal.Decimal) decimal.NullDecimal {
	if !n.set || n.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(conv(n.Decimal))
}

// idString accepts ids encoded as strings or numbers.
type idString string

func (s *idString) UnmarshalJSON(b []byte) error {
	v := strings.TrimSpace(string(b))
	if v == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(v, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = idString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = idString(n.String())
	return nil
}

// day parses the first layout that matches and truncates to a UTC date.
func day(v string, layouts ...string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, v); err == nil {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

func dayPtr(v string, layouts ...string) *time.Time {
	t := day(v, layouts...)
	if t.IsZero() {
		return nil
	}
	return &t
}

func lookupOr(m map[string]string, key, def string) string {
	if v, ok := m[strings.ToUpper(strings.TrimSpace(key))]; ok {
		return v
	}
	return def
}
