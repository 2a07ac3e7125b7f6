// Package canonical holds the platform-agnostic campaign and metrics shapes
// every adapter's output is normalized into, and the MySQL store that
// persists them with idempotent upserts.
package canonical

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign status vocabulary.
const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusEnded   = "ended"
	StatusRemoved = "removed"
)

// ObjectiveUnknown is stored when a platform objective has no mapping.
const ObjectiveUnknown = "unknown"

// Granularity is the time bucket of a MetricsRecord.
type Granularity string

const GranularityDaily Granularity = "daily"

// Campaign mirrors one row of the `campaign` table.  The natural key is
// (TenantID, Platform, ExternalID).
type Campaign struct {
	ID           uint64              `db:"id"`
	TenantID     uint64              `db:"tenant_id"`
	ConnectionID uint64              `db:"connection_id"`
	Platform     string              `db:"platform"`
	ExternalID   string              `db:"external_id"`
	Name         string              `db:"name"`
	Status       string              `db:"status"`
	Objective    string              `db:"objective"`
	DailyBudget  decimal.NullDecimal `db:"daily_budget"`
	TotalBudget  decimal.NullDecimal `db:"total_budget"`
	StartDate    *time.Time          `db:"start_date"`
	EndDate      *time.Time          `db:"end_date"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

// MetricsRecord mirrors one row of `metrics_record`.  CreativeID and
// AudienceID are empty for campaign-level rows.  The ratio fields are
// derived from the counters and must be recomputed on every pass.
type MetricsRecord struct {
	ID          uint64          `db:"id"`
	TenantID    uint64          `db:"tenant_id"`
	CampaignID  uint64          `db:"campaign_id"`
	CreativeID  string          `db:"creative_id"`
	AudienceID  string          `db:"audience_id"`
	Date        time.Time       `db:"date"`
	Granularity Granularity     `db:"granularity"`
	Impressions int64           `db:"impressions"`
	Clicks      int64           `db:"clicks"`
	Conversions decimal.Decimal `db:"conversions"`
	Spend       decimal.Decimal `db:"spend"`
	Revenue     decimal.Decimal `db:"revenue"`
	CTR         decimal.Decimal `db:"ctr"`
	CPC         decimal.Decimal `db:"cpc"`
	CPA         decimal.Decimal `db:"cpa"`
	ROAS        decimal.Decimal `db:"roas"`
	ROI         decimal.Decimal `db:"roi"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Lookup maps a platform-native campaign id to the canonical campaign id.
type Lookup map[string]uint64

// Resolve returns the canonical id for externalID.
func (l Lookup) Resolve(externalID string) (uint64, bool) {
	id, ok := l[externalID]
	return id, ok
}
