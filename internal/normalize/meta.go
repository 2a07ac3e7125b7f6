package normalize

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yanizio/adsync/internal/canonical"
)

var metaStatus = map[string]string{
	"ACTIVE":   canonical.StatusActive,
	"PAUSED":   canonical.StatusPaused,
	"ARCHIVED": canonical.StatusEnded,
	"DELETED":  canonical.StatusRemoved,
}

var metaObjective = map[string]string{
	"OUTCOME_AWARENESS":     "awareness",
	"OUTCOME_TRAFFIC":       "traffic",
	"OUTCOME_ENGAGEMENT":    "engagement",
	"OUTCOME_LEADS":         "leads",
	"OUTCOME_APP_PROMOTION": "app_promotion",
	"OUTCOME_SALES":         "sales",
	"BRAND_AWARENESS":       "awareness",
	"REACH":                 "awareness",
	"LINK_CLICKS":           "traffic",
	"POST_ENGAGEMENT":       "engagement",
	"VIDEO_VIEWS":           "video",
	"LEAD_GENERATION":       "leads",
	"APP_INSTALLS":          "app_promotion",
	"CONVERSIONS":           "conversions",
	"PRODUCT_CATALOG_SALES": "sales",
}

// Action types counted as conversions, most specific first.  Meta reports
// the same purchase under several aliases, so only the first present one
// is used.
var (
	metaConversionActions = []string{"purchase", "omni_purchase", "offsite_conversion.fb_pixel_purchase", "lead", "complete_registration"}
	metaRevenueActions    = []string{"purchase", "omni_purchase", "offsite_conversion.fb_pixel_purchase"}
)

var metaTimeLayouts = []string{"2006-01-02T15:04:05-0700", time.RFC3339, "2006-01-02"}

type metaCampaign struct {
	ID              idString `json:"id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	Objective       string   `json:"objective"`
	DailyBudget     num      `json:"daily_budget"`
	LifetimeBudget  num      `json:"lifetime_budget"`
	StartTime       string   `json:"start_time"`
	StopTime        string   `json:"stop_time"`
	EffectiveStatus string   `json:"effective_status"`
}

type metaAction struct {
	ActionType string `json:"action_type"`
	Value      num    `json:"value"`
}

type metaInsight struct {
	CampaignID   idString     `json:"campaign_id"`
	DateStart    string       `json:"date_start"`
	Impressions  num          `json:"impressions"`
	Clicks       num          `json:"clicks"`
	Spend        num          `json:"spend"`
	Actions      []metaAction `json:"actions"`
	ActionValues []metaAction `json:"action_values"`
}

type metaMapper struct{}

func (metaMapper) campaign(raw json.RawMessage) (campaignFields, error) {
	var c metaCampaign
	err := json.Unmarshal(raw, &c)
	status := c.Status
	if status == "" {
		status = c.EffectiveStatus
	}
	return campaignFields{
		ExternalID:  string(c.ID),
		Name:        c.Name,
		Status:      lookupOr(metaStatus, status, canonical.StatusActive),
		Objective:   lookupOr(metaObjective, c.Objective, canonical.ObjectiveUnknown),
		DailyBudget: c.DailyBudget.nullable(MetaMinorUnitsToCurrency),
		TotalBudget: c.LifetimeBudget.nullable(MetaMinorUnitsToCurrency),
		Start:       dayPtr(c.StartTime, metaTimeLayouts...),
		End:         dayPtr(c.StopTime, metaTimeLayouts...),
	}, err
}

func (metaMapper) metric(raw json.RawMessage) (metricFields, error) {
	var r metaInsight
	if err := json.Unmarshal(raw, &r); err != nil {
		return metricFields{}, err
	}
	return metricFields{
		CampaignExternalID: string(r.CampaignID),
		Date:               day(r.DateStart, "2006-01-02"),
		Impressions:        r.Impressions.count(),
		Clicks:             r.Clicks.count(),
		Conversions:        firstAction(r.Actions, metaConversionActions),
		Spend:              MetaSpendToCurrency(r.Spend.Decimal),
		Revenue:            MetaSpendToCurrency(firstAction(r.ActionValues, metaRevenueActions)),
	}, nil
}

func firstAction(actions []metaAction, types []string) decimal.Decimal {
	for _, t := range types {
		for _, a := range actions {
			if a.ActionType == t {
				return a.Value.Decimal
			}
		}
	}
	return decimal.Zero
}
