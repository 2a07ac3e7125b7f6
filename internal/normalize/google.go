package normalize

import (
	"encoding/json"

	"github.com/yanizio/adsync/internal/canonical"
)

// Google Ads REST returns int64 fields as strings and nests every resource
// under its own key.

var googleStatus = map[string]string{
	"ENABLED": canonical.StatusActive,
	"PAUSED":  canonical.StatusPaused,
	"REMOVED": canonical.StatusRemoved,
}

var googleChannel = map[string]string{
	"SEARCH":          "search",
	"DISPLAY":         "display",
	"SHOPPING":        "shopping",
	"VIDEO":           "video",
	"MULTI_CHANNEL":   "app_promotion",
	"PERFORMANCE_MAX": "performance_max",
	"DEMAND_GEN":      "demand_gen",
	"DISCOVERY":       "demand_gen",
	"LOCAL":           "local",
	"SMART":           "smart",
	"HOTEL":           "travel",
	"TRAVEL":          "travel",
}

// googleOpenEnd is the end date Google reports for campaigns without one.
const googleOpenEnd = "2037-12-30"

type googleCampaignRow struct {
	Campaign struct {
		ID                     idString `json:"id"`
		Name                   string   `json:"name"`
		Status                 string   `json:"status"`
		AdvertisingChannelType string   `json:"advertisingChannelType"`
		StartDate              string   `json:"startDate"`
		EndDate                string   `json:"endDate"`
	} `json:"campaign"`
	CampaignBudget struct {
		AmountMicros      num `json:"amountMicros"`
		TotalAmountMicros num `json:"totalAmountMicros"`
	} `json:"campaignBudget"`
}

type googleMetricRow struct {
	Campaign struct {
		ID idString `json:"id"`
	} `json:"campaign"`
	Segments struct {
		Date string `json:"date"`
	} `json:"segments"`
	Metrics struct {
		Impressions      num `json:"impressions"`
		Clicks           num `json:"clicks"`
		Conversions      num `json:"conversions"`
		ConversionsValue num `json:"conversionsValue"`
		CostMicros       num `json:"costMicros"`
	} `json:"metrics"`
}

type googleMapper struct{}

func (googleMapper) campaign(raw json.RawMessage) (campaignFields, error) {
	var r googleCampaignRow
	err := json.Unmarshal(raw, &r)
	f := campaignFields{
		ExternalID:  string(r.Campaign.ID),
		Name:        r.Campaign.Name,
		Status:      lookupOr(googleStatus, r.Campaign.Status, canonical.StatusActive),
		Objective:   lookupOr(googleChannel, r.Campaign.AdvertisingChannelType, canonical.ObjectiveUnknown),
		DailyBudget: r.CampaignBudget.AmountMicros.nullable(GoogleMicrosToCurrency),
		TotalBudget: r.CampaignBudget.TotalAmountMicros.nullable(GoogleMicrosToCurrency),
		Start:       dayPtr(r.Campaign.StartDate, "2006-01-02"),
	}
	if r.Campaign.EndDate != googleOpenEnd {
		f.End = dayPtr(r.Campaign.EndDate, "2006-01-02")
	}
	return f, err
}

func (googleMapper) metric(raw json.RawMessage) (metricFields, error) {
	var r googleMetricRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return metricFields{}, err
	}
	return metricFields{
		CampaignExternalID: string(r.Campaign.ID),
		Date:               day(r.Segments.Date, "2006-01-02"),
		Impressions:        r.Metrics.Impressions.count(),
		Clicks:             r.Metrics.Clicks.count(),
		Conversions:        r.Metrics.Conversions.Decimal,
		Spend:              GoogleMicrosToCurrency(r.Metrics.CostMicros.Decimal),
		Revenue:            r.Metrics.ConversionsValue.Decimal,
	}, nil
}
