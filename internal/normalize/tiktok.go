package normalize

import (
	"encoding/json"
	"strings"

	"github.com/yanizio/adsync/internal/canonical"
)

var tiktokStatus = map[string]string{
	"ENABLE":  canonical.StatusActive,
	"DISABLE": canonical.StatusPaused,
	"DELETE":  canonical.StatusRemoved,
}

var tiktokObjective = map[string]string{
	"REACH":           "awareness",
	"RF_REACH":        "awareness",
	"TRAFFIC":         "traffic",
	"VIDEO_VIEWS":     "video",
	"ENGAGEMENT":      "engagement",
	"APP_PROMOTION":   "app_promotion",
	"LEAD_GENERATION": "leads",
	"WEB_CONVERSIONS": "conversions",
	"PRODUCT_SALES":   "sales",
}

const (
	tiktokBudgetDay   = "BUDGET_MODE_DAY"
	tiktokBudgetTotal = "BUDGET_MODE_TOTAL"
)

type tiktokCampaign struct {
	CampaignID      idString `json:"campaign_id"`
	CampaignName    string   `json:"campaign_name"`
	OperationStatus string   `json:"operation_status"`
	ObjectiveType   string   `json:"objective_type"`
	Budget          num      `json:"budget"`
	BudgetMode      string   `json:"budget_mode"`
}

type tiktokReportRow struct {
	Dimensions struct {
		CampaignID  idString `json:"campaign_id"`
		StatTimeDay string   `json:"stat_time_day"`
	} `json:"dimensions"`
	Metrics struct {
		Spend              num `json:"spend"`
		Impressions        num `json:"impressions"`
		Clicks             num `json:"clicks"`
		Conversion         num `json:"conversion"`
		TotalPurchaseValue num `json:"total_purchase_value"`
	} `json:"metrics"`
}

type tiktokMapper struct{}

func (tiktokMapper) campaign(raw json.RawMessage) (campaignFields, error) {
	var c tiktokCampaign
	err := json.Unmarshal(raw, &c)
	f := campaignFields{
		ExternalID: string(c.CampaignID),
		Name:       c.CampaignName,
		Status:     lookupOr(tiktokStatus, c.OperationStatus, canonical.StatusActive),
		Objective:  lookupOr(tiktokObjective, c.ObjectiveType, canonical.ObjectiveUnknown),
	}
	switch strings.ToUpper(c.BudgetMode) {
	case tiktokBudgetDay:
		f.DailyBudget = c.Budget.nullable(TikTokSpendToCurrency)
	case tiktokBudgetTotal:
		f.TotalBudget = c.Budget.nullable(TikTokSpendToCurrency)
	}
	return f, err
}

func (tiktokMapper) metric(raw json.RawMessage) (metricFields, error) {
	var r tiktokReportRow
	if err := json.Unmarshal(raw, &r); err != nil {
		return metricFields{}, err
	}
	m := r.Metrics
	return metricFields{
		CampaignExternalID: string(r.Dimensions.CampaignID),
		Date:               day(r.Dimensions.StatTimeDay, "2006-01-02 15:04:05", "2006-01-02"),
		Impressions:        m.Impressions.count(),
		Clicks:             m.Clicks.count(),
		Conversions:        m.Conversion.Decimal,
		Spend:              TikTokSpendToCurrency(m.Spend.Decimal),
		Revenue:            TikTokSpendToCurrency(m.TotalPurchaseValue.Decimal),
	}, nil
}
