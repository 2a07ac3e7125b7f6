package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/yanizio/adsync/internal/canonical"
)

const linkedinCampaignURN = "urn:li:sponsoredCampaign:"

var linkedinStatus = map[string]string{
	"ACTIVE":           canonical.StatusActive,
	"PAUSED":           canonical.StatusPaused,
	"DRAFT":            canonical.StatusPaused,
	"COMPLETED":        canonical.StatusEnded,
	"ARCHIVED":         canonical.StatusEnded,
	"CANCELED":         canonical.StatusRemoved,
	"REMOVED":          canonical.StatusRemoved,
	"PENDING_DELETION": canonical.StatusRemoved,
}

var linkedinObjective = map[string]string{
	"BRAND_AWARENESS":    "awareness",
	"WEBSITE_VISIT":      "traffic",
	"WEBSITE_VISITS":     "traffic",
	"ENGAGEMENT":         "engagement",
	"VIDEO_VIEW":         "video",
	"LEAD_GENERATION":    "leads",
	"TALENT_LEADS":       "leads",
	"JOB_APPLICANT":      "leads",
	"WEBSITE_CONVERSION": "conversions",
}

type linkedinMoney struct {
	Amount       num    `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type linkedinCampaign struct {
	ID            idString       `json:"id"`
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	ObjectiveType string         `json:"objectiveType"`
	DailyBudget   *linkedinMoney `json:"dailyBudget"`
	TotalBudget   *linkedinMoney `json:"totalBudget"`
	RunSchedule   struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"runSchedule"`
}

type linkedinDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type linkedinAnalytics struct {
	PivotValues []string `json:"pivotValues"`
	DateRange   struct {
		Start linkedinDate `json:"start"`
	} `json:"dateRange"`
	Impressions                    num `json:"impressions"`
	Clicks                         num `json:"clicks"`
	CostInLocalCurrency            num `json:"costInLocalCurrency"`
	ExternalWebsiteConversions     num `json:"externalWebsiteConversions"`
	ConversionValueInLocalCurrency num `json:"conversionValueInLocalCurrency"`
}

type linkedinMapper struct{}

func (linkedinMapper) campaign(raw json.RawMessage) (campaignFields, error) {
	var c linkedinCampaign
	err := json.Unmarshal(raw, &c)
	f := campaignFields{
		ExternalID: strings.TrimPrefix(string(c.ID), linkedinCampaignURN),
		Name:       c.Name,
		Status:     lookupOr(linkedinStatus, c.Status, canonical.StatusActive),
		Objective:  lookupOr(linkedinObjective, c.ObjectiveType, canonical.ObjectiveUnknown),
		Start:      millisDay(c.RunSchedule.Start),
		End:        millisDay(c.RunSchedule.End),
	}
	if c.DailyBudget != nil {
		f.DailyBudget = c.DailyBudget.Amount.nullable(LinkedInAmountToCurrency)
	}
	if c.TotalBudget != nil {
		f.TotalBudget = c.TotalBudget.Amount.nullable(LinkedInAmountToCurrency)
	}
	return f, err
}

func (linkedinMapper) metric(raw json.RawMessage) (metricFields, error) {
	var r linkedinAnalytics
	if err := json.Unmarshal(raw, &r); err != nil {
		return metricFields{}, err
	}
	var campaignID string
	for _, pv := range r.PivotValues {
		if strings.HasPrefix(pv, linkedinCampaignURN) {
			campaignID = strings.TrimPrefix(pv, linkedinCampaignURN)
			break
		}
	}
	var date time.Time
	if s := r.DateRange.Start; s.Year > 0 && s.Month > 0 && s.Day > 0 {
		date = time.Date(s.Year, time.Month(s.Month), s.Day, 0, 0, 0, 0, time.UTC)
	}
	return metricFields{
		CampaignExternalID: campaignID,
		Date:               date,
		Impressions:        r.Impressions.count(),
		Clicks:             r.Clicks.count(),
		Conversions:        r.ExternalWebsiteConversions.Decimal,
		Spend:              LinkedInAmountToCurrency(r.CostInLocalCurrency.Decimal),
		Revenue:            LinkedInAmountToCurrency(r.ConversionValueInLocalCurrency.Decimal),
	}, nil
}

func millisDay(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
