package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CampaignStatus is the last known delivery state of an external campaign.
type CampaignStatus string

const (
	CampaignStatusActive  CampaignStatus = "ACTIVE"
	CampaignStatusPaused  CampaignStatus = "PAUSED"
	CampaignStatusUnknown CampaignStatus = "UNKNOWN"
)

// ParseTargetStatus validates a toggle target. Only ACTIVE and PAUSED can be
// requested; anything else yields an *InvalidStatusError.
func ParseTargetStatus(raw string) (CampaignStatus, error) {
	switch s := CampaignStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case CampaignStatusActive, CampaignStatusPaused:
		return s, nil
	}
	return "", &InvalidStatusError{Status: raw}
}

// NormalizeStatus maps a provider-reported status onto CampaignStatus.
// Meta reports ACTIVE/PAUSED; TikTok reports ENABLE/DISABLE variants.
func NormalizeStatus(raw string) CampaignStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ACTIVE", "ENABLE", "CAMPAIGN_STATUS_ENABLE":
		return CampaignStatusActive
	case "PAUSED", "DISABLE", "CAMPAIGN_STATUS_DISABLE":
		return CampaignStatusPaused
	}
	return CampaignStatusUnknown
}

// CampaignMetric is the latest known performance snapshot for one external
// campaign, unique per (Platform, PlatformCampaignID). Spend is held in cents.
type CampaignMetric struct {
	ID                 int64
	Platform           Provider
	PlatformCampaignID string
	Name               string
	Status             CampaignStatus
	SpendCents         int64
	Conversions        int64
	UpdatedAt          time.Time
}

// Spend returns the spend in currency units.
func (m CampaignMetric) Spend() float64 {
	return float64(m.SpendCents) / 100
}

// Sanitized returns a copy with negative counters clamped to zero and an
// unrecognised status replaced by UNKNOWN.
func (m CampaignMetric) Sanitized() CampaignMetric {
	if m.SpendCents < 0 {
		m.SpendCents = 0
	}
	if m.Conversions < 0 {
		m.Conversions = 0
	}
	switch m.Status {
	case CampaignStatusActive, CampaignStatusPaused, CampaignStatusUnknown:
	default:
		m.Status = CampaignStatusUnknown
	}
	return m
}

// ParseSpend converts a decimal amount such as "120.50" into cents. An empty
// string is zero spend.
func ParseSpend(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse spend %q: %w", raw, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse spend %q: not a finite number", raw)
	}
	return int64(math.Round(f * 100)), nil
}

// FormatCents renders cents as a fixed two-decimal amount.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
