package adplatform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderAdapter = (*TikTokAdapter)(nil)

const (
	tiktokDefaultAPIURL    = "https://business-api.tiktok.com"
	tiktokDefaultPortalURL = "https://business-api.tiktok.com/portal/auth"
	tiktokAPIPrefix        = "/open_api/v1.3"
	tiktokPageSize         = 100

	// TikTok envelope codes.
	tiktokCodeOK        = 0
	tiktokCodeRateLimit = 40100
	tiktokCodeInternal  = 50000
)

// tiktokScopes is the fixed permission set requested from TikTok.
var tiktokScopes = []string{"advertiser.management", "reporting"}

// TikTokConfig configures a TikTokAdapter.
type TikTokConfig struct {
	AppID  string
	Secret string
	// AdvertiserIDs pins the advertisers read and mutated, comma separated.
	// When empty, the advertiser ids granted at authorization time are used.
	AdvertiserIDs string
	// APIURL and PortalURL override the TikTok hosts; empty uses production.
	APIURL     string
	PortalURL  string
	HTTPClient *http.Client
}

// TikTokAdapter implements driven.ProviderAdapter against the TikTok Business API.
type TikTokAdapter struct {
	appID         string
	secret        string
	advertiserIDs string
	apiURL        string
	portalURL     string
	http          *http.Client
}

// NewTikTokAdapter validates cfg and creates a TikTokAdapter. A missing app id
// or secret is a *model.ConfigError.
func NewTikTokAdapter(cfg TikTokConfig) (*TikTokAdapter, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, &model.ConfigError{Key: "tiktok app id", Reason: "required"}
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, &model.ConfigError{Key: "tiktok secret", Reason: "required"}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(model.ProviderTikTok, TransportOptions{})
	}

	return &TikTokAdapter{
		appID:         cfg.AppID,
		secret:        cfg.Secret,
		advertiserIDs: strings.TrimSpace(cfg.AdvertiserIDs),
		apiURL:        strings.TrimRight(orDefault(cfg.APIURL, tiktokDefaultAPIURL), "/"),
		portalURL:     orDefault(cfg.PortalURL, tiktokDefaultPortalURL),
		http:          httpClient,
	}, nil
}

// Provider returns model.ProviderTikTok.
func (a *TikTokAdapter) Provider() model.Provider { return model.ProviderTikTok }

// BuildAuthorizationURL returns the TikTok for Business authorization portal URL.
func (a *TikTokAdapter) BuildAuthorizationURL(redirectURI, state string) (string, error) {
	if a.appID == "" {
		return "", &model.ConfigError{Key: "tiktok app id", Reason: "required"}
	}
	q := url.Values{
		"app_id":       {a.appID},
		"redirect_uri": {redirectURI},
		"scope":        {strings.Join(tiktokScopes, ",")},
	}
	if state != "" {
		q.Set("state", state)
	}
	return a.portalURL + "?" + q.Encode(), nil
}

// tiktokEnvelope is the response wrapper shared by every Business API endpoint.
type tiktokEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// ExchangeCodeForToken trades an auth_code for a long-lived advertiser token.
// TikTok does not validate redirectURI at this step.
func (a *TikTokAdapter) ExchangeCodeForToken(ctx context.Context, code, _ string) (model.Credential, error) {
	body := map[string]string{
		"app_id":    a.appID,
		"secret":    a.secret,
		"auth_code": code,
	}

	var data struct {
		AccessToken   string   `json:"access_token"`
		AdvertiserIDs []string `json:"advertiser_ids"`
		Scope         []int    `json:"scope"`
	}
	status, err := a.postJSON(ctx, "", "/oauth2/access_token/", body, &data)
	if err != nil {
		authErr := &model.UpstreamAuthError{Provider: model.ProviderTikTok, StatusCode: status, Err: err}
		var apiErr *model.UpstreamAPIError
		if errors.As(err, &apiErr) {
			authErr.StatusCode = apiErr.StatusCode
		}
		return model.Credential{}, authErr
	}
	if data.AccessToken == "" {
		return model.Credential{}, &model.UpstreamAuthError{
			Provider: model.ProviderTikTok,
			Err:      errors.New("token response missing access_token"),
		}
	}

	accountID := a.advertiserIDs
	if accountID == "" {
		accountID = strings.Join(data.AdvertiserIDs, ",")
	}

	return model.Credential{
		Provider:    model.ProviderTikTok,
		AccessToken: data.AccessToken,
		AccountID:   accountID,
		Scopes:      append([]string(nil), tiktokScopes...),
		IsActive:    true,
	}, nil
}

type tiktokPageInfo struct {
	Page      int `json:"page"`
	TotalPage int `json:"total_page"`
}

type tiktokCampaign struct {
	CampaignID      string `json:"campaign_id"`
	CampaignName    string `json:"campaign_name"`
	OperationStatus string `json:"operation_status"`
}

type tiktokReportRow struct {
	Dimensions struct {
		CampaignID string `json:"campaign_id"`
	} `json:"dimensions"`
	Metrics struct {
		Spend      string `json:"spend"`
		Conversion string `json:"conversion"`
	} `json:"metrics"`
}

// FetchCampaignMetrics pages through each advertiser's campaigns and joins
// every page with a lifetime report for the same campaign ids.
func (a *TikTokAdapter) FetchCampaignMetrics(ctx context.Context, cred model.Credential) iter.Seq2[model.CampaignMetric, error] {
	advertisers := cred.AccountIDs()
	if len(advertisers) == 0 {
		return failedSeq(&model.UpstreamAPIError{
			Provider: model.ProviderTikTok,
			Err:      errors.New("credential has no advertiser ids"),
		})
	}

	return onceSeq(func(yield func(model.CampaignMetric, error) bool) {
		for _, advertiser := range advertisers {
			for page := 1; ; page++ {
				campaigns, info, err := a.listCampaigns(ctx, cred, advertiser, page, nil)
				if err != nil {
					yield(model.CampaignMetric{}, err)
					return
				}
				if len(campaigns) == 0 {
					break
				}

				report, err := a.lifetimeReport(ctx, cred, advertiser, campaigns)
				if err != nil {
					yield(model.CampaignMetric{}, err)
					return
				}

				for _, c := range campaigns {
					m, err := mapTikTokCampaign(c, report[c.CampaignID])
					if err != nil {
						yield(model.CampaignMetric{}, malformed(model.ProviderTikTok, "campaign "+c.CampaignID, err))
						return
					}
					if !yield(m, nil) {
						return
					}
				}

				if info.TotalPage <= page {
					break
				}
			}
		}
	})
}

// SetCampaignStatus enables or disables a campaign. When the credential spans
// several advertisers, the owning advertiser is looked up first.
func (a *TikTokAdapter) SetCampaignStatus(ctx context.Context, cred model.Credential, campaignID string, status model.CampaignStatus) error {
	var operation string
	switch status {
	case model.CampaignStatusActive:
		operation = "ENABLE"
	case model.CampaignStatusPaused:
		operation = "DISABLE"
	default:
		return &model.InvalidStatusError{Status: string(status)}
	}

	advertiser, err := a.resolveAdvertiser(ctx, cred, campaignID)
	if err != nil {
		return err
	}

	body := map[string]any{
		"advertiser_id":    advertiser,
		"campaign_ids":     []string{campaignID},
		"operation_status": operation,
	}
	_, err = a.postJSON(ctx, cred.AccessToken, "/campaign/status/update/", body, nil)
	return err
}

func (a *TikTokAdapter) resolveAdvertiser(ctx context.Context, cred model.Credential, campaignID string) (string, error) {
	advertisers := cred.AccountIDs()
	switch len(advertisers) {
	case 0:
		return "", &model.UpstreamAPIError{
			Provider: model.ProviderTikTok,
			Err:      errors.New("credential has no advertiser ids"),
		}
	case 1:
		return advertisers[0], nil
	}

	for _, advertiser := range advertisers {
		campaigns, _, err := a.listCampaigns(ctx, cred, advertiser, 1, []string{campaignID})
		if err != nil {
			return "", err
		}
		if len(campaigns) > 0 {
			return advertiser, nil
		}
	}
	return "", &model.UpstreamAPIError{
		Provider:   model.ProviderTikTok,
		StatusCode: http.StatusNotFound,
		Err:        fmt.Errorf("campaign %s not found under any advertiser", campaignID),
	}
}

func (a *TikTokAdapter) listCampaigns(ctx context.Context, cred model.Credential, advertiser string, page int, ids []string) ([]tiktokCampaign, tiktokPageInfo, error) {
	q := url.Values{
		"advertiser_id": {advertiser},
		"page":          {strconv.Itoa(page)},
		"page_size":     {strconv.Itoa(tiktokPageSize)},
		"fields":        {mustJSON([]string{"campaign_id", "campaign_name", "operation_status"})},
	}
	if len(ids) > 0 {
		q.Set("filtering", mustJSON(map[string][]string{"campaign_ids": ids}))
	}

	var data struct {
		List     []tiktokCampaign `json:"list"`
		PageInfo tiktokPageInfo   `json:"page_info"`
	}
	if err := a.getJSON(ctx, cred, "/campaign/get/", q, &data); err != nil {
		return nil, tiktokPageInfo{}, err
	}
	return data.List, data.PageInfo, nil
}

func (a *TikTokAdapter) lifetimeReport(ctx context.Context, cred model.Credential, advertiser string, campaigns []tiktokCampaign) (map[string]tiktokReportRow, error) {
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.CampaignID)
	}

	q := url.Values{
		"advertiser_id":  {advertiser},
		"report_type":    {"BASIC"},
		"data_level":     {"AUCTION_CAMPAIGN"},
		"dimensions":     {mustJSON([]string{"campaign_id"})},
		"metrics":        {mustJSON([]string{"spend", "conversion"})},
		"query_lifetime": {"true"},
		"page_size":      {strconv.Itoa(tiktokPageSize)},
		"filtering": {mustJSON([]map[string]string{{
			"field_name":   "campaign_ids",
			"filter_type":  "IN",
			"filter_value": mustJSON(ids),
		}})},
	}

	var data struct {
		List []tiktokReportRow `json:"list"`
	}
	if err := a.getJSON(ctx, cred, "/report/integrated/get/", q, &data); err != nil {
		return nil, err
	}

	rows := make(map[string]tiktokReportRow, len(data.List))
	for _, row := range data.List {
		rows[row.Dimensions.CampaignID] = row
	}
	return rows, nil
}

func (a *TikTokAdapter) getJSON(ctx context.Context, cred model.Credential, path string, q url.Values, out any) error {
	endpoint := a.apiURL + tiktokAPIPrefix + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build tiktok request: %w", err)
	}
	req.Header.Set("Access-Token", cred.AccessToken)
	_, err = a.do(req, out)
	return err
}

// postJSON sends body to path. accessToken is empty for the token exchange.
// It returns the HTTP status alongside any error.
func (a *TikTokAdapter) postJSON(ctx context.Context, accessToken, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal tiktok request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL+tiktokAPIPrefix+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build tiktok request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Access-Token", accessToken)
	}
	return a.do(req, out)
}

// do sends req and unwraps the response envelope, decoding data into out when
// out is non-nil.
func (a *TikTokAdapter) do(req *http.Request, out any) (int, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, transportError(model.ProviderTikTok, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		readErrorBody(resp)
		return resp.StatusCode, &model.UpstreamAPIError{
			Provider:   model.ProviderTikTok,
			StatusCode: resp.StatusCode,
			Retryable:  statusRetryable(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var envelope tiktokEnvelope
	if err := decodeBody(model.ProviderTikTok, resp.Body, "response", &envelope); err != nil {
		return resp.StatusCode, err
	}
	if envelope.Code != tiktokCodeOK {
		return resp.StatusCode, &model.UpstreamAPIError{
			Provider:   model.ProviderTikTok,
			StatusCode: resp.StatusCode,
			Code:       strconv.Itoa(envelope.Code),
			Retryable:  envelope.Code == tiktokCodeRateLimit || envelope.Code >= tiktokCodeInternal,
			Err:        errors.New(envelope.Message),
		}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return resp.StatusCode, malformed(model.ProviderTikTok, "response data", err)
		}
	}
	return resp.StatusCode, nil
}

func mapTikTokCampaign(c tiktokCampaign, row tiktokReportRow) (model.CampaignMetric, error) {
	spend, err := model.ParseSpend(row.Metrics.Spend)
	if err != nil {
		return model.CampaignMetric{}, err
	}

	var conversions int64
	if v := strings.TrimSpace(row.Metrics.Conversion); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.CampaignMetric{}, fmt.Errorf("parse conversion %q: %w", v, err)
		}
		conversions = int64(n)
	}

	return model.CampaignMetric{
		Platform:           model.ProviderTikTok,
		PlatformCampaignID: c.CampaignID,
		Name:               cleanName(c.CampaignName),
		Status:             model.NormalizeStatus(c.OperationStatus),
		SpendCents:         spend,
		Conversions:        conversions,
		UpdatedAt:          time.Now().UTC(),
	}.Sanitized(), nil
}

// mustJSON encodes query parameters that TikTok expects as JSON literals.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic("adplatform: encode query value: " + err.Error())
	}
	return string(b)
}
