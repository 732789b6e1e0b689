package adplatform

import (
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

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderAdapter = (*MetaAdapter)(nil)

const (
	metaDefaultGraphURL  = "https://graph.facebook.com"
	metaDefaultDialogURL = "https://www.facebook.com"
	metaDefaultVersion   = "v19.0"
	metaPageSize         = 100
)

// metaScopes is the fixed permission set requested from Meta.
var metaScopes = []string{"ads_management", "ads_read", "read_insights"}

// metaLeadActions are the insight action types counted as conversions, in
// priority order: the first one present on a campaign wins.
var metaLeadActions = []string{"lead", "onsite_conversion.lead_grouped", "offsite_conversion.fb_pixel_lead"}

// Graph API error codes that indicate throttling or transient failure.
var metaRetryableCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

// MetaConfig configures a MetaAdapter.
type MetaConfig struct {
	ClientID     string
	ClientSecret string
	// AdAccountID pins the ad account read by FetchCampaignMetrics. When empty,
	// every ad account visible to the token is read.
	AdAccountID string
	// GraphURL and DialogURL override the Meta hosts; empty uses production.
	GraphURL   string
	DialogURL  string
	APIVersion string
	HTTPClient *http.Client
}

// MetaAdapter implements driven.ProviderAdapter against the Meta Graph
// Marketing API.
type MetaAdapter struct {
	oauth       oauth2.Config
	graphURL    string
	version     string
	adAccountID string
	http        *http.Client
}

// NewMetaAdapter validates cfg and creates a MetaAdapter. A missing client id
// or secret is a *model.ConfigError.
func NewMetaAdapter(cfg MetaConfig) (*MetaAdapter, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, &model.ConfigError{Key: "meta client id", Reason: "required"}
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, &model.ConfigError{Key: "meta client secret", Reason: "required"}
	}

	graphURL := strings.TrimRight(orDefault(cfg.GraphURL, metaDefaultGraphURL), "/")
	dialogURL := strings.TrimRight(orDefault(cfg.DialogURL, metaDefaultDialogURL), "/")
	version := orDefault(cfg.APIVersion, metaDefaultVersion)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(model.ProviderMeta, TransportOptions{})
	}

	return &MetaAdapter{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       metaScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialogURL + "/" + version + "/dialog/oauth",
				TokenURL:  graphURL + "/" + version + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		graphURL:    graphURL,
		version:     version,
		adAccountID: strings.TrimSpace(cfg.AdAccountID),
		http:        httpClient,
	}, nil
}

// Provider returns model.ProviderMeta.
func (a *MetaAdapter) Provider() model.Provider { return model.ProviderMeta }

// BuildAuthorizationURL returns the Facebook login dialog URL.
func (a *MetaAdapter) BuildAuthorizationURL(redirectURI, state string) (string, error) {
	if a.oauth.ClientID == "" {
		return "", &model.ConfigError{Key: "meta client id", Reason: "required"}
	}
	cfg := a.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state), nil
}

// ExchangeCodeForToken trades code for a Meta user access token.
func (a *MetaAdapter) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (model.Credential, error) {
	cfg := a.oauth
	cfg.RedirectURL = redirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.http)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		authErr := &model.UpstreamAuthError{Provider: model.ProviderMeta, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
			authErr.Err = errors.New("token endpoint rejected the authorization code")
		}
		return model.Credential{}, authErr
	}
	if tok.AccessToken == "" {
		return model.Credential{}, &model.UpstreamAuthError{
			Provider: model.ProviderMeta,
			Err:      errors.New("token response missing access_token"),
		}
	}

	cred := model.Credential{
		Provider:     model.ProviderMeta,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		AccountID:    a.adAccountID,
		Scopes:       append([]string(nil), metaScopes...),
		IsActive:     true,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	return cred, nil
}

// metaCampaign is one entry of the campaigns edge.
type metaCampaign struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Insights struct {
		Data []struct {
			Spend   string `json:"spend"`
			Actions []struct {
				ActionType string `json:"action_type"`
				Value      string `json:"value"`
			} `json:"actions"`
		} `json:"data"`
	} `json:"insights"`
}

type metaPaging struct {
	Next string `json:"next"`
}

type metaCampaignPage struct {
	Data   []metaCampaign `json:"data"`
	Paging metaPaging     `json:"paging"`
}

type metaAdAccountPage struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	Paging metaPaging `json:"paging"`
}

// FetchCampaignMetrics pages through the campaigns of each ad account,
// requesting lifetime spend and lead actions inline.
func (a *MetaAdapter) FetchCampaignMetrics(ctx context.Context, cred model.Credential) iter.Seq2[model.CampaignMetric, error] {
	return onceSeq(func(yield func(model.CampaignMetric, error) bool) {
		accounts := cred.AccountIDs()
		if len(accounts) == 0 {
			var err error
			accounts, err = a.discoverAdAccounts(ctx, cred)
			if err != nil {
				yield(model.CampaignMetric{}, err)
				return
			}
		}

		for _, account := range accounts {
			next := a.campaignsURL(account)
			for next != "" {
				var page metaCampaignPage
				if err := a.getJSON(ctx, cred, next, &page); err != nil {
					yield(model.CampaignMetric{}, err)
					return
				}

				for _, c := range page.Data {
					m, err := mapMetaCampaign(c)
					if err != nil {
						yield(model.CampaignMetric{}, malformed(model.ProviderMeta, "campaign "+c.ID, err))
						return
					}
					if !yield(m, nil) {
						return
					}
				}

				next = sanitizeNextURL(page.Paging.Next)
			}
		}
	})
}

// SetCampaignStatus updates the campaign's configured status. Meta accepts a
// status equal to the current one.
func (a *MetaAdapter) SetCampaignStatus(ctx context.Context, cred model.Credential, campaignID string, status model.CampaignStatus) error {
	if status != model.CampaignStatusActive && status != model.CampaignStatusPaused {
		return &model.InvalidStatusError{Status: string(status)}
	}

	form := url.Values{"status": {string(status)}}
	endpoint := a.graphURL + "/" + a.version + "/" + url.PathEscape(campaignID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build meta status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		Success bool `json:"success"`
	}
	if err := a.do(req, cred, &result); err != nil {
		return err
	}
	if !result.Success {
		return &model.UpstreamAPIError{
			Provider: model.ProviderMeta,
			Err:      fmt.Errorf("status update for campaign %s not acknowledged", campaignID),
		}
	}
	return nil
}

func (a *MetaAdapter) discoverAdAccounts(ctx context.Context, cred model.Credential) ([]string, error) {
	var accounts []string
	next := a.graphURL + "/" + a.version + "/me/adaccounts?fields=id&limit=" + strconv.Itoa(metaPageSize)
	for next != "" {
		var page metaAdAccountPage
		if err := a.getJSON(ctx, cred, next, &page); err != nil {
			return nil, err
		}
		for _, acct := range page.Data {
			accounts = append(accounts, acct.ID)
		}
		next = sanitizeNextURL(page.Paging.Next)
	}
	return accounts, nil
}

func (a *MetaAdapter) campaignsURL(account string) string {
	account = "act_" + strings.TrimPrefix(account, "act_")
	q := url.Values{
		"fields": {"id,name,status,insights.date_preset(maximum){spend,actions}"},
		"limit":  {strconv.Itoa(metaPageSize)},
	}
	return a.graphURL + "/" + a.version + "/" + account + "/campaigns?" + q.Encode()
}

func (a *MetaAdapter) getJSON(ctx context.Context, cred model.Credential, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build meta request: %w", err)
	}
	return a.do(req, cred, out)
}

// do sends req with the bearer token and decodes a 2xx body into out. The
// token travels only in the Authorization header so it never appears in
// request URLs or the errors that embed them.
func (a *MetaAdapter) do(req *http.Request, cred model.Credential, out any) error {
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return transportError(model.ProviderMeta, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return metaAPIError(resp.StatusCode, readErrorBody(resp))
	}

	return decodeBody(model.ProviderMeta, resp.Body, "response", out)
}

// metaAPIError classifies a Graph API error envelope.
func metaAPIError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	apiErr := &model.UpstreamAPIError{
		Provider:   model.ProviderMeta,
		StatusCode: status,
		Retryable:  statusRetryable(status),
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != 0 {
		apiErr.Code = strconv.Itoa(envelope.Error.Code)
		apiErr.Err = errors.New(envelope.Error.Message)
		if metaRetryableCodes[envelope.Error.Code] {
			apiErr.Retryable = true
		}
		return apiErr
	}
	apiErr.Err = fmt.Errorf("unexpected status %d", status)
	return apiErr
}

func mapMetaCampaign(c metaCampaign) (model.CampaignMetric, error) {
	m := model.CampaignMetric{
		Platform:           model.ProviderMeta,
		PlatformCampaignID: c.ID,
		Name:               cleanName(c.Name),
		Status:             model.NormalizeStatus(c.Status),
		UpdatedAt:          time.Now().UTC(),
	}
	if len(c.Insights.Data) == 0 {
		return m, nil
	}

	insight := c.Insights.Data[0]
	spend, err := model.ParseSpend(insight.Spend)
	if err != nil {
		return model.CampaignMetric{}, err
	}
	m.SpendCents = spend

	values := make(map[string]string, len(insight.Actions))
	for _, action := range insight.Actions {
		values[action.ActionType] = action.Value
	}
	for _, actionType := range metaLeadActions {
		v, ok := values[actionType]
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return model.CampaignMetric{}, fmt.Errorf("parse %s action value %q: %w", actionType, v, err)
		}
		m.Conversions = int64(n)
		break
	}

	return m.Sanitized(), nil
}

// sanitizeNextURL drops any access_token Graph echoes back in paging links so
// the token is only ever sent as a header.
func sanitizeNextURL(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	q := u.Query()
	if !q.Has("access_token") {
		return next
	}
	q.Del("access_token")
	u.RawQuery = q.Encode()
	return u.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
