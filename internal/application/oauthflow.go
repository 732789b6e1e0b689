package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/adpanel/internal/logging"
	"github.com/ericfisherdev/adpanel/internal/metrics"
)

// AuthState is the state of one authorization attempt.
type AuthState string

const (
	AuthStateInitiated        AuthState = "INITIATED"
	AuthStateCallbackReceived AuthState = "CALLBACK_RECEIVED"
	AuthStateCredentialStored AuthState = "CREDENTIAL_STORED"
	AuthStateFailed           AuthState = "FAILED"
)

// Callback rejection reasons.
var (
	ErrStateMismatch = errors.New("oauth state missing or mismatched")
	ErrMissingCode   = errors.New("authorization code missing")
)

// AuthRequest is the outcome of StartAuth: where to send the browser and the
// opaque state the callback must echo back.
type AuthRequest struct {
	Provider model.Provider
	URL      string
	State    string
}

// CallbackResult carries the provider's callback parameters for the duration
// of one request.
type CallbackResult struct {
	Code string
	// State is the value the provider echoed back; ExpectedState is the value
	// issued by StartAuth for this browser.
	State         string
	ExpectedState string
	// ProviderError is set when the user denied access or the provider failed.
	ProviderError string
}

// FlowError reports an authorization attempt that ended in AuthStateFailed.
type FlowError struct {
	Provider model.Provider
	Err      error
}

func (e *FlowError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("oauth flow failed: %v", e.Err)
	}
	return fmt.Sprintf("%s oauth flow failed: %v", e.Provider, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// Connection summarizes a provider's credential without exposing tokens.
type Connection struct {
	Provider  model.Provider
	Connected bool
	// Reason explains why a provider is not connected.
	Reason    string
	ExpiresAt *time.Time
	UpdatedAt *time.Time
}

// OAuthFlowService runs the authorization-code flow against a provider and
// owns the only write path into the credential store.
type OAuthFlowService struct {
	adapters      *AdapterRegistry
	creds         driven.CredentialStore
	publicBaseURL string
	newState      func() string
	now           func() time.Time
}

// NewOAuthFlowService creates an OAuthFlowService. publicBaseURL is the
// externally reachable origin used to build callback URIs.
func NewOAuthFlowService(adapters *AdapterRegistry, creds driven.CredentialStore, publicBaseURL string) *OAuthFlowService {
	return &OAuthFlowService{
		adapters:      adapters,
		creds:         creds,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		newState:      uuid.NewString,
		now:           time.Now,
	}
}

// CallbackURI returns the fixed redirect URI registered for p.
func (s *OAuthFlowService) CallbackURI(p model.Provider) string {
	return s.publicBaseURL + "/callback/" + string(p)
}

// StartAuth validates the provider and returns the authorization URL to
// redirect to. Unknown providers yield *model.UnsupportedProviderError.
func (s *OAuthFlowService) StartAuth(ctx context.Context, rawProvider string) (AuthRequest, error) {
	p, err := model.ParseProvider(rawProvider)
	if err != nil {
		return AuthRequest{}, err
	}
	adapter, err := s.adapters.Get(p)
	if err != nil {
		return AuthRequest{}, err
	}

	state := s.newState()
	authURL, err := adapter.BuildAuthorizationURL(s.CallbackURI(p), state)
	if err != nil {
		return AuthRequest{}, err
	}

	metrics.OAuthFlowsTotal.WithLabelValues(string(p), string(AuthStateInitiated)).Inc()
	logging.FromContext(ctx, slog.Default()).Info("oauth flow initiated", "provider", p)

	return AuthRequest{Provider: p, URL: authURL, State: state}, nil
}

// CompleteAuth validates the callback, exchanges the code and stores the
// resulting credential. The store write is the single commit point: every
// failure before or during it returns *FlowError and leaves the store
// untouched. The returned credential carries tokens and must not be rendered.
func (s *OAuthFlowService) CompleteAuth(ctx context.Context, rawProvider string, cb CallbackResult) (model.Credential, error) {
	logger := logging.FromContext(ctx, slog.Default())

	p, err := model.ParseProvider(rawProvider)
	if err != nil {
		return model.Credential{}, &FlowError{Err: err}
	}
	logger = logger.With("provider", p)

	metrics.OAuthFlowsTotal.WithLabelValues(string(p), string(AuthStateCallbackReceived)).Inc()

	cred, err := s.complete(ctx, p, cb)
	if err != nil {
		metrics.OAuthFlowsTotal.WithLabelValues(string(p), string(AuthStateFailed)).Inc()
		logAuthFailure(logger, err)
		return model.Credential{}, &FlowError{Provider: p, Err: err}
	}

	metrics.OAuthFlowsTotal.WithLabelValues(string(p), string(AuthStateCredentialStored)).Inc()
	logger.Info("oauth credential stored", "state", AuthStateCredentialStored)
	return cred, nil
}

func (s *OAuthFlowService) complete(ctx context.Context, p model.Provider, cb CallbackResult) (model.Credential, error) {
	if cb.ProviderError != "" {
		return model.Credential{}, fmt.Errorf("provider returned error %q", cb.ProviderError)
	}
	if cb.ExpectedState == "" || subtle.ConstantTimeCompare([]byte(cb.State), []byte(cb.ExpectedState)) != 1 {
		return model.Credential{}, ErrStateMismatch
	}
	if strings.TrimSpace(cb.Code) == "" {
		return model.Credential{}, ErrMissingCode
	}

	adapter, err := s.adapters.Get(p)
	if err != nil {
		return model.Credential{}, err
	}

	cred, err := adapter.ExchangeCodeForToken(ctx, cb.Code, s.CallbackURI(p))
	if err != nil {
		return model.Credential{}, err
	}
	if cred.AccessToken == "" {
		return model.Credential{}, &model.UpstreamAuthError{Provider: p, Err: errors.New("empty access token")}
	}

	cred.Provider = p
	cred.IsActive = true
	cred.UpdatedAt = s.now().UTC()

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return model.Credential{}, model.CacheWriteError(err)
	}
	return cred, nil
}

// logAuthFailure records a failed attempt without the error text of upstream
// failures, which may echo request parameters.
func logAuthFailure(logger *slog.Logger, err error) {
	attrs := []any{"state", AuthStateFailed}

	var authErr *model.UpstreamAuthError
	switch {
	case errors.As(err, &authErr):
		attrs = append(attrs, "reason", "token exchange rejected", "upstream_status", authErr.StatusCode)
	case errors.Is(err, ErrStateMismatch):
		attrs = append(attrs, "reason", "state mismatch")
	case errors.Is(err, ErrMissingCode):
		attrs = append(attrs, "reason", "missing code")
	default:
		attrs = append(attrs, "error", err)
	}
	logger.Warn("oauth flow failed", attrs...)
}

// Disconnect deactivates the provider's credential.
func (s *OAuthFlowService) Disconnect(ctx context.Context, rawProvider string) error {
	p, err := model.ParseProvider(rawProvider)
	if err != nil {
		return err
	}
	if err := s.creds.Deactivate(ctx, p); err != nil {
		return model.CacheWriteError(err)
	}
	logging.FromContext(ctx, slog.Default()).Info("provider disconnected", "provider", p)
	return nil
}

// Connections reports the connection state of every registered provider.
func (s *OAuthFlowService) Connections(ctx context.Context) ([]Connection, error) {
	stored, err := s.creds.List(ctx)
	if err != nil {
		return nil, model.CacheReadError(err)
	}

	byProvider := make(map[model.Provider]model.Credential, len(stored))
	for _, c := range stored {
		byProvider[c.Provider] = c
	}

	now := s.now()
	providers := s.adapters.Providers()
	out := make([]Connection, 0, len(providers))
	for _, p := range providers {
		conn := Connection{Provider: p, Reason: "not connected"}
		if c, ok := byProvider[p]; ok {
			updated := c.UpdatedAt
			conn.UpdatedAt = &updated
			conn.ExpiresAt = c.ExpiresAt
			switch {
			case !c.IsActive:
				conn.Reason = "disconnected"
			case c.Expired(now):
				conn.Reason = "expired"
			default:
				conn.Connected = true
				conn.Reason = ""
			}
		}
		out = append(out, conn)
	}
	return out, nil
}
