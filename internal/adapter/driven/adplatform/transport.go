// Package adplatform implements the ProviderAdapter port for the Meta Marketing
// API and the TikTok Business API.
package adplatform

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRate    = 5.0
	defaultBurst   = 2
)

// TransportOptions tunes the upstream HTTP client.
type TransportOptions struct {
	// Timeout bounds every request end to end. Zero means 15s.
	Timeout time.Duration
	// RatePerSecond is the proactive request budget per provider. Zero means 5.
	RatePerSecond float64
	// Burst is the token bucket size. Zero means 2.
	Burst int
	// Base is the innermost round tripper. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewHTTPClient builds the upstream client for one provider with the following
// transport stack:
//  1. credential keying (tags each request with a digest of its token)
//  2. httpcache (ETag-based conditional request caching for campaign reads,
//     varied on the credential key so one token never sees another's entries)
//  3. rate limiter (token bucket, waits before each network request)
//  4. instrumentation (request count and latency per provider)
func NewHTTPClient(provider model.Provider, opts TransportOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}

	instrumented := &instrumentedTransport{provider: provider, next: opts.Base}
	limited := &rateLimitedTransport{
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		next:    instrumented,
	}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = &varyCredentialTransport{next: limited}

	return &http.Client{
		Transport: &credentialKeyTransport{next: cache},
		Timeout:   opts.Timeout,
	}
}

// credentialKeyHeader carries a token digest between the keying and vary
// transports. It never leaves the process.
const credentialKeyHeader = "X-Adpanel-Credential-Key"

// credentialKey derives a short digest of the request's access token so cached
// entries can be partitioned by credential without holding the token itself.
func credentialKey(req *http.Request) string {
	token := req.Header.Get("Authorization")
	if token == "" {
		token = req.Header.Get("Access-Token")
	}
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// credentialKeyTransport sets credentialKeyHeader ahead of the cache lookup.
type credentialKeyTransport struct {
	next http.RoundTripper
}

func (t *credentialKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if key := credentialKey(req); key != "" {
		req = req.Clone(req.Context())
		req.Header.Set(credentialKeyHeader, key)
	}
	return t.next.RoundTrip(req)
}

// varyCredentialTransport sits under the cache. It strips credentialKeyHeader
// from the outgoing request and marks every response as varying on it.
type varyCredentialTransport struct {
	next http.RoundTripper
}

func (t *varyCredentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(credentialKeyHeader) != "" {
		req = req.Clone(req.Context())
		req.Header.Del(credentialKeyHeader)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Header.Add("Vary", credentialKeyHeader)
	return resp, nil
}

// rateLimitedTransport blocks on a token bucket before forwarding the request.
type rateLimitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// instrumentedTransport records each network round trip.
type instrumentedTransport struct {
	provider model.Provider
	next     http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	metrics.UpstreamRequestDuration.WithLabelValues(string(t.provider)).Observe(time.Since(start).Seconds())

	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(resp.StatusCode/100) + "xx"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(string(t.provider), outcome).Inc()

	return resp, err
}
