package httphandler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// errorStatus maps a domain error to an HTTP status and a message that is
// safe to show a user. Upstream payloads and persistence details are never
// part of the message.
func errorStatus(err error) (int, string) {
	var (
		unsupported *model.UnsupportedProviderError
		badStatus   *model.InvalidStatusError
		noCred      *model.NoCredentialError
		apiErr      *model.UpstreamAPIError
		authErr     *model.UpstreamAuthError
		cacheErr    *model.CacheError
		cfgErr      *model.ConfigError
	)

	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest, unsupported.Error()
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, badStatus.Error()
	case errors.As(err, &noCred):
		return http.StatusConflict, fmt.Sprintf("%s is not connected (%s): connect the platform first",
			noCred.Provider.DisplayName(), orText(noCred.Reason, "not connected"))
	case errors.Is(err, model.ErrCampaignNotFound):
		return http.StatusNotFound, "campaign not found"
	case errors.As(err, &apiErr):
		if apiErr.Retryable {
			return http.StatusServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable, try again later", apiErr.Provider.DisplayName())
		}
		return http.StatusBadGateway, fmt.Sprintf("%s rejected the request", apiErr.Provider.DisplayName())
	case errors.As(err, &authErr):
		return http.StatusBadGateway, fmt.Sprintf("%s authorization failed", authErr.Provider.DisplayName())
	case errors.As(err, &cacheErr), errors.As(err, &cfgErr):
		return http.StatusInternalServerError, "internal server error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeDomainError logs err and writes the mapped error response. 5xx
// responses are logged at error level, client errors at info.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)

	logger := h.log(r).With("method", r.Method, "path", r.URL.Path, "status", status)
	var apiErr *model.UpstreamAPIError
	switch {
	case errors.As(err, &apiErr):
		logger.Warn("upstream request failed",
			"provider", apiErr.Provider,
			"upstream_status", apiErr.StatusCode,
			"upstream_code", apiErr.Code,
			"retryable", apiErr.Retryable,
		)
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
	default:
		logger.Info("request rejected", "reason", msg)
	}

	writeError(w, status, msg)
}

func orText(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
