package adplatform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// maxErrorBody caps how much of an error response is read for classification.
const maxErrorBody = 64 << 10

// transportError classifies a failure that produced no HTTP response. Timeouts
// and connection failures are retryable; caller cancellation is not.
func transportError(provider model.Provider, err error) error {
	return &model.UpstreamAPIError{
		Provider:  provider,
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// isTimeout reports whether err is a deadline expiry, including a client
// timeout that fires while the response body is being read.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// decodeBody decodes a JSON response body into out. A timeout while reading
// is a transport failure, anything else a malformed payload.
func decodeBody(provider model.Provider, body io.Reader, what string, out any) error {
	if err := json.NewDecoder(body).Decode(out); err != nil {
		if isTimeout(err) {
			return transportError(provider, err)
		}
		return malformed(provider, what, err)
	}
	return nil
}

// statusRetryable reports whether an HTTP status is worth retrying.
func statusRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func readErrorBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

func malformed(provider model.Provider, what string, err error) error {
	return &model.UpstreamAPIError{
		Provider: provider,
		Err:      fmt.Errorf("malformed %s: %w", what, err),
	}
}
