package ups

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/labelsweep/internal/common"
	"github.com/noah-isme/labelsweep/internal/resilience"
)

const maxTrackBody = 1 << 20

// TrackClient issues one tracking lookup per identifier against the UPS
// tracking endpoint. Transient failures retry inside the resilience wrapper;
// a 401 invalidates the cached token and the lookup is repeated exactly once
// with a fresh one. Requests are paced by the shared rate limiter so a
// bounded worker pool cannot exceed the carrier's tolerated request rate.
type TrackClient struct {
	HTTP           resilience.HTTPClient
	Tokens         *TokenProvider
	BaseURL        string
	TransactionSrc string
	Limiter        *rate.Limiter
	Logger         *zerolog.Logger

	// Now is substituted in tests; transIds are derived from it.
	Now func() time.Time
}

// Track fetches and decodes the tracking response for one tracking number.
// Errors carry a code: transient_request and non_retryable_request become
// per-identifier Error outcomes, while auth_failed (the credential exchange
// itself failed) is fatal to the whole run.
func (c *TrackClient) Track(ctx context.Context, trackingNumber string) (*TrackingResponse, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, common.NewAppError(common.CodeTransientRequest, "rate limiter wait", err)
		}
	}

	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, trackingNumber, token)
	if err != nil {
		return nil, common.NewAppError(common.CodeTransientRequest,
			fmt.Sprintf("track %s", trackingNumber), err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		c.Tokens.Invalidate(token)
		fresh, err := c.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if c.Logger != nil {
			c.Logger.Warn().Str("tracking_number", trackingNumber).Msg("retrying lookup with refreshed token")
		}
		resp, err = c.send(ctx, trackingNumber, fresh)
		if err != nil {
			return nil, common.NewAppError(common.CodeTransientRequest,
				fmt.Sprintf("track %s", trackingNumber), err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drainAndClose(resp)
			// the exchange itself succeeded, so this is a request-level
			// rejection, not a credential failure
			return nil, common.NewAppError(common.CodeNonRetryableRequest,
				fmt.Sprintf("track %s: still unauthorized after token refresh", trackingNumber), nil)
		}
	}

	defer drainAndClose(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var decoded TrackingResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxTrackBody)).Decode(&decoded); err != nil {
			return nil, common.NewAppError(common.CodeTransientRequest,
				fmt.Sprintf("track %s: decode response", trackingNumber), err)
		}
		return &decoded, nil
	case resp.StatusCode >= 500:
		return nil, common.NewAppError(common.CodeTransientRequest,
			fmt.Sprintf("track %s: carrier returned %d after retries", trackingNumber, resp.StatusCode), nil)
	default:
		return nil, common.NewAppError(common.CodeNonRetryableRequest,
			fmt.Sprintf("track %s: carrier returned %d", trackingNumber, resp.StatusCode), nil)
	}
}

func (c *TrackClient) send(ctx context.Context, trackingNumber, token string) (*http.Response, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/" + trackingNumber
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("transId", c.transID())
	req.Header.Set("transactionSrc", c.TransactionSrc)
	req.Header.Set("Accept", "application/json")
	return c.HTTP.Do(ctx, req)
}

func (c *TrackClient) transID() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return fmt.Sprintf("%d", now().UnixNano())
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
