package ups_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labelsweep/internal/common"
	"github.com/noah-isme/labelsweep/internal/resilience"
	"github.com/noah-isme/labelsweep/internal/ups"
)

const labelOnlyBody = `{
  "trackResponse": {
    "shipment": [
      {
        "inquiryNumber": "1Z0001",
        "package": [
          {
            "trackingNumber": "1Z0001",
            "activity": [
              {
                "status": {
                  "description": "Shipper created a label, UPS has not received the package yet. ",
                  "code": "MP",
                  "type": "M"
                },
                "date": "20250601",
                "time": "081500"
              }
            ]
          }
        ]
      }
    ]
  }
}`

func newTrackClient(trackURL, tokenURL string) *ups.TrackClient {
	return &ups.TrackClient{
		HTTP: resilience.HTTPClient{
			Client:      http.DefaultClient,
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
		},
		Tokens:         newProvider(tokenURL),
		BaseURL:        trackURL,
		TransactionSrc: "labelsweep",
	}
}

func TestTrackDecodesResponse(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1")
	defer tokenSrv.Close()

	var gotPath, gotAuth, gotTransID, gotSrc string
	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTransID = r.Header.Get("transId")
		gotSrc = r.Header.Get("transactionSrc")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(labelOnlyBody))
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	c.Now = func() time.Time { return time.Unix(1756400000, 0) }

	resp, err := c.Track(context.Background(), "1Z0001")
	require.NoError(t, err)

	require.Equal(t, "/1Z0001", gotPath)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.NotEmpty(t, gotTransID)
	require.Equal(t, "labelsweep", gotSrc)

	activities := resp.Activities()
	require.Len(t, activities, 1)
	require.Equal(t, "MP", activities[0].Status.Code)
}

func TestTrackRefreshesTokenOn401(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1", "tok-2")
	defer tokenSrv.Close()

	var trackCalls atomic.Int32
	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trackCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(labelOnlyBody))
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	resp, err := c.Track(context.Background(), "1Z0001")
	require.NoError(t, err)
	require.Len(t, resp.Activities(), 1)
	require.EqualValues(t, 2, tokenCalls.Load())
	require.EqualValues(t, 2, trackCalls.Load())
}

func TestTrackStillUnauthorizedAfterRefresh(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1", "tok-2")
	defer tokenSrv.Close()

	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	_, err := c.Track(context.Background(), "1Z0001")
	require.Error(t, err)
	// the exchange worked, so the rejection stays request-level
	require.True(t, common.HasCode(err, common.CodeNonRetryableRequest))
	require.EqualValues(t, 2, tokenCalls.Load())
}

func TestTrackSurfacesExchangeFailureAsAuthFailed(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"response":{"errors":[{"code":"250002"}]}}`))
	}))
	defer tokenSrv.Close()

	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	_, err := c.Track(context.Background(), "1Z0001")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodeAuthFailed))
}

func TestTrackMapsClientErrorsNonRetryable(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1")
	defer tokenSrv.Close()

	var trackCalls atomic.Int32
	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		trackCalls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	_, err := c.Track(context.Background(), "1Z9999")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodeNonRetryableRequest))
	require.EqualValues(t, 1, trackCalls.Load())
}

func TestTrackMapsServerErrorsTransientAfterRetries(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1")
	defer tokenSrv.Close()

	var trackCalls atomic.Int32
	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		trackCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	_, err := c.Track(context.Background(), "1Z0001")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodeTransientRequest))
	require.EqualValues(t, 2, trackCalls.Load())
}

func TestTrackTimesOutAsTransient(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := tokenServer(t, &tokenCalls, "tok-1")
	defer tokenSrv.Close()

	trackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer trackSrv.Close()

	c := newTrackClient(trackSrv.URL, tokenSrv.URL)
	c.HTTP.Timeout = 20 * time.Millisecond

	_, err := c.Track(context.Background(), "1Z0003")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodeTransientRequest))
}
