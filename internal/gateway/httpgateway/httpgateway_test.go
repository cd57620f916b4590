package httpgateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/gateway/httpgateway"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
)

func newGateway(t *testing.T, url string, timeout time.Duration) *httpgateway.Gateway {
	t.Helper()
	g, err := httpgateway.NewGateway(httpgateway.GatewayConfig{
		BaseURL:              url,
		APIKey:               "secret",
		Timeout:              timeout,
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		Logger:               log.Noop,
	})
	require.NoError(t, err)
	return g
}

func TestGatewayCreateHold(t *testing.T) {
	tests := map[string]struct {
		handler  func(calls int32, w http.ResponseWriter, r *http.Request)
		expHold  *gateway.Hold
		expCalls int32
		expErr   error
	}{
		"A successful response should return the hold.": {
			handler: func(_ int32, w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]string{"intent_id": "pi_1", "status": "requires_payment_method"})
			},
			expHold:  &gateway.Hold{IntentID: "pi_1", Status: gateway.HoldStatusRequiresPaymentMethod},
			expCalls: 1,
		},

		"Temporary failures should be retried.": {
			handler: func(calls int32, w http.ResponseWriter, r *http.Request) {
				if calls < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]string{"intent_id": "pi_1", "status": "requires_capture"})
			},
			expHold:  &gateway.Hold{IntentID: "pi_1", Status: gateway.HoldStatusRequiresCapture},
			expCalls: 3,
		},

		"Exhausted retries should fail as unavailable.": {
			handler: func(_ int32, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expCalls: 3,
			expErr:   gateway.ErrUnavailable,
		},

		"Rejected requests should not be retried.": {
			handler: func(_ int32, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "card declined"})
			},
			expCalls: 1,
			expErr:   gateway.ErrDeclined,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c := atomic.AddInt32(&calls, 1)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/holds", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, float64(10000), body["amount"])
				assert.Equal(t, float64(8300), body["contractor_amount"])

				test.handler(c, w, r)
			}))
			defer srv.Close()

			g := newGateway(t, srv.URL, time.Second)
			hold, err := g.CreateHold(context.Background(), gateway.HoldRequest{
				PaymentID:        "p1",
				Amount:           10000,
				ContractorAmount: 8300,
				CommissionAmount: 1700,
				IdempotencyKey:   "key-1",
			})

			assert.Equal(t, test.expCalls, atomic.LoadInt32(&calls))
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				assert.ErrorIs(t, err, model.ErrGateway)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expHold, hold)
		})
	}
}

func TestGatewayAttemptTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"transfer_id": "tr_1"})
	}))
	defer srv.Close()

	g := newGateway(t, srv.URL, 50*time.Millisecond)
	c, err := g.Capture(context.Background(), gateway.CaptureRequest{IntentID: "pi_1", IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", c.TransferID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGatewayRoutes(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v1/holds/pi_1":
			_ = json.NewEncoder(w).Encode(map[string]string{"intent_id": "pi_1", "status": "requires_capture"})
		case "/v1/holds/pi_1/refunds":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(500), body["amount"])
			_ = json.NewEncoder(w).Encode(map[string]string{"refund_id": "re_1"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	g := newGateway(t, srv.URL+"/", time.Second)

	h, err := g.GetHold(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, gateway.HoldStatusRequiresCapture, h.Status)

	require.NoError(t, g.CancelHold(ctx, gateway.CancelRequest{IntentID: "pi_1", Reason: "cancelled"}))

	re, err := g.Refund(ctx, gateway.RefundRequest{IntentID: "pi_1", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "re_1", re.RefundID)

	assert.Equal(t, []string{"GET /v1/holds/pi_1", "POST /v1/holds/pi_1/cancel", "POST /v1/holds/pi_1/refunds"}, got)
}

func TestNewGatewayRequiresURL(t *testing.T) {
	_, err := httpgateway.NewGateway(httpgateway.GatewayConfig{})
	assert.Error(t, err)
}
