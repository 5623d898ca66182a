package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wachira567/eventhub-backend/config"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(&config.MpesaConfig{
		BaseURL:        server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/v1/payments/callback",
	})
	return client, server
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func tokenOr(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			writeJSON(w, http.StatusOK, map[string]string{"access_token": "test-token"})
			return
		}
		next(w, r)
	}
}

func TestClient_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("success returns checkout request id", func(t *testing.T) {
		client, _ := newTestClient(t, tokenOr(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
			require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			var req stkPushRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "174379", req.BusinessShortCode)
			require.Equal(t, int64(500), req.Amount)
			require.Equal(t, "254700000000", req.PhoneNumber)

			writeJSON(w, http.StatusOK, map[string]string{
				"ResponseCode":        "0",
				"ResponseDescription": "Success. Request accepted for processing",
				"CheckoutRequestID":   "ws_CO_123",
				"MerchantRequestID":   "29115-34620561-1",
			})
		}))

		res, err := client.Initiate(ctx, 50000, "254700000000", "order-1")
		require.NoError(t, err)
		require.Equal(t, "ws_CO_123", res.CheckoutRequestID)
		require.Equal(t, "29115-34620561-1", res.MerchantRequestID)
	})

	t.Run("fractional shilling amount is rejected without a request", func(t *testing.T) {
		requested := false
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requested = true
		})

		_, err := client.Initiate(ctx, 550, "254700000000", "order-1")
		require.ErrorIs(t, err, payments.ErrInvalidAmount)
		require.False(t, requested)
	})

	t.Run("server error maps to gateway unavailable", func(t *testing.T) {
		client, _ := newTestClient(t, tokenOr(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"errorCode":    "500.003.03",
				"errorMessage": "Service is currently unreachable",
			})
		}))

		_, err := client.Initiate(ctx, 50000, "254700000000", "order-1")
		require.ErrorIs(t, err, payments.ErrGatewayUnavailable)
	})

	t.Run("invalid phone maps to invalid phone number", func(t *testing.T) {
		client, _ := newTestClient(t, tokenOr(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"errorCode":    "400.002.02",
				"errorMessage": "Bad Request - Invalid PhoneNumber",
			})
		}))

		_, err := client.Initiate(ctx, 50000, "123", "order-1")
		require.ErrorIs(t, err, payments.ErrInvalidPhoneNumber)
	})

	t.Run("token failure maps to gateway unavailable", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.Initiate(ctx, 50000, "254700000000", "order-1")
		require.ErrorIs(t, err, payments.ErrGatewayUnavailable)
	})
}

func TestClient_QueryStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		httpStatus int
		body       map[string]string
		want       payments.GatewayStatus
	}{
		{
			name:       "result code zero is completed",
			httpStatus: http.StatusOK,
			body: map[string]string{
				"ResponseCode": "0",
				"ResultCode":   "0",
				"ResultDesc":   "The service request is processed successfully.",
			},
			want: payments.GatewayCompleted,
		},
		{
			name:       "cancelled by user is failed",
			httpStatus: http.StatusOK,
			body: map[string]string{
				"ResponseCode": "0",
				"ResultCode":   "1032",
				"ResultDesc":   "Request cancelled by user",
			},
			want: payments.GatewayFailed,
		},
		{
			name:       "timeout is failed",
			httpStatus: http.StatusOK,
			body: map[string]string{
				"ResponseCode": "0",
				"ResultCode":   "1037",
				"ResultDesc":   "DS timeout user cannot be reached",
			},
			want: payments.GatewayFailed,
		},
		{
			name:       "still processing is pending",
			httpStatus: http.StatusInternalServerError,
			body: map[string]string{
				"errorCode":    "500.001.1001",
				"errorMessage": "The transaction is being processed",
			},
			want: payments.GatewayPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tokenOr(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/mpesa/stkpushquery/v1/query", r.URL.Path)
				writeJSON(w, tt.httpStatus, tt.body)
			}))

			res, err := client.QueryStatus(ctx, "ws_CO_123")
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Status)
		})
	}

	t.Run("unreachable gateway", func(t *testing.T) {
		client, server := newTestClient(t, tokenOr(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		_, err := client.QueryStatus(ctx, "ws_CO_123")
		require.ErrorIs(t, err, payments.ErrGatewayUnavailable)
	})
}
