package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSTKCallback(t *testing.T) {
	t.Run("successful payment", func(t *testing.T) {
		payload := []byte(`{
			"Body": {
				"stkCallback": {
					"MerchantRequestID": "29115-34620561-1",
					"CheckoutRequestID": "ws_CO_123",
					"ResultCode": 0,
					"ResultDesc": "The service request is processed successfully.",
					"CallbackMetadata": {
						"Item": [
							{"Name": "Amount", "Value": 500.00},
							{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
							{"Name": "TransactionDate", "Value": 20191219102115},
							{"Name": "PhoneNumber", "Value": 254700000000}
						]
					}
				}
			}
		}`)

		cb, err := parseSTKCallback(payload)
		require.NoError(t, err)
		require.Equal(t, "ws_CO_123", cb.CheckoutRequestID)
		require.Equal(t, 0, cb.ResultCode)
		require.Equal(t, int64(50000), cb.Amount)
		require.Equal(t, "NLJ7RT61SV", cb.MpesaReceipt)
		require.Equal(t, "254700000000", cb.PhoneNumber)
	})

	t.Run("cancelled payment has no metadata", func(t *testing.T) {
		payload := []byte(`{
			"Body": {
				"stkCallback": {
					"MerchantRequestID": "29115-34620561-1",
					"CheckoutRequestID": "ws_CO_456",
					"ResultCode": 1032,
					"ResultDesc": "Request cancelled by user"
				}
			}
		}`)

		cb, err := parseSTKCallback(payload)
		require.NoError(t, err)
		require.Equal(t, "ws_CO_456", cb.CheckoutRequestID)
		require.Equal(t, 1032, cb.ResultCode)
		require.Equal(t, "Request cancelled by user", cb.ResultDesc)
		require.Zero(t, cb.Amount)
	})

	t.Run("missing checkout request id", func(t *testing.T) {
		_, err := parseSTKCallback([]byte(`{"Body": {"stkCallback": {"ResultCode": 0}}}`))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseSTKCallback([]byte(`not json`))
		require.Error(t, err)
	})
}
