package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wachira567/eventhub-backend/config"
	"github.com/wachira567/eventhub-backend/internal/payments"
)

const (
	processingErrorCode = "500.001.1001"
	cancelledResultCode = "1032"
	timeoutResultCode   = "1037"
)

// Client talks to the Safaricom Daraja API: OAuth token, STK push initiation
// and STK query. It implements payments.Gateway.
type Client struct {
	httpClient *http.Client

	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string

	now func() time.Time
}

func NewClient(cfg *config.MpesaConfig) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		now:            time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.consumerKey + ":" + c.consumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned %d", payments.ErrGatewayUnavailable, resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", payments.ErrGatewayUnavailable)
	}
	return token.AccessToken, nil
}

// password builds the Lipa Na M-Pesa password: base64(shortcode+passkey+timestamp).
func (c *Client) password() (string, string) {
	timestamp := c.now().Format("20060102150405")
	encoded := base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
	return encoded, timestamp
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// Initiate sends the STK push prompt to the payer's device. amount is in
// minor units; Daraja takes whole shillings.
func (c *Client) Initiate(ctx context.Context, amount int64, phoneNumber, accountReference string) (*payments.InitiateResult, error) {
	// A fractional shilling total would be truncated below and the confirmed
	// amount could never match the stored one.
	if amount <= 0 || amount%100 != 0 {
		return nil, fmt.Errorf("%w: %d cents", payments.ErrInvalidAmount, amount)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	body := stkPushRequest{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount / 100,
		PartyA:            phoneNumber,
		PartyB:            c.shortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  accountReference,
		TransactionDesc:   "Event Ticket",
	}

	var out stkPushResponse
	status, err := c.post(ctx, token, "/mpesa/stkpush/v1/processrequest", body, &out)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		if status == http.StatusBadRequest && strings.Contains(strings.ToLower(out.ErrorMessage), "phone") {
			return nil, fmt.Errorf("%w: %s", payments.ErrInvalidPhoneNumber, out.ErrorMessage)
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: stk push returned %d", payments.ErrGatewayUnavailable, status)
		}
		return nil, fmt.Errorf("stk push rejected: %s %s", out.ErrorCode, out.ErrorMessage)
	}

	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("stk push rejected: %s", out.ResponseDescription)
	}

	return &payments.InitiateResult{
		CheckoutRequestID: out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		Description:       out.ResponseDescription,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// QueryStatus polls Daraja for the outcome of an earlier STK push. A request
// the provider is still processing maps to pending, result code 0 to
// completed, everything else to failed.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*payments.QueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := c.password()
	body := stkQueryRequest{
		BusinessShortCode: c.shortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	status, err := c.post(ctx, token, "/mpesa/stkpushquery/v1/query", body, &out)
	if err != nil {
		return nil, err
	}

	if out.ErrorCode == processingErrorCode {
		return &payments.QueryResult{Status: payments.GatewayPending, Description: out.ErrorMessage}, nil
	}
	if status != http.StatusOK {
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: stk query returned %d", payments.ErrGatewayUnavailable, status)
		}
		return nil, fmt.Errorf("stk query rejected: %s %s", out.ErrorCode, out.ErrorMessage)
	}

	switch out.ResultCode {
	case "0":
		return &payments.QueryResult{Status: payments.GatewayCompleted, Description: out.ResultDesc}, nil
	case cancelledResultCode, timeoutResultCode:
		return &payments.QueryResult{Status: payments.GatewayFailed, Description: out.ResultDesc}, nil
	default:
		return &payments.QueryResult{Status: payments.GatewayFailed, Description: out.ResultDesc}, nil
	}
}

func (c *Client) post(ctx context.Context, token, path string, body interface{}, out interface{}) (int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", payments.ErrGatewayUnavailable, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unexpected gateway response: %s", string(raw))
		}
	}
	return resp.StatusCode, nil
}
