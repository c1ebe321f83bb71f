package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

const (
	ResultSuccess = "0000"

	providerName = "EZPG"
	maxBodyBytes = 1 << 20
)

// BusinessError is a definitive rejection by the gateway. No money moved.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("gateway rejected request: %s (%s)", e.Message, e.Code)
}

type metricsRecorder interface {
	ObserveGatewayRequest(operation, result string, d time.Duration)
}

type Config struct {
	BaseURL      string
	MerchantID   string
	MerchantKey  string
	WithdrawType string
	Timeout      time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    metricsRecorder
}

func NewClient(cfg Config, metrics metricsRecorder) *Client {
	if cfg.WithdrawType == "" {
		cfg.WithdrawType = "03"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		metrics: metrics,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Provider() string { return providerName }

type WithdrawalRequest struct {
	Moid          string
	Amount        int64
	BankCode      string
	AccountNumber string
	AccountHolder string
}

type WithdrawalResponse struct {
	NatvTrNo  string
	ResultCd  string
	ResultMsg string
	Raw       json.RawMessage
}

type withdrawPayload struct {
	Mid         string `json:"mid"`
	Meky        string `json:"meky"`
	Moid        string `json:"moid"`
	WithAmt     string `json:"withAmt"`
	BankCd      string `json:"bankCd"`
	WithAccntNo string `json:"withAccntNo"`
	WithAccntNm string `json:"withAccntNm"`
	WithType    string `json:"withType"`
}

type withdrawResult struct {
	ResultCd  string `json:"resultCd"`
	ResultMsg string `json:"resultMsg"`
	NatvTrNo  string `json:"natvTrNo"`
}

// ExecuteWithdrawal asks the gateway to pay out to a bank account. A non-"0000"
// result code is returned as *BusinessError. Transport failures, timeouts,
// non-2xx statuses and unreadable bodies wrap domain.ErrGatewayUnavailable, in
// which case the outcome at the gateway is unknown.
func (c *Client) ExecuteWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResponse, error) {
	payload := withdrawPayload{
		Mid:         c.cfg.MerchantID,
		Meky:        c.cfg.MerchantKey,
		Moid:        req.Moid,
		WithAmt:     strconv.FormatInt(req.Amount, 10),
		BankCd:      req.BankCode,
		WithAccntNo: req.AccountNumber,
		WithAccntNm: req.AccountHolder,
		WithType:    c.cfg.WithdrawType,
	}

	raw, err := c.post(ctx, "withdraw", "/merWithdrawApi", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("ExecuteWithdrawal: %w", err)
	}

	var result withdrawResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("ExecuteWithdrawal: decode response: %w: %w", domain.ErrGatewayUnavailable, err)
	}
	if result.ResultCd != ResultSuccess {
		return nil, fmt.Errorf("ExecuteWithdrawal: %w", &BusinessError{Code: result.ResultCd, Message: result.ResultMsg})
	}

	return &WithdrawalResponse{
		NatvTrNo:  result.NatvTrNo,
		ResultCd:  result.ResultCd,
		ResultMsg: result.ResultMsg,
		Raw:       raw,
	}, nil
}

type VirtualAccountRequest struct {
	BankCode      string
	AccountNumber string
	AccountHolder string
}

type VirtualAccountResponse struct {
	TransactionID string
	BankCode      string
	AccountNumber string
	AccountHolder string
	Raw           json.RawMessage
}

type virtualAccountPayload struct {
	MerchantID  string `json:"merchantId"`
	BankCd      string `json:"bankCd"`
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName"`
	FixYn       string `json:"fixYn"`
	DepositAmt  int64  `json:"depositAmt"`
	Currency    string `json:"currency"`
}

type virtualAccountResult struct {
	TransactionID string `json:"transactionId"`
	BankCd        string `json:"bankCd"`
	AccountNo     string `json:"accountNo"`
	AccountName   string `json:"accountName"`
	Message       string `json:"message"`
}

// RegisterVirtualAccount issues a fixed virtual account number at the gateway.
func (c *Client) RegisterVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccountResponse, error) {
	payload := virtualAccountPayload{
		MerchantID:  c.cfg.MerchantID,
		BankCd:      req.BankCode,
		AccountNo:   req.AccountNumber,
		AccountName: req.AccountHolder,
		FixYn:       "Y",
		Currency:    "KRW",
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.MerchantKey}

	raw, err := c.post(ctx, "register_virtual_account", "/virtual-accounts", headers, payload)
	if err != nil {
		return nil, fmt.Errorf("RegisterVirtualAccount: %w", err)
	}

	var result virtualAccountResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("RegisterVirtualAccount: decode response: %w: %w", domain.ErrGatewayUnavailable, err)
	}
	if result.TransactionID == "" {
		return nil, fmt.Errorf("RegisterVirtualAccount: %w", &BusinessError{Code: "NO_TRANSACTION_ID", Message: result.Message})
	}

	return &VirtualAccountResponse{
		TransactionID: result.TransactionID,
		BankCode:      result.BankCd,
		AccountNumber: result.AccountNo,
		AccountHolder: result.AccountName,
		Raw:           raw,
	}, nil
}

func (c *Client) post(ctx context.Context, operation, path string, headers map[string]string, payload any) (json.RawMessage, error) {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	log.Info("gateway request sent", "provider", providerName, "operation", operation)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(operation, "transport_error", start)
		return nil, fmt.Errorf("send: %w: %w", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(operation, "transport_error", start)
		return nil, fmt.Errorf("read body: %w: %w", domain.ErrGatewayUnavailable, err)
	}

	log.Info("gateway response received",
		"operation", operation,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(operation, "http_"+strconv.Itoa(resp.StatusCode), start)
		snippet := respBody
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &BusinessError{Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: string(snippet)}
		}
		return nil, fmt.Errorf("unexpected status %d: %s: %w", resp.StatusCode, string(snippet), domain.ErrGatewayUnavailable)
	}

	c.observe(operation, "ok", start)
	return respBody, nil
}

func (c *Client) observe(operation, result string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveGatewayRequest(operation, result, time.Since(start))
}

// IsBusinessError reports whether err carries a gateway rejection.
func IsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
