package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:     srv.URL,
		MerchantID:  "M-TEST",
		MerchantKey: "secret-key",
		Timeout:     200 * time.Millisecond,
	}, nil)
}

func TestExecuteWithdrawal_Success(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/merWithdrawApi", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resultCd":"0000","resultMsg":"OK","natvTrNo":"NTV-42"}`))
	})

	resp, err := client.ExecuteWithdrawal(context.Background(), WithdrawalRequest{
		Moid:          "WD-1a2b3c4d",
		Amount:        15000,
		BankCode:      "004",
		AccountNumber: "123-456",
		AccountHolder: "Kim",
	})
	require.NoError(t, err)

	assert.Equal(t, "NTV-42", resp.NatvTrNo)
	assert.Equal(t, ResultSuccess, resp.ResultCd)
	assert.JSONEq(t, `{"resultCd":"0000","resultMsg":"OK","natvTrNo":"NTV-42"}`, string(resp.Raw))

	assert.Equal(t, map[string]string{
		"mid":         "M-TEST",
		"meky":        "secret-key",
		"moid":        "WD-1a2b3c4d",
		"withAmt":     "15000",
		"bankCd":      "004",
		"withAccntNo": "123-456",
		"withAccntNm": "Kim",
		"withType":    "03",
	}, got)
}

func TestExecuteWithdrawal_Failures(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantBusiness *BusinessError
		wantUnavail  bool
	}{
		{
			name: "non-success result code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"resultCd":"1001","resultMsg":"Invalid data"}`))
			},
			wantBusiness: &BusinessError{Code: "1001", Message: "Invalid data"},
		},
		{
			name: "client error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`bad account`))
			},
			wantBusiness: &BusinessError{Code: "HTTP_400", Message: "bad account"},
		},
		{
			name: "server error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantUnavail: true,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			wantUnavail: true,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
				w.Write([]byte(`{"resultCd":"0000","natvTrNo":"late"}`))
			},
			wantUnavail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)

			_, err := client.ExecuteWithdrawal(context.Background(), WithdrawalRequest{
				Moid: "WD-00000000", Amount: 100, BankCode: "004", AccountNumber: "1", AccountHolder: "A",
			})
			require.Error(t, err)

			be, isBusiness := IsBusinessError(err)
			if tt.wantBusiness != nil {
				require.True(t, isBusiness, "expected business error, got %v", err)
				assert.Equal(t, tt.wantBusiness, be)
				assert.NotErrorIs(t, err, domain.ErrGatewayUnavailable)
			}
			if tt.wantUnavail {
				assert.False(t, isBusiness)
				assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
			}
		})
	}
}

func TestRegisterVirtualAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/virtual-accounts", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "M-TEST", body["merchantId"])
		assert.Equal(t, "9999123456", body["accountNo"])
		assert.Equal(t, "Y", body["fixYn"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"transactionId":"VA-TX-1","bankCd":"001","accountNo":"9999123456","accountName":"Lee"}`))
	})

	resp, err := client.RegisterVirtualAccount(context.Background(), VirtualAccountRequest{
		BankCode:      "001",
		AccountNumber: "9999123456",
		AccountHolder: "Lee",
	})
	require.NoError(t, err)
	assert.Equal(t, "VA-TX-1", resp.TransactionID)
	assert.Equal(t, "9999123456", resp.AccountNumber)
	assert.Equal(t, "Lee", resp.AccountHolder)
}

func TestRegisterVirtualAccount_MissingTransactionID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"bank closed"}`))
	})

	_, err := client.RegisterVirtualAccount(context.Background(), VirtualAccountRequest{BankCode: "001", AccountNumber: "1", AccountHolder: "A"})
	be, ok := IsBusinessError(err)
	require.True(t, ok)
	assert.Equal(t, "bank closed", be.Message)
}
