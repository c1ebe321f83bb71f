package reconcile

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{"integer", "10000", 10000, false},
		{"trailing zero fraction", "10000.00", 10000, false},
		{"one", "1", 1, false},
		{"zero", "0", 0, true},
		{"negative", "-500", 0, true},
		{"fractional", "100.5", 0, true},
		{"empty", "", 0, true},
		{"not a number", "ten", 0, true},
		{"overflow", "99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateWithdrawal(t *testing.T) {
	valid := WithdrawalRequest{
		UserID:     uuid.New(),
		MerchantID: uuid.New(),
		Amount:     5000,
		Destination: domain.BankDestination{
			BankCode:      "004",
			AccountNumber: "1234567890",
			AccountHolder: "Kim Minsu",
		},
	}

	tests := []struct {
		name    string
		mutate  func(r *WithdrawalRequest)
		wantErr error
	}{
		{"valid", func(r *WithdrawalRequest) {}, nil},
		{"zero amount", func(r *WithdrawalRequest) { r.Amount = 0 }, domain.ErrInvalidAmount},
		{"negative amount", func(r *WithdrawalRequest) { r.Amount = -1 }, domain.ErrInvalidAmount},
		{"missing merchant", func(r *WithdrawalRequest) { r.MerchantID = uuid.Nil }, domain.ErrInvalidRequest},
		{"blank bank code", func(r *WithdrawalRequest) { r.Destination.BankCode = "  " }, domain.ErrInvalidRequest},
		{"missing account number", func(r *WithdrawalRequest) { r.Destination.AccountNumber = "" }, domain.ErrInvalidRequest},
		{"missing holder", func(r *WithdrawalRequest) { r.Destination.AccountHolder = "" }, domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := validateWithdrawal(req)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewWithdrawalReference(t *testing.T) {
	pattern := regexp.MustCompile(`^WD-[0-9a-f]{8}$`)
	seen := make(map[string]struct{})
	for range 100 {
		ref := newWithdrawalReference()
		assert.Regexp(t, pattern, ref)
		seen[ref] = struct{}{}
	}
	assert.Greater(t, len(seen), 95)
}

func TestVerifySender(t *testing.T) {
	svc := &Service{cfg: Config{GatewayMerchantID: "M123"}}

	require.NoError(t, svc.verifySender("M123"))
	require.ErrorIs(t, svc.verifySender("M999"), domain.ErrInvalidSender)
	require.ErrorIs(t, svc.verifySender(""), domain.ErrInvalidSender)
}
