package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/points-ledger/internal/domain"
)

func SeedUser(t *testing.T, db *sql.DB, name string, role domain.Role) *domain.User {
	t.Helper()

	u := &domain.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s-%s@test.com", name, uuid.NewString()[:8]),
		Name:      name,
		Role:      role,
		Status:    domain.UserStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO users (id, email, name, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func SeedBalance(t *testing.T, db *sql.DB, userID, merchantID uuid.UUID, balance int64) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO balances (user_id, merchant_id, balance, updated_at)
		 VALUES ($1, $2, $3, now())`,
		userID, merchantID, balance,
	)
	if err != nil {
		t.Fatalf("seed balance %s/%s: %v", userID, merchantID, err)
	}
}

func SeedVirtualAccount(t *testing.T, db *sql.DB, userID, merchantID uuid.UUID, accountNumber string, status domain.VirtualAccountStatus) *domain.VirtualAccount {
	t.Helper()

	now := time.Now().UTC()
	va := &domain.VirtualAccount{
		ID:            uuid.New(),
		UserID:        userID,
		MerchantID:    merchantID,
		Provider:      "ezpg",
		BankCode:      "004",
		BankName:      "KB Kookmin",
		AccountNumber: accountNumber,
		AccountHolder: "Test Holder",
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := db.Exec(
		`INSERT INTO virtual_accounts
		   (id, user_id, merchant_id, provider, bank_code, bank_name, account_number, account_holder, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		va.ID, va.UserID, va.MerchantID, va.Provider, va.BankCode, va.BankName,
		va.AccountNumber, va.AccountHolder, va.Status, va.CreatedAt, va.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed virtual account %s: %v", accountNumber, err)
	}
	return va
}

func GetBalance(t *testing.T, db *sql.DB, userID, merchantID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(
		`SELECT balance FROM balances WHERE user_id = $1 AND merchant_id = $2`,
		userID, merchantID,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("get balance %s/%s: %v", userID, merchantID, err)
	}
	return balance
}

// SumTransactions adds up the signed amounts of every entry that has moved
// money for the pair. A PENDING or PROCESSING withdrawal counts because its
// debit is already applied to the balance.
func SumTransactions(t *testing.T, db *sql.DB, userID, merchantID uuid.UUID) int64 {
	t.Helper()

	var sum int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		 WHERE user_id = $1 AND merchant_id = $2`,
		userID, merchantID,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("sum transactions %s/%s: %v", userID, merchantID, err)
	}
	return sum
}

func CountByReference(t *testing.T, db *sql.DB, referenceID string, typ domain.TransactionType) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE reference_id = $1 AND type = $2`,
		referenceID, typ,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for %s/%s: %v", referenceID, typ, err)
	}
	return count
}

func CountByUser(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for user %s: %v", userID, err)
	}
	return count
}
