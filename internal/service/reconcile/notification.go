package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/events"
	"github.com/josh-kwaku/points-ledger/internal/gateway"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

type NotificationOutcome string

const (
	OutcomeApplied   NotificationOutcome = "applied"
	OutcomeDuplicate NotificationOutcome = "duplicate"
)

type DepositNotification struct {
	Mid        string
	VacctNo    string
	BankCd     string
	Amt        string
	DepositDt  string
	DepositTm  string
	TrNo       string
	DepositNm  string
	BankTrID   string
	RawPayload json.RawMessage
}

type WithdrawalNotification struct {
	Mid        string
	NatvTrNo   string
	Moid       string
	ResultCd   string
	ResultMsg  string
	Amt        string
	BankCd     string
	AccntNo    string
	AccntNm    string
	TrDt       string
	TrTm       string
	BankTrID   string
	RawPayload json.RawMessage
}

// ParseAmount converts a gateway amount string into whole points. Fractional,
// zero and negative amounts are rejected.
func ParseAmount(amt string) (int64, error) {
	d, err := decimal.NewFromString(amt)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %q: %w", amt, domain.ErrInvalidAmount)
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("ParseAmount: %q: %w", amt, domain.ErrInvalidAmount)
	}
	if !d.LessThanOrEqual(decimal.NewFromInt(maxInt64)) {
		return 0, fmt.Errorf("ParseAmount: %q out of range: %w", amt, domain.ErrInvalidAmount)
	}
	return d.IntPart(), nil
}

const maxInt64 = 1<<63 - 1

func (s *Service) verifySender(mid string) error {
	if mid != s.cfg.GatewayMerchantID {
		return fmt.Errorf("verifySender: %q: %w", mid, domain.ErrInvalidSender)
	}
	return nil
}

// HandleDepositNotification credits a bank transfer into a virtual account.
// A nil error means the notification must be acknowledged.
func (s *Service) HandleDepositNotification(ctx context.Context, n DepositNotification) (NotificationOutcome, error) {
	log := logging.FromContext(ctx).With("notification", "deposit", "tr_no", n.TrNo)
	ctx = logging.WithLogger(ctx, log)

	if err := s.verifySender(n.Mid); err != nil {
		s.metrics.ObserveNotification("deposit", "invalid_sender")
		return "", fmt.Errorf("HandleDepositNotification: %w", err)
	}

	amount, err := ParseAmount(n.Amt)
	if err != nil {
		s.metrics.ObserveNotification("deposit", "invalid")
		return "", fmt.Errorf("HandleDepositNotification: %w", err)
	}

	release, err := s.acquire(ctx, "deposit:"+n.TrNo)
	if err != nil {
		s.metrics.ObserveNotification("deposit", "locked")
		return "", fmt.Errorf("HandleDepositNotification: %w", err)
	}
	defer release()

	depositor := n.DepositNm
	if depositor == "" {
		depositor = "bank transfer"
	}

	res, err := s.CreditDeposit(ctx, DepositRequest{
		VirtualAccountNumber: n.VacctNo,
		Amount:               amount,
		ExternalReference:    n.TrNo,
		Description:          "Deposit from " + depositor,
		Payload:              n.RawPayload,
	})
	if err != nil {
		s.metrics.ObserveNotification("deposit", "error")
		return "", fmt.Errorf("HandleDepositNotification: %w", err)
	}

	if res.Duplicate {
		s.metrics.ObserveNotification("deposit", string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}
	s.metrics.ObserveNotification("deposit", string(OutcomeApplied))
	return OutcomeApplied, nil
}

// HandleWithdrawalNotification applies the gateway's final word on a payout.
// Success completes the withdrawal; failure fails it and returns the reserved
// points. Redeliveries are acknowledged without touching the ledger.
func (s *Service) HandleWithdrawalNotification(ctx context.Context, n WithdrawalNotification) (NotificationOutcome, error) {
	log := logging.FromContext(ctx).With("notification", "withdrawal", "natv_tr_no", n.NatvTrNo, "moid", n.Moid)
	ctx = logging.WithLogger(ctx, log)

	if err := s.verifySender(n.Mid); err != nil {
		s.metrics.ObserveNotification("withdrawal", "invalid_sender")
		return "", fmt.Errorf("HandleWithdrawalNotification: %w", err)
	}
	if n.NatvTrNo == "" && n.Moid == "" {
		s.metrics.ObserveNotification("withdrawal", "invalid")
		return "", fmt.Errorf("HandleWithdrawalNotification: no reference: %w", domain.ErrInvalidRequest)
	}

	ref := n.NatvTrNo
	if ref == "" {
		ref = n.Moid
	}

	release, err := s.acquire(ctx, "withdrawal:"+ref)
	if err != nil {
		s.metrics.ObserveNotification("withdrawal", "locked")
		return "", fmt.Errorf("HandleWithdrawalNotification: %w", err)
	}
	defer release()

	original, err := s.findWithdrawal(ctx, n)
	if err != nil {
		s.metrics.ObserveNotification("withdrawal", "unknown")
		return "", fmt.Errorf("HandleWithdrawalNotification: %w", err)
	}

	seen, err := s.transactions.ExistsByReference(ctx, ref,
		domain.TransactionTypeWithdrawalCompleted, domain.TransactionTypeWithdrawalFailed)
	if err != nil {
		return "", fmt.Errorf("HandleWithdrawalNotification: dedup lookup: %w", err)
	}
	if seen || original.Status.IsTerminal() {
		s.logSettledWithdrawal(ctx, original, n)
		s.metrics.ObserveNotification("withdrawal", string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	succeeded := n.ResultCd == gateway.ResultSuccess
	if amt, parseErr := ParseAmount(n.Amt); parseErr == nil && amt != -original.Amount {
		log.Warn("withdrawal notification amount differs from ledger",
			"transaction_id", original.ID,
			"ledger_amount", -original.Amount,
			"notified_amount", amt,
		)
	}

	entry, err := s.settleWithdrawal(ctx, original, n, ref, succeeded)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) || errors.Is(err, domain.ErrTransactionTerminal) {
			log.Info("withdrawal settled concurrently, acknowledging", "transaction_id", original.ID)
			s.metrics.ObserveNotification("withdrawal", string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		}
		s.metrics.ObserveNotification("withdrawal", "error")
		return "", fmt.Errorf("HandleWithdrawalNotification: %w", err)
	}

	eventType := events.TypeWithdrawalCompleted
	if succeeded {
		log.Info("withdrawal completed", "transaction_id", original.ID)
	} else {
		eventType = events.TypeWithdrawalFailed
		s.metrics.ObserveCompensation()
		log.Info("withdrawal failed, points returned",
			"transaction_id", original.ID,
			"amount", entry.Amount,
			"result_cd", n.ResultCd,
			"result_msg", n.ResultMsg,
		)
	}
	e := events.New(eventType, original.ID, original.UserID, original.MerchantID, -original.Amount, ref)
	if !succeeded {
		e.Reason = fmt.Sprintf("%s: %s", n.ResultCd, n.ResultMsg)
	}
	s.publish(ctx, e)

	s.metrics.ObserveNotification("withdrawal", string(OutcomeApplied))
	return OutcomeApplied, nil
}

// findWithdrawal locates the WITHDRAWAL_REQUEST by the gateway's reference,
// falling back to our own moid. The moid is looked up on the withdrawal
// request, since the entry's reference changes once the gateway accepts it.
func (s *Service) findWithdrawal(ctx context.Context, n WithdrawalNotification) (*domain.Transaction, error) {
	if n.NatvTrNo != "" {
		t, err := s.transactions.FindByReference(ctx, n.NatvTrNo, domain.TransactionTypeWithdrawalRequest)
		if err == nil {
			return t, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("findWithdrawal: %w", err)
		}
	}
	if n.Moid != "" {
		wr, err := s.withdrawals.GetByMoid(ctx, n.Moid)
		if err != nil {
			return nil, fmt.Errorf("findWithdrawal: %s: %w", n.Moid, err)
		}
		t, err := s.transactions.GetByID(ctx, wr.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("findWithdrawal: %w", err)
		}
		return t, nil
	}
	return nil, fmt.Errorf("findWithdrawal: %s: %w", n.NatvTrNo, domain.ErrNotFound)
}

func (s *Service) settleWithdrawal(ctx context.Context, original *domain.Transaction, n WithdrawalNotification, ref string, succeeded bool) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settleWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.transactions.GetForUpdate(ctx, tx, original.ID)
	if err != nil {
		return nil, fmt.Errorf("settleWithdrawal: %w", err)
	}
	if locked.Status.IsTerminal() {
		return nil, fmt.Errorf("settleWithdrawal: %w", domain.ErrTransactionTerminal)
	}

	debit := -locked.Amount
	to := domain.TransactionStatusCompleted
	entryType := domain.TransactionTypeWithdrawalCompleted
	var entryAmount int64
	description := "Withdrawal completed: " + n.ResultMsg
	upd := domain.TransactionUpdate{}
	if !succeeded {
		to = domain.TransactionStatusFailed
		entryType = domain.TransactionTypeWithdrawalFailed
		entryAmount = debit
		description = "Withdrawal failed: " + n.ResultMsg
		upd.AppendDescription = fmt.Sprintf("%s: %s", n.ResultCd, n.ResultMsg)
	}
	if n.NatvTrNo != "" && locked.ReferenceID != n.NatvTrNo {
		upd.ReferenceID = &n.NatvTrNo
	}

	if err := s.transactions.UpdateStatus(ctx, tx, locked.ID, compensableStatuses, to, upd); err != nil {
		return nil, fmt.Errorf("settleWithdrawal: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      locked.UserID,
		MerchantID:  locked.MerchantID,
		Type:        entryType,
		Status:      domain.TransactionStatusCompleted,
		Amount:      entryAmount,
		ReferenceID: ref,
		Description: &description,
		Metadata:    n.RawPayload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transactions.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("settleWithdrawal: create entry: %w", err)
	}

	if !succeeded {
		if _, err := s.balances.AdjustBalance(ctx, tx, locked.UserID, locked.MerchantID, debit); err != nil {
			return nil, fmt.Errorf("settleWithdrawal: credit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("settleWithdrawal: commit: %w", err)
	}
	return entry, nil
}

// logSettledWithdrawal flags the one redelivery that is not harmless: the
// gateway paid out a withdrawal we already compensated.
func (s *Service) logSettledWithdrawal(ctx context.Context, original *domain.Transaction, n WithdrawalNotification) {
	if original.Status == domain.TransactionStatusFailed && n.ResultCd == gateway.ResultSuccess {
		logging.Critical(ctx, "gateway reports payout for a withdrawal already failed and refunded",
			"transaction_id", original.ID,
			"user_id", original.UserID,
			"merchant_id", original.MerchantID,
			"amount", -original.Amount,
		)
		return
	}
	logging.FromContext(ctx).Info("duplicate withdrawal notification ignored",
		"transaction_id", original.ID,
		"status", original.Status,
	)
}
