package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const rejectedSuffix = "1001"

// provider imitates the EZPG endpoints the ledger calls. Withdrawal amounts
// ending in 1001 are rejected with result code 1001. With a callback URL set,
// accepted withdrawals are followed by a withdrawal notification.
type provider struct {
	cfg    config
	client *http.Client
	seq    atomic.Int64

	// after schedules f; replaced in tests.
	after func(d time.Duration, f func())
}

func newProvider(cfg config, client *http.Client) *provider {
	return &provider{
		cfg:    cfg,
		client: client,
		after:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

func (p *provider) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /merWithdrawApi", p.withdraw)
	mux.HandleFunc("POST /virtual-accounts", p.registerVirtualAccount)
	mux.HandleFunc("POST /simulate/deposit", p.simulateDeposit)
	return mux
}

type withdrawRequest struct {
	Mid         string `json:"mid"`
	Meky        string `json:"meky"`
	Moid        string `json:"moid"`
	WithAmt     string `json:"withAmt"`
	BankCd      string `json:"bankCd"`
	WithAccntNo string `json:"withAccntNo"`
	WithAccntNm string `json:"withAccntNm"`
	WithType    string `json:"withType"`
}

type withdrawResponse struct {
	ResultCd  string `json:"resultCd"`
	ResultMsg string `json:"resultMsg"`
	NatvTrNo  string `json:"natvTrNo,omitempty"`
}

func (p *provider) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, withdrawResponse{ResultCd: "9001", ResultMsg: "malformed request"})
		return
	}
	if req.Mid != p.cfg.MerchantID || req.Meky != p.cfg.MerchantKey {
		writeJSON(w, http.StatusOK, withdrawResponse{ResultCd: "9002", ResultMsg: "invalid merchant credentials"})
		return
	}

	if strings.HasSuffix(req.WithAmt, rejectedSuffix) {
		slog.Info("withdrawal rejected", "moid", req.Moid, "amount", req.WithAmt)
		writeJSON(w, http.StatusOK, withdrawResponse{ResultCd: rejectedSuffix, ResultMsg: "invalid account"})
		return
	}

	natvTrNo := p.nextTrNo("NATV")
	slog.Info("withdrawal accepted", "moid", req.Moid, "natv_tr_no", natvTrNo, "amount", req.WithAmt)
	writeJSON(w, http.StatusOK, withdrawResponse{ResultCd: "0000", ResultMsg: "success", NatvTrNo: natvTrNo})

	if p.cfg.CallbackURL != "" {
		p.after(p.cfg.CallbackDelay, func() { p.notifyWithdrawal(req, natvTrNo) })
	}
}

type virtualAccountRequest struct {
	MerchantID  string `json:"merchantId"`
	BankCd      string `json:"bankCd"`
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName"`
}

func (p *provider) registerVirtualAccount(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+p.cfg.MerchantKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid merchant key"})
		return
	}

	var req virtualAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountNo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "accountNo is required"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transactionId": p.nextTrNo("VA"),
		"bankCd":        req.BankCd,
		"accountNo":     req.AccountNo,
		"accountName":   req.AccountName,
		"message":       "registered",
	})
}

type simulateDepositRequest struct {
	VacctNo   string `json:"vacctNo"`
	BankCd    string `json:"bankCd"`
	Amt       string `json:"amt"`
	DepositNm string `json:"depositNm"`
}

// simulateDeposit sends a deposit notification to the callback URL as if a
// bank transfer had reached the virtual account.
func (p *provider) simulateDeposit(w http.ResponseWriter, r *http.Request) {
	if p.cfg.CallbackURL == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "MOCK_CALLBACK_URL not set"})
		return
	}

	var req simulateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VacctNo == "" || req.Amt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "vacctNo and amt are required"})
		return
	}

	now := time.Now()
	trNo := p.nextTrNo("TR")
	ack, err := p.send("/webhooks/ezpg/deposit-notification", map[string]string{
		"mid":       p.cfg.MerchantID,
		"vacctNo":   req.VacctNo,
		"bankCd":    req.BankCd,
		"amt":       req.Amt,
		"depositDt": now.Format("20060102"),
		"depositTm": now.Format("150405"),
		"trNo":      trNo,
		"depositNm": req.DepositNm,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"trNo": trNo, "ack": ack})
}

func (p *provider) notifyWithdrawal(req withdrawRequest, natvTrNo string) {
	now := time.Now()
	ack, err := p.send("/webhooks/ezpg/withdrawal-notification", map[string]string{
		"mid":       p.cfg.MerchantID,
		"natvTrNo":  natvTrNo,
		"moid":      req.Moid,
		"resultCd":  "0000",
		"resultMsg": "success",
		"amt":       req.WithAmt,
		"bankCd":    req.BankCd,
		"accntNo":   req.WithAccntNo,
		"accntNm":   req.WithAccntNm,
		"trDt":      now.Format("20060102"),
		"trTm":      now.Format("150405"),
	})
	if err != nil {
		slog.Error("withdrawal notification failed", "natv_tr_no", natvTrNo, "error", err)
		return
	}
	slog.Info("withdrawal notification delivered", "natv_tr_no", natvTrNo, "ack", ack)
}

func (p *provider) send(path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Post(strings.TrimRight(p.cfg.CallbackURL, "/")+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ack bytes.Buffer
	if _, err := ack.ReadFrom(resp.Body); err != nil {
		return "", err
	}
	return ack.String(), nil
}

func (p *provider) nextTrNo(prefix string) string {
	return prefix + "-" + time.Now().Format("20060102") + "-" + uuid.NewString()[:8] + "-" + strconv.FormatInt(p.seq.Add(1), 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
