package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/chani337/selfstar/internal/domain"
	"github.com/chani337/selfstar/internal/services"
)

// creditStub satisfies CreditService with canned results per method.
type creditStub struct {
	me      *services.AccountStatus
	meErr   error
	grant   int
	grantE  error
	consume int
	consErr error
	entries []domain.CreditLedgerEntry
	ledErr  error
	upErr   error

	gotAmount int
	gotReason string
	gotLimit  int
}

func (s *creditStub) Me(ctx context.Context, userID uint) (*services.AccountStatus, error) {
	return s.me, s.meErr
}

func (s *creditStub) Grant(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error) {
	s.gotAmount, s.gotReason = amount, reason
	return s.grant, s.grantE
}

func (s *creditStub) Consume(ctx context.Context, userID uint, amount int, reason, refType, refID string) (int, error) {
	s.gotAmount = amount
	return s.consume, s.consErr
}

func (s *creditStub) Ledger(ctx context.Context, userID uint, limit int) ([]domain.CreditLedgerEntry, error) {
	s.gotLimit = limit
	return s.entries, s.ledErr
}

func (s *creditStub) Upgrade(ctx context.Context, userID uint, plan string) (*services.AccountStatus, error) {
	if s.upErr != nil {
		return nil, s.upErr
	}
	return &services.AccountStatus{Balance: 10, Plan: plan}, nil
}

func newCreditRouter(stub *creditStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(stub, nil)
	r.GET("/credits/me", h.GetCreditsMe)
	r.GET("/credits/ledger", h.GetCreditsLedger)
	r.POST("/credits/grant", h.GrantCredits)
	r.POST("/credits/consume", h.ConsumeCredits)
	r.POST("/credits/upgrade", h.UpgradePlan)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return m
}

func TestCredits_AuthRequired(t *testing.T) {
	r := newCreditRouter(&creditStub{me: &services.AccountStatus{Balance: 1, Plan: "free"}})

	for _, uid := range []string{"", "abc", "0", "-3"} {
		w := doJSON(t, r, http.MethodGet, "/credits/me", uid, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("X-User-ID=%q: status=%d; want 401", uid, w.Code)
		}
		if body := decode(t, w); body["code"] != ErrCodeUnauthorized || body["ok"] != false {
			t.Fatalf("X-User-ID=%q: body=%v", uid, body)
		}
	}
}

func TestGetCreditsMe(t *testing.T) {
	stub := &creditStub{me: &services.AccountStatus{Balance: 120, Plan: "pro"}}
	r := newCreditRouter(stub)

	w := doJSON(t, r, http.MethodGet, "/credits/me", "7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := decode(t, w)
	if body["ok"] != true || body["balance"] != float64(120) || body["plan"] != "pro" {
		t.Fatalf("body=%v", body)
	}
}

func TestGetCreditsLedger_PassesLimit(t *testing.T) {
	stub := &creditStub{entries: []domain.CreditLedgerEntry{{ID: 2, Delta: -5}, {ID: 1, Delta: 10}}}
	r := newCreditRouter(stub)

	w := doJSON(t, r, http.MethodGet, "/credits/ledger?limit=3", "7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if stub.gotLimit != 3 {
		t.Fatalf("limit = %d; want 3", stub.gotLimit)
	}
	body := decode(t, w)
	entries, isSlice := body["entries"].([]any)
	if body["ok"] != true || !isSlice || len(entries) != 2 {
		t.Fatalf("body=%v", body)
	}
}

func TestGrantCredits_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"disabled", services.ErrSelfGrantDisabled, http.StatusForbidden, ErrCodeSelfGrantDisabled},
		{"bad amount", services.ErrInvalidAmount, http.StatusBadRequest, ErrCodeBadRequest},
		{"ok", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &creditStub{grant: 42, grantE: tt.err}
			r := newCreditRouter(stub)

			w := doJSON(t, r, http.MethodPost, "/credits/grant", "7",
				gin.H{"amount": 10, "reason": "test"})
			if w.Code != tt.wantStatus {
				t.Fatalf("status=%d; want %d", w.Code, tt.wantStatus)
			}
			body := decode(t, w)
			if tt.wantCode != "" {
				if body["code"] != tt.wantCode {
					t.Fatalf("code=%v; want %s", body["code"], tt.wantCode)
				}
				return
			}
			if body["ok"] != true || body["balance"] != float64(42) {
				t.Fatalf("body=%v", body)
			}
			if stub.gotAmount != 10 || stub.gotReason != "test" {
				t.Fatalf("stub saw amount=%d reason=%q", stub.gotAmount, stub.gotReason)
			}
		})
	}
}

func TestConsumeCredits_Insufficient402(t *testing.T) {
	stub := &creditStub{consErr: services.ErrInsufficientCredits}
	r := newCreditRouter(stub)

	w := doJSON(t, r, http.MethodPost, "/credits/consume", "7", gin.H{"amount": 999})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status=%d; want 402", w.Code)
	}
	if body := decode(t, w); body["code"] != ErrCodeInsufficientCredits {
		t.Fatalf("body=%v", body)
	}
}

func TestConsumeCredits_OK(t *testing.T) {
	stub := &creditStub{consume: 90}
	r := newCreditRouter(stub)

	w := doJSON(t, r, http.MethodPost, "/credits/consume", "7", gin.H{"amount": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decode(t, w); body["balance"] != float64(90) {
		t.Fatalf("body=%v", body)
	}
}

func TestUpgradePlan(t *testing.T) {
	r := newCreditRouter(&creditStub{})
	w := doJSON(t, r, http.MethodPost, "/credits/upgrade", "7", gin.H{"plan": "pro"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if body := decode(t, w); body["plan"] != "pro" {
		t.Fatalf("body=%v", body)
	}

	// Unknown tier maps to 400 invalid_plan.
	r = newCreditRouter(&creditStub{upErr: services.ErrInvalidPlan})
	w = doJSON(t, r, http.MethodPost, "/credits/upgrade", "7", gin.H{"plan": "platinum"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d; want 400", w.Code)
	}
	if body := decode(t, w); body["code"] != ErrCodeInvalidPlan {
		t.Fatalf("body=%v", body)
	}

	// Missing plan never reaches the service.
	w = doJSON(t, r, http.MethodPost, "/credits/upgrade", "7", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d; want 400", w.Code)
	}
}
