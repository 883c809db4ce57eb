package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/castgate/chain"
	"github.com/castgate/handler"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/castgate/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testTreasury = "0x00000000000000000000000000000000000000aa"

func testHash(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}

type stubVerifier struct {
	verification chain.Verification
}

func (v *stubVerifier) Verify(_ context.Context, _ common.Hash, _, _ common.Address, _ chain.PayloadMatcher) (*chain.Verification, error) {
	out := v.verification
	return &out, nil
}

type stubDisburser struct {
	calls int
}

func (d *stubDisburser) Disburse(_ context.Context, _ common.Address, _ *big.Int) (string, error) {
	d.calls++
	return testHash(900 + d.calls), nil
}

type env struct {
	engine    *gin.Engine
	verifier  *stubVerifier
	disburser *stubDisburser
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	verifier := &stubVerifier{verification: chain.Verification{
		Status: chain.StatusConfirmed,
		Sender: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}}
	disburser := &stubDisburser{}
	treasury := common.HexToAddress(testTreasury)

	eligibility := repository.NewEligibilityRepository(db)
	claim := service.NewClaimService(eligibility, repository.NewDisbursementRepository(db),
		verifier, disburser, treasury, big.NewInt(1000))
	feedback := service.NewFeedbackService(eligibility, repository.NewFeedbackRepository(db),
		verifier, treasury)
	prediction := service.NewPredictionService(eligibility, repository.NewTallyRepository(db),
		verifier, treasury, []string{"up", "down"})

	engine := SetupRouter(
		handler.NewClaimHandler(claim),
		handler.NewFeedbackHandler(feedback),
		handler.NewPredictionHandler(prediction))
	return &env{engine: engine, verifier: verifier, disburser: disburser}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	fields := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, fields
}

func code(t *testing.T, fields map[string]json.RawMessage) string {
	t.Helper()
	var s string
	if raw, ok := fields["code"]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			t.Fatalf("decode code: %v", err)
		}
	}
	return s
}

func TestClaimOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec, fields := e.do(t, http.MethodGet, "/api/claim/status?userId=u1&scope=proj", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if string(fields["canClaim"]) != "true" {
		t.Fatalf("canClaim = %s", fields["canClaim"])
	}

	submit := gin.H{"userId": "u1", "scope": "proj", "txHash": testHash(1)}
	rec, fields = e.do(t, http.MethodPost, "/api/claim/submit", submit)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}
	if string(fields["success"]) != "true" {
		t.Fatalf("success = %s", fields["success"])
	}
	var result service.ClaimResult
	if err := json.Unmarshal(fields["result"], &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.AlreadyCompleted || result.AmountWei != "1000" {
		t.Fatalf("result = %+v", result)
	}

	rec, fields = e.do(t, http.MethodGet, "/api/claim/status?userId=u1&scope=proj", nil)
	if rec.Code != http.StatusOK || string(fields["claimed"]) != "true" {
		t.Fatalf("post-claim status = %d %s", rec.Code, rec.Body.String())
	}

	// replay with a fresh hash: still 200, flagged, no second payout
	submit["txHash"] = testHash(2)
	rec, fields = e.do(t, http.MethodPost, "/api/claim/submit", submit)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(fields["result"], &result); err != nil {
		t.Fatalf("decode replay result: %v", err)
	}
	if !result.AlreadyCompleted {
		t.Fatal("replay not flagged as already completed")
	}
	if e.disburser.calls != 1 {
		t.Fatalf("disbursements = %d, want 1", e.disburser.calls)
	}
}

func TestSubmitMissingFieldsIsBadRequest(t *testing.T) {
	e := newEnv(t)
	rec, fields := e.do(t, http.MethodPost, "/api/claim/submit", gin.H{"userId": "u1"})
	if rec.Code != http.StatusBadRequest || code(t, fields) != "VALIDATION" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitMalformedHashIsBadRequest(t *testing.T) {
	e := newEnv(t)
	rec, fields := e.do(t, http.MethodPost, "/api/claim/submit",
		gin.H{"userId": "u1", "scope": "proj", "txHash": "0xnothex"})
	if rec.Code != http.StatusBadRequest || code(t, fields) != "VALIDATION" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitPendingIsAccepted(t *testing.T) {
	e := newEnv(t)
	e.verifier.verification = chain.Verification{Status: chain.StatusPending, Reason: "insufficient confirmations"}

	rec, fields := e.do(t, http.MethodPost, "/api/claim/submit",
		gin.H{"userId": "u1", "scope": "proj", "txHash": testHash(1)})
	if rec.Code != http.StatusAccepted || code(t, fields) != "NOT_CONFIRMED" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if string(fields["retry"]) != "true" {
		t.Fatalf("retry = %s", fields["retry"])
	}
}

func TestSubmitInvalidProofIsUnprocessable(t *testing.T) {
	e := newEnv(t)
	e.verifier.verification = chain.Verification{Status: chain.StatusInvalid, Reason: "transaction value is not zero"}

	rec, fields := e.do(t, http.MethodPost, "/api/feedback/submit",
		gin.H{"userId": "u1", "message": "hello", "txHash": testHash(1)})
	if rec.Code != http.StatusUnprocessableEntity || code(t, fields) != "INVALID_PROOF" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitHashReuseIsConflict(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/api/claim/submit",
		gin.H{"userId": "u1", "scope": "proj", "txHash": testHash(1)})
	if rec.Code != http.StatusOK {
		t.Fatalf("first submit = %d: %s", rec.Code, rec.Body.String())
	}

	rec, fields := e.do(t, http.MethodPost, "/api/claim/submit",
		gin.H{"userId": "u2", "scope": "proj", "txHash": testHash(1)})
	if rec.Code != http.StatusConflict || code(t, fields) != "CONFLICT" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPredictionOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec, fields := e.do(t, http.MethodPost, "/api/prediction/submit",
		gin.H{"userId": "u1", "scope": "2026-08-31", "candidateId": "up", "txHash": testHash(1)})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}

	rec, fields = e.do(t, http.MethodGet, "/api/prediction/status?userId=u1&scope=2026-08-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status service.PredictionStatus
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Predicted || status.Choice != "up" {
		t.Fatalf("status = %+v", status)
	}
	if status.Percentages["up"] != 100 || status.Percentages["down"] != 0 {
		t.Fatalf("percentages = %v", status.Percentages)
	}
}

func TestFeedbackEntriesOverHTTP(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/api/feedback/submit",
		gin.H{"userId": "u1", "message": "hello", "txHash": testHash(1)})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}

	rec, fields := e.do(t, http.MethodGet, "/api/feedback/entries?page=1&size=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("entries = %d: %s", rec.Code, rec.Body.String())
	}
	if string(fields["total"]) != "1" {
		t.Fatalf("total = %s", fields["total"])
	}
	var entries []map[string]any
	if err := json.Unmarshal(fields["entries"], &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0]["Message"] != "hello" {
		t.Fatalf("entries = %v", entries)
	}
}
