package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/opaline-simulator/internal/ratelimit"
	"github.com/noah-isme/opaline-simulator/internal/workflow"
)

type submitEnvelope struct {
	Data struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		ID       string `json:"id"`
		Appended bool   `json:"appended"`
		Amounts  struct {
			Revenue   json.Number `json:"revenue"`
			TotalCost json.Number `json:"totalCost"`
			NetProfit json.Number `json:"netProfit"`
		} `json:"amounts"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newRouter(f *fixture, submit ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	workflow.NewHandler(workflow.HandlerConfig{Service: f.service}).Routes(r, submit...)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const fullBody = `{"contactName":"Durand","contactSurname":"Alice","contactEmail":"alice@example.com","monthlyClientCount":50,"kitCount1Person":100,"kitCount2Person":50}`

func TestSubmitAccepted(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", fullBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var env submitEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "accepted", env.Data.Status)
	require.Equal(t, "📩 Un email a été envoyé à alice@example.com avec votre simulation.", env.Data.Message)
	require.True(t, env.Data.Appended)
	require.Equal(t, "2500.00", env.Data.Amounts.Revenue.String())
	require.Equal(t, "677.50", env.Data.Amounts.NetProfit.String())
}

func TestSubmitAppliesDefaultCounts(t *testing.T) {
	f := newFixture(t)
	body := `{"contactName":"Durand","contactSurname":"Alice","contactEmail":"alice@example.com"}`
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rows := f.store.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, []string{"50", "100", "50"}, rows[0][4:7])
}

func TestSubmitValidationFailed(t *testing.T) {
	f := newFixture(t)
	body := `{"contactName":"","contactSurname":"Alice","contactEmail":"alice@example.com"}`
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	require.Equal(t, workflow.MessageMissingFields, env.Error.Message)
	require.Equal(t, []any{"contactName"}, env.Error.Details["fields"])
	require.Zero(t, f.store.appends)
}

func TestSubmitInvalidCounts(t *testing.T) {
	f := newFixture(t)
	body := `{"contactName":"Durand","contactSurname":"Alice","contactEmail":"alice@example.com",` +
		`"monthlyClientCount":0,"kitCount1Person":1000001,"kitCount2Person":5}`
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, workflow.MessageInvalidCounts, env.Error.Message)
	require.Equal(t, []any{"kitCount1Person", "monthlyClientCount"}, env.Error.Details["fields"])
	require.Zero(t, f.store.appends)
	require.Zero(t, f.transport.calls)
}

func TestSubmitStoreFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.store.appendErr = errors.New("permission denied for spreadsheet 1AbC")
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", fullBody)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "1AbC")
}

func TestSubmitPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.outbox.Err = errors.New("535 5.7.8 bad credentials")
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", fullBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var env submitEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "partial_failure", env.Data.Status)
	require.Equal(t, workflow.MessageSendFailed, env.Data.Message)
	require.NotContains(t, rec.Body.String(), "bad credentials")
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), http.MethodPost, "/api/v1/submissions", `{"contactName":"x","extra":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, f.store.appends)
}

func TestSubmitIsRateLimited(t *testing.T) {
	f := newFixture(t)
	limit := ratelimit.Handler{
		Limiter: ratelimit.NewMemory(),
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: time.Minute, Max: 1},
	}
	router := newRouter(f, limit.Middleware)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/submissions", fullBody).Code)
	require.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodPost, "/api/v1/submissions", fullBody).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/pricing", "").Code)
}

func TestPricingEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), http.MethodGet, "/api/v1/pricing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{
		"prices":{"pricePerKit1Person":14.00,"pricePerKit2Person":22.00,"costPerKit":12.15},
		"defaults":{"monthlyClientCount":50,"kitCount1Person":100,"kitCount2Person":50}
	}}`, rec.Body.String())
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	rec := do(t, router, http.MethodPost, "/api/v1/quote", `{"kitCount1Person":10,"kitCount2Person":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"revenue":140.00,"totalCost":121.50,"netProfit":18.50}}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/quote", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"revenue":2500.00,"totalCost":1822.50,"netProfit":677.50}}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/quote", `{"kitCount1Person":-1}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/quote", `{"kitCount1Person":1000000,"kitCount2Person":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"data":{"revenue":14000000.00,"totalCost":12150000.00,"netProfit":1850000.00}}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/v1/quote", `{"kitCount1Person":0,"kitCount2Person":7000000000000000}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, workflow.MessageInvalidCounts, env.Error.Message)
	require.Equal(t, []any{"kitCount2Person"}, env.Error.Details["fields"])

	require.Zero(t, f.store.appends)
	require.Zero(t, f.transport.calls)
}

func TestHandlerWithoutService(t *testing.T) {
	h := workflow.NewHandler(workflow.HandlerConfig{})
	rec := httptest.NewRecorder()
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(fullBody)).WithContext(context.Background()))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
