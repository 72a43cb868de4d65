package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/cache"
	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/service"
	"ledgerpos/backend/internal/store/memory"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testOrigin = "http://127.0.0.1:3000"
)

// newTestAPI wires the real service and auth manager over a seeded memory
// store so handler tests exercise the whole request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_MANAGER_PASSWORD", "manager123")
	t.Setenv("SEED_SELLER_PASSWORD", "seller123")

	logger, _ := test.NewNullLogger()
	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Logger: logger})
	auth := NewAuthManager(testSecret, time.Hour, repo, logger)

	return New(svc, auth, Options{
		AllowedOrigin:    testOrigin,
		Limiter:          cache.NewMemory(),
		LoginMaxAttempts: 5,
		Logger:           logger,
	})
}

func doJSON(t *testing.T, h http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func login(t *testing.T, h http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.LoginResponse](t, rec)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func today() string {
	return time.Now().UTC().Format(domain.DayLayout)
}

func openOperation(t *testing.T, h http.Handler, token string, location string, symbol string) domain.Operation {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/operations", token, domain.OpenOperationRequest{
		Date: today(), Location: location, Symbol: symbol,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Operation](t, rec)
}

func TestHandleHealth(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	h := newTestAPI(t).Handler()

	token := login(t, h, "manager", "manager123")
	assert.NotEmpty(t, token)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "manager", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutesRequireAuth(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/operations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/operations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperationLifecycleOverHTTP(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	manager := login(t, h, "manager", "manager123")

	// GIVEN an open operation at T/A
	op := openOperation(t, h, seller, "T", "A")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/operations/lock?date="+today()+"&location=T&symbol=A", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lock := decodeBody[domain.LockStatus](t, rec)
	assert.True(t, lock.IsLocked)
	require.NotNil(t, lock.Operation)
	assert.Equal(t, op.ID, lock.Operation.ID)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/operations", seller, domain.OpenOperationRequest{Date: today(), Location: "T", Symbol: "A"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody[map[string]any](t, rec)["kind"])

	// WHEN an item is sold inside it
	rec = doJSON(t, h, http.MethodPost, "/api/v1/operations/"+op.ID+"/sales", seller, map[string]any{
		"barcode": "5901234000011",
		"size":    "M",
		"cash":    []map[string]any{{"amount": "749.00"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[domain.ActionResponse](t, rec).ChangesAdded)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?location=T", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.Sale](t, rec)["sales"], 1)

	// THEN a seller may not cancel, a manager may, exactly once
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+op.ID, seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+op.ID, manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.RollbackResult](t, rec)
	assert.Equal(t, 1, result.RestoredStates)
	assert.Equal(t, 1, result.RemovedHistoryEntries)
	assert.Equal(t, 1, result.RemovedRecords)
	assert.Empty(t, result.Errors)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+op.ID, manager, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?location=T", seller, nil)
	assert.Empty(t, decodeBody[map[string][]domain.Sale](t, rec)["sales"])

	rec = doJSON(t, h, http.MethodGet, "/api/v1/state?location=T", seller, nil)
	assert.Len(t, decodeBody[map[string][]domain.StateItem](t, rec)["items"], 3)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/operations/lock?date="+today()+"&location=T&symbol=A", seller, nil)
	assert.False(t, decodeBody[domain.LockStatus](t, rec).IsLocked)
}

func TestSellUnknownBarcodeReturnsNotFound(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	op := openOperation(t, h, seller, "T", "A")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/operations/"+op.ID+"/sales", seller, map[string]any{"barcode": "0000000000000", "size": "M"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[map[string]any](t, rec)["kind"])
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/operations", seller, map[string]any{"date": today(), "location": "T", "symbol": "A", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolvedCorrectionIsRebuiltOnCancel(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	manager := login(t, h, "manager", "manager123")

	// GIVEN a booked sale parked in the holding area by another operation
	selling := openOperation(t, h, seller, "T", "A")
	rec := doJSON(t, h, http.MethodPost, "/api/v1/operations/"+selling.ID+"/sales", seller, map[string]any{
		"barcode": "5901234000028",
		"size":    "S",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saleID := decodeBody[domain.ActionResponse](t, rec).RecordID

	parking := openOperation(t, h, seller, "T", "B")
	rec = doJSON(t, h, http.MethodPost, "/api/v1/operations/"+parking.ID+"/corrections", seller, map[string]any{
		"isFromSale": true,
		"recordId":   saleID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	correctionID := decodeBody[domain.ActionResponse](t, rec).RecordID

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+parking.ID+"/corrections/"+correctionID, seller, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// WHEN a third operation resolves it and is then cancelled
	resolving := openOperation(t, h, seller, "T", "C")
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+resolving.ID+"/corrections/"+correctionID, seller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/corrections?location=T", seller, nil)
	assert.Empty(t, decodeBody[map[string][]domain.CorrectionItem](t, rec)["corrections"])

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/operations/"+resolving.ID, manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.RollbackResult](t, rec)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.RebuiltRecords)
	assert.Zero(t, result.RestoredStates)

	// THEN the original sale exists again at its real location
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales?location=T", seller, nil)
	sales := decodeBody[map[string][]domain.Sale](t, rec)["sales"]
	require.Len(t, sales, 1)
	assert.Equal(t, "5901234000028", sales[0].Barcode)
	assert.False(t, sales[0].Processed)
}

func TestHistoryEndpoints(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	manager := login(t, h, "manager", "manager123")

	item := map[string]any{"fullName": "Belt Brown 95", "barcode": "5901234000035", "price": "129.00"}
	rec := doJSON(t, h, http.MethodPost, "/api/v1/history", seller, map[string]any{
		"operationType":  "sale",
		"originLocation": "P",
		"processedItems": []any{item},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	root := decodeBody[domain.TransactionHistoryEntry](t, rec)
	assert.True(t, root.IsActive)
	assert.Equal(t, 1, root.ItemsCount)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/history", seller, map[string]any{
		"operationType":         "sale",
		"originLocation":        "P",
		"processedItems":        []any{item},
		"isCorrection":          true,
		"originalTransactionId": root.TransactionID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	correction := decodeBody[domain.TransactionHistoryEntry](t, rec)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/history/"+correction.TransactionID+"/chain", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chain := decodeBody[map[string][]domain.TransactionHistoryEntry](t, rec)["chain"]
	require.Len(t, chain, 2)
	assert.Equal(t, root.TransactionID, chain[0].TransactionID)
	assert.True(t, chain[0].HasCorrections)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/history/"+root.TransactionID, seller, map[string]any{"destinationLocation": "T"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "T", decodeBody[domain.TransactionHistoryEntry](t, rec).DestinationLocation)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/history/"+root.TransactionID, seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/history/"+root.TransactionID, manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/history/"+root.TransactionID, seller, map[string]any{"destinationLocation": "P"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/history?isActive=false", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inactive := decodeBody[map[string][]domain.TransactionHistoryEntry](t, rec)["entries"]
	require.Len(t, inactive, 1)
	assert.Equal(t, root.TransactionID, inactive[0].TransactionID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/history?isActive=maybe", seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/history/purge?days=-1", manager, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/history/purge", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeBody[domain.PurgeResult](t, rec).Deactivated)
}

func TestDeferredSalesPayAll(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	manager := login(t, h, "manager", "manager123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/deferred-sales/pay-all", manager, map[string]any{"paidAmount": "100"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, id := range []string{"p-1", "p-2", "p-3"} {
		rec = doJSON(t, h, http.MethodPost, "/api/v1/deferred-sales", seller, map[string]any{"productId": id, "price": "50.00", "location": "T"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/deferred-sales/summary", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[domain.DeferredSummary](t, rec)
	assert.Equal(t, 3, summary.PendingCount)
	assert.True(t, summary.PendingValue.Equal(decimal.RequireFromString("150")))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/deferred-sales/pay-all", seller, map[string]any{"paidAmount": "100"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/deferred-sales/pay-all", manager, map[string]any{"paidAmount": "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settlement := decodeBody[domain.Settlement](t, rec)
	assert.Equal(t, "manager", settlement.PaidBy)
	assert.Equal(t, 3, settlement.TotalItemsCount)
	assert.True(t, settlement.AveragePerItem.Equal(decimal.RequireFromString("33.33")), settlement.AveragePerItem.String())

	rec = doJSON(t, h, http.MethodGet, "/api/v1/deferred-sales?status=paid", seller, nil)
	assert.Len(t, decodeBody[map[string][]domain.DeferredSale](t, rec)["deferredSales"], 3)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/deferred-sales?status=lost", seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogsAreManagerOnly(t *testing.T) {
	h := newTestAPI(t).Handler()
	seller := login(t, h, "seller", "seller123")
	manager := login(t, h, "manager", "manager123")
	openOperation(t, h, seller, "P", "A")

	rec := doJSON(t, h, http.MethodGet, "/api/v1/audit-logs", seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/audit-logs?date="+today(), manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[map[string][]domain.AuditLog](t, rec)["logs"]
	require.NotEmpty(t, logs)
	assert.Equal(t, "operation_open", logs[0].Action)
	assert.Equal(t, "seller", logs[0].ActorUsername)
}

func TestManagerCreatesUser(t *testing.T) {
	h := newTestAPI(t).Handler()
	manager := login(t, h, "manager", "manager123")

	rec := doJSON(t, h, http.MethodPost, "/api/v1/users", manager, domain.CreateUserRequest{Username: "seller2", Password: "secret99"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/users", manager, domain.CreateUserRequest{Username: "seller2", Password: "secret99"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	token := login(t, h, "seller2", "secret99")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/users", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
