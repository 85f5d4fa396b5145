package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-inventory/internal/stock"
	"github.com/angelmondragon/packfinderz-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-inventory/pkg/errors"
	"github.com/angelmondragon/packfinderz-inventory/pkg/pagination"
)

type stubStock struct {
	stock.Service

	provisioned *stock.ProvisionInput
	lastOp      string
	lastQty     int
	lastParams  pagination.Params
	lastStatus  enums.StockStatus
	dto         *stock.StockItemDTO
	page        *stock.ListResult
	results     []stock.AvailabilityResult
	err         error
}

func (s *stubStock) Provision(_ context.Context, input stock.ProvisionInput) (*stock.StockItemDTO, error) {
	s.provisioned = &input
	return s.dto, s.err
}

func (s *stubStock) Get(_ context.Context, itemID string) (*stock.StockItemDTO, error) {
	s.lastOp = "get:" + itemID
	return s.dto, s.err
}

func (s *stubStock) List(_ context.Context, params pagination.Params, status enums.StockStatus) (*stock.ListResult, error) {
	s.lastParams, s.lastStatus = params, status
	return s.page, s.err
}

func (s *stubStock) Restock(_ context.Context, itemID string, qty int) (*stock.StockItemDTO, error) {
	s.lastOp, s.lastQty = "restock:"+itemID, qty
	return s.dto, s.err
}

func (s *stubStock) Sell(_ context.Context, itemID string, qty int) (*stock.StockItemDTO, error) {
	s.lastOp, s.lastQty = "sell:"+itemID, qty
	return s.dto, s.err
}

func (s *stubStock) Available(_ context.Context, itemID string) (int, error) {
	return 7, s.err
}

func (s *stubStock) CheckAvailability(_ context.Context, requests []stock.AvailabilityRequest) ([]stock.AvailabilityResult, error) {
	return s.results, s.err
}

func (s *stubStock) Delete(_ context.Context, itemID string) error {
	s.lastOp = "delete:" + itemID
	return s.err
}

// serve routes one request through a chi mux so URL params resolve.
func serve(method, pattern, target string, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return payload.Error.Code
}

func TestInventoryProvisionCreated(t *testing.T) {
	svc := &stubStock{dto: &stock.StockItemDTO{ItemID: "SKU-1", OnHand: 5, Status: enums.StockStatusInStock}}
	rec := serve(http.MethodPost, "/api/inventory", "/api/inventory",
		`{"itemId":"SKU-1","onHand":5,"reorderPoint":2,"notes":"  aisle 3  "}`, InventoryProvision(svc, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.provisioned == nil || svc.provisioned.ItemID != "SKU-1" || *svc.provisioned.ReorderPoint != 2 {
		t.Fatalf("unexpected input: %+v", svc.provisioned)
	}
	if *svc.provisioned.Notes != "aisle 3" {
		t.Fatalf("expected trimmed notes, got %q", *svc.provisioned.Notes)
	}
	var envelope struct {
		Data stock.StockItemDTO `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ItemID != "SKU-1" {
		t.Fatalf("unexpected item %s", envelope.Data.ItemID)
	}
}

func TestInventoryProvisionRejectsBadBody(t *testing.T) {
	svc := &stubStock{}
	for _, body := range []string{`{"onHand":5}`, `{"itemId":"A","onHand":-1}`, `{"itemId":"A","bogus":1}`} {
		rec := serve(http.MethodPost, "/api/inventory", "/api/inventory", body, InventoryProvision(svc, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
		if errorCode(t, rec) != string(pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation code", body)
		}
	}
	if svc.provisioned != nil {
		t.Fatalf("service must not run on invalid input")
	}
}

func TestInventorySellInsufficientStock(t *testing.T) {
	svc := &stubStock{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for item SKU-1: requested 9, available 2").
		WithDetails(map[string]any{"itemId": "SKU-1", "requested": 9, "available": 2})}
	rec := serve(http.MethodPost, "/api/inventory/items/{itemId}/sell", "/api/inventory/items/SKU-1/sell",
		`{"quantity":9}`, InventorySell(svc, nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if errorCode(t, rec) != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected code: %s", rec.Body.String())
	}
	if svc.lastOp != "sell:SKU-1" || svc.lastQty != 9 {
		t.Fatalf("unexpected call %s/%d", svc.lastOp, svc.lastQty)
	}
}

func TestInventoryRestockRequiresPositiveQuantity(t *testing.T) {
	svc := &stubStock{}
	rec := serve(http.MethodPost, "/api/inventory/items/{itemId}/restock", "/api/inventory/items/SKU-1/restock",
		`{"quantity":0}`, InventoryRestock(svc, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.lastOp != "" {
		t.Fatalf("service should not be called")
	}
}

func TestInventoryListPassesPagination(t *testing.T) {
	svc := &stubStock{page: &stock.ListResult{Items: []stock.StockItemDTO{{ItemID: "A"}}, NextCursor: "QQ"}}
	rec := serve(http.MethodGet, "/api/inventory", "/api/inventory?limit=1&cursor=abc", "", InventoryList(svc, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastParams.Limit != 1 || svc.lastParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.lastParams)
	}
	var envelope struct {
		Data       []stock.StockItemDTO `json:"data"`
		NextCursor string               `json:"nextCursor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.NextCursor != "QQ" {
		t.Fatalf("unexpected page %+v", envelope)
	}

	rec = serve(http.MethodGet, "/api/inventory", "/api/inventory?limit=1000", "", InventoryList(svc, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit got %d", rec.Code)
	}
}

func TestInventoryListStatusFilter(t *testing.T) {
	svc := &stubStock{page: &stock.ListResult{}}
	rec := serve(http.MethodGet, "/api/inventory", "/api/inventory?status=low_stock", "", InventoryList(svc, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastStatus != enums.StockStatusLowStock {
		t.Fatalf("expected low_stock filter got %q", svc.lastStatus)
	}

	svc.lastStatus = ""
	rec = serve(http.MethodGet, "/api/inventory", "/api/inventory?status=sold_out", "", InventoryList(svc, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status got %d", rec.Code)
	}
	if svc.lastStatus != "" {
		t.Fatalf("service must not be called with an invalid filter")
	}
}

func TestInventoryGetNotFound(t *testing.T) {
	svc := &stubStock{err: pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found")}
	rec := serve(http.MethodGet, "/api/inventory/items/{itemId}", "/api/inventory/items/ghost", "", InventoryGet(svc, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if svc.lastOp != "get:ghost" {
		t.Fatalf("unexpected call %s", svc.lastOp)
	}
}

func TestInventoryAvailableAndDelete(t *testing.T) {
	svc := &stubStock{}
	rec := serve(http.MethodGet, "/api/inventory/items/{itemId}/available", "/api/inventory/items/SKU-2/available", "", InventoryAvailable(svc, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":7`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(http.MethodDelete, "/api/inventory/items/{itemId}", "/api/inventory/items/SKU-2", "", InventoryDelete(svc, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
}

func TestInventoryCheckAvailability(t *testing.T) {
	svc := &stubStock{results: []stock.AvailabilityResult{{ItemID: "A", Requested: 3, Available: 1, Granted: 1, Known: true}}}
	rec := serve(http.MethodPost, "/api/inventory/check-availability", "/api/inventory/check-availability",
		`{"items":[{"itemId":"A","quantity":3}]}`, InventoryCheckAvailability(svc, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"granted":1`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = serve(http.MethodPost, "/api/inventory/check-availability", "/api/inventory/check-availability",
		`{"items":[]}`, InventoryCheckAvailability(svc, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items got %d", rec.Code)
	}
}

func TestInventoryNilServiceIsInternal(t *testing.T) {
	rec := serve(http.MethodGet, "/api/inventory/low-stock", "/api/inventory/low-stock", "", InventoryLowStock(nil, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
