package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"restaurant-pos/internal/catalog"
	"restaurant-pos/internal/customer"
	"restaurant-pos/internal/events"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/poserr"
	"restaurant-pos/internal/services/check"
	"restaurant-pos/internal/services/kitchen"
	"restaurant-pos/internal/services/payment"
	"restaurant-pos/internal/services/shift"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/storage"
	"restaurant-pos/internal/storage/memory"
)

const testSecret = "terminal-secret"

func newTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	return newTestServerWithStore(t, memory.New(), secret)
}

func newTestServerWithStore(t *testing.T, store storage.Store, secret string) *httptest.Server {
	t.Helper()
	log := logger.NewNop()

	menu := catalog.NewStatic()
	menu.Put(models.CatalogRef{ProductID: "burger"}, "", "Burger", models.MoneyFromString("100"))
	menu.Put(models.CatalogRef{ProductID: "fries"}, "", "Fries", models.MoneyFromString("50"))

	shifts := shift.NewService(store, log)
	tables := table.NewService(store, log)
	payments := payment.NewService(store, customer.NewMemoryLedger(), shifts, tables, events.Nop{}, log, models.DefaultTaxRate)
	checks := check.NewService(store, menu, shifts, tables, payments, events.Nop{}, log, models.DefaultTaxRate)

	h := NewHandler(Services{
		Store:   store,
		Shifts:  shifts,
		Tables:  tables,
		Checks:  checks,
		Kitchen: kitchen.NewScheduler(store, events.Nop{}, log),
	}, log, secret, 10)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body interface{}, out interface{}) *http.Response {
	c.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func signToken(t *testing.T, employeeID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, employeeClaims{
		EmployeeID: employeeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Field     string `json:"field"`
	RequestID string `json:"request_id"`
}

func TestDineInFlow(t *testing.T) {
	srv := newTestServer(t, "")
	c := &client{t: t, base: srv.URL}

	var sh models.Shift
	if resp := c.do(http.MethodPost, "/shifts", map[string]interface{}{"employee_id": "emp-1", "opening_cash": "500"}, &sh); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start shift status = %d", resp.StatusCode)
	}

	var tb models.Table
	if resp := c.do(http.MethodPost, "/tables", map[string]interface{}{"number": 4, "capacity": 2}, &tb); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add table status = %d", resp.StatusCode)
	}

	var opened models.Check
	resp := c.do(http.MethodPost, "/checks", map[string]interface{}{
		"table_id":     tb.ID,
		"shift_id":     sh.ID,
		"service_type": "dine-in",
		"items": []map[string]interface{}{
			{"product_id": "burger", "quantity": 2},
			{"product_id": "fries", "quantity": 1},
		},
	}, &opened)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("open check status = %d", resp.StatusCode)
	}
	if !opened.TotalAmount.Equal(models.MoneyFromString("270")) {
		t.Fatalf("total = %s", opened.TotalAmount)
	}

	var tickets []models.Ticket
	c.do(http.MethodGet, "/kitchen/tickets", nil, &tickets)
	if len(tickets) != 1 || tickets[0].OrderNumber != opened.OrderNumber {
		t.Fatalf("tickets = %+v", tickets)
	}

	var result models.SettleResult
	resp = c.do(http.MethodPost, "/checks/"+opened.ID+"/settle", map[string]interface{}{
		"payment_method":   "cash",
		"amount_received":  "300",
		"settlement_token": "tok-1",
	}, &result)
	if resp.StatusCode != http.StatusOK || !result.Change.Equal(models.MoneyFromString("30")) {
		t.Fatalf("settle = %d %+v", resp.StatusCode, result)
	}

	var again models.SettleResult
	c.do(http.MethodPost, "/checks/"+opened.ID+"/settle", map[string]interface{}{
		"payment_method":   "cash",
		"amount_received":  "300",
		"settlement_token": "tok-1",
	}, &again)
	if !again.Replayed || again.OrderNumber != result.OrderNumber {
		t.Fatalf("retry = %+v", again)
	}

	var released models.Table
	c.do(http.MethodGet, "/tables/"+tb.ID, nil, &released)
	if released.Status != models.TableAvailable {
		t.Fatalf("table after bill out = %s", released.Status)
	}

	var report models.ShiftReport
	resp = c.do(http.MethodPost, "/shifts/"+sh.ID+"/end", map[string]interface{}{"closing_cash": "770"}, &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end shift status = %d", resp.StatusCode)
	}
	if !report.Shift.CashVariance.Valid || !report.Shift.CashVariance.Decimal.IsZero() {
		t.Fatalf("variance = %v", report.Shift.CashVariance)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t, "")
	c := &client{t: t, base: srv.URL}

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantKind   string
		wantField  string
	}{
		{"unknown field", http.MethodPost, "/shifts", `{"employee_id":"e","opening_cash":"1","bogus":1}`, http.StatusBadRequest, "validation", "body"},
		{"empty body", http.MethodPost, "/shifts", nil, http.StatusBadRequest, "validation", "body"},
		{"missing employee", http.MethodPost, "/shifts", map[string]interface{}{"opening_cash": "10"}, http.StatusBadRequest, "validation", "employee_id"},
		{"missing check", http.MethodGet, "/checks/nope", nil, http.StatusNotFound, "not_found", ""},
		{"bad service type", http.MethodPost, "/checks", map[string]interface{}{"service_type": "drive-thru", "items": []interface{}{}}, http.StatusBadRequest, "validation", "service_type"},
		{"unknown table", http.MethodPut, "/tables/nope/status", map[string]interface{}{"status": "reserved"}, http.StatusNotFound, "not_found", ""},
		{"manual occupy", http.MethodPut, "/tables/nope/status", map[string]interface{}{"status": "occupied"}, http.StatusConflict, "invalid_transition", ""},
		{"bump missing", http.MethodPost, "/checks/nope/bump", nil, http.StatusNotFound, "not_found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = t
			var body errorBody
			resp := c.do(tt.method, tt.path, tt.body, &body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%+v)", resp.StatusCode, tt.wantStatus, body)
			}
			if body.Kind != tt.wantKind || body.Field != tt.wantField {
				t.Fatalf("body = %+v, want kind %s field %s", body, tt.wantKind, tt.wantField)
			}
			if body.RequestID == "" || resp.Header.Get(RequestIDHeader) != body.RequestID {
				t.Fatalf("request id missing or mismatched: %q vs %q", body.RequestID, resp.Header.Get(RequestIDHeader))
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, "")
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set(RequestIDHeader, "terminal-7-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "terminal-7-42" {
		t.Fatalf("request id = %q", got)
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, testSecret)

	anon := &client{t: t, base: srv.URL}
	var health map[string]interface{}
	if resp := anon.do(http.MethodGet, "/health", nil, &health); resp.StatusCode != http.StatusOK {
		t.Fatalf("health without token = %d", resp.StatusCode)
	}
	if resp := anon.do(http.MethodGet, "/tables", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tables without token = %d", resp.StatusCode)
	}

	forged := &client{t: t, base: srv.URL, token: "not-a-jwt"}
	if resp := forged.do(http.MethodGet, "/tables", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token = %d", resp.StatusCode)
	}

	authed := &client{t: t, base: srv.URL, token: signToken(t, "emp-9")}
	var sh models.Shift
	resp := authed.do(http.MethodPost, "/shifts", map[string]interface{}{"opening_cash": "100"}, &sh)
	if resp.StatusCode != http.StatusCreated || sh.EmployeeID != "emp-9" {
		t.Fatalf("start shift with token = %d %+v", resp.StatusCode, sh)
	}

	var active models.Shift
	if resp := authed.do(http.MethodGet, "/shifts/active", nil, &active); resp.StatusCode != http.StatusOK || active.ID != sh.ID {
		t.Fatalf("active shift = %d %+v", resp.StatusCode, active)
	}
}

type downStore struct {
	storage.Store
}

func (downStore) Ping(context.Context) error {
	return poserr.Unavailable("ping", errors.New("connection refused"))
}

func TestHealth_StorageDown(t *testing.T) {
	srv := newTestServerWithStore(t, downStore{Store: memory.New()}, "")
	c := &client{t: t, base: srv.URL}

	var body map[string]interface{}
	resp := c.do(http.MethodGet, "/health", nil, &body)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestSplitAndSettleSplit(t *testing.T) {
	srv := newTestServer(t, "")
	c := &client{t: t, base: srv.URL}

	var sh models.Shift
	c.do(http.MethodPost, "/shifts", map[string]interface{}{"employee_id": "emp-1", "opening_cash": "0"}, &sh)

	var opened models.Check
	c.do(http.MethodPost, "/checks", map[string]interface{}{
		"shift_id":     sh.ID,
		"service_type": "pick-up",
		"items": []map[string]interface{}{
			{"product_id": "burger", "quantity": 2},
			{"product_id": "fries", "quantity": 1},
		},
	}, &opened)

	var split models.SplitResult
	resp := c.do(http.MethodPost, "/checks/"+opened.ID+"/split", map[string]interface{}{
		"line_item_ids": []string{opened.Items[1].ID},
	}, &split)
	if resp.StatusCode != http.StatusCreated || !split.New.TotalAmount.Equal(models.MoneyFromString("54")) {
		t.Fatalf("split = %d %+v", resp.StatusCode, split.New)
	}

	var result models.SettleResult
	resp = c.do(http.MethodPost, "/checks/"+split.Source.ID+"/settle-split", map[string]interface{}{
		"payments": []map[string]interface{}{
			{"method": "cash", "amount": "100"},
			{"method": "gcash", "amount": "116"},
		},
	}, &result)
	if resp.StatusCode != http.StatusOK || !result.Change.IsZero() {
		t.Fatalf("settle split = %d %+v", resp.StatusCode, result)
	}

	var body errorBody
	resp = c.do(http.MethodPost, "/checks/"+split.New.ID+"/settle", map[string]interface{}{
		"payment_method":  "cash",
		"amount_received": "10",
	}, &body)
	if resp.StatusCode != http.StatusUnprocessableEntity || body.Kind != "insufficient_funds" {
		t.Fatalf("under-tender = %d %+v", resp.StatusCode, body)
	}
	if !strings.Contains(body.Error, "54") {
		t.Fatalf("message should name the amount due: %q", body.Error)
	}
}
