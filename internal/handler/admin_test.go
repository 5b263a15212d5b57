package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/vendika/kiosk/internal/auth"
	"github.com/vendika/kiosk/internal/backend"
	"github.com/vendika/kiosk/internal/enum"
	"github.com/vendika/kiosk/internal/journal"
	mw "github.com/vendika/kiosk/internal/middleware"
)

type mockAdminBackend struct {
	orders   []backend.Order
	machine  backend.Machine
	users    []backend.User
	statuses []string
}

func (m *mockAdminBackend) GetOrdersByMachine(_ context.Context, _ string) ([]backend.Order, error) {
	return m.orders, nil
}

func (m *mockAdminBackend) GetStockLogs(_ context.Context, _ string) ([]backend.StockLog, error) {
	return nil, nil
}

func (m *mockAdminBackend) GetMachine(_ context.Context, _ string) (backend.Machine, error) {
	return m.machine, nil
}

func (m *mockAdminBackend) UpdateMachineStatus(_ context.Context, _ string, req backend.UpdateMachineStatusRequest) (backend.Machine, error) {
	m.statuses = append(m.statuses, req.Status)
	m.machine.Status = req.Status
	return m.machine, nil
}

func (m *mockAdminBackend) ListUsers(_ context.Context) ([]backend.User, error) {
	return m.users, nil
}

func (m *mockAdminBackend) CreateAnnouncement(_ context.Context, a backend.Announcement) (backend.Announcement, error) {
	a.ID = "a-new"
	return a, nil
}

func (m *mockAdminBackend) UpdateAnnouncement(_ context.Context, id string, a backend.Announcement) (backend.Announcement, error) {
	a.ID = id
	return a, nil
}

func (m *mockAdminBackend) DeleteAnnouncement(_ context.Context, _ string) error {
	return nil
}

type mockSalesJournal struct {
	sales []journal.Sale
}

func (m *mockSalesJournal) ListSales(_ context.Context, _ int) ([]journal.Sale, error) {
	return m.sales, nil
}

func (m *mockSalesJournal) ListTemperatures(_ context.Context, _ string, _ int) ([]journal.TemperatureReading, error) {
	return nil, nil
}

const adminSecret = "admin-test-secret"

func adminRouter(api AdminBackend, jrnl SalesJournal) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(adminSecret))
		r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleOperator, enum.RoleTechnician))
		NewAdminHandler(api, jrnl, "VM-TEST").RegisterRoutes(r)
	})
	return r
}

func adminGet(t *testing.T, r chi.Router, path, role string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(adminSecret, "u1", "VM-TEST", role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresToken(t *testing.T) {
	r := adminRouter(&mockAdminBackend{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAdminListOrders(t *testing.T) {
	api := &mockAdminBackend{orders: []backend.Order{{ID: "order-1"}, {ID: "order-2"}}}
	r := adminRouter(api, nil)

	rec := adminGet(t, r, "/admin/orders", enum.RoleOperator)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var orders []backend.Order
	json.Unmarshal(rec.Body.Bytes(), &orders)
	if len(orders) != 2 {
		t.Errorf("expected 2 orders, got %d", len(orders))
	}
}

func TestAdminSalesWithoutJournal(t *testing.T) {
	r := adminRouter(&mockAdminBackend{}, nil)

	rec := adminGet(t, r, "/admin/sales", enum.RoleOperator)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with journal disabled, got %d", rec.Code)
	}
	var sales []journal.Sale
	if err := json.Unmarshal(rec.Body.Bytes(), &sales); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("expected empty list, got %d", len(sales))
	}
}

func TestAdminSalesFromJournal(t *testing.T) {
	jrnl := &mockSalesJournal{sales: []journal.Sale{{OrderID: "order-1", Success: true}}}
	r := adminRouter(&mockAdminBackend{}, jrnl)

	rec := adminGet(t, r, "/admin/sales", enum.RoleTechnician)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sales []journal.Sale
	json.Unmarshal(rec.Body.Bytes(), &sales)
	if len(sales) != 1 || sales[0].OrderID != "order-1" {
		t.Errorf("unexpected sales %+v", sales)
	}
}

func TestAdminUsersRequiresAdminRole(t *testing.T) {
	api := &mockAdminBackend{users: []backend.User{{ID: "u1"}}}
	r := adminRouter(api, nil)

	if rec := adminGet(t, r, "/admin/users", enum.RoleOperator); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
	if rec := adminGet(t, r, "/admin/users", enum.RoleAdmin); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestAdminSessionEchoesClaims(t *testing.T) {
	r := adminRouter(&mockAdminBackend{}, nil)

	rec := adminGet(t, r, "/admin/session", enum.RoleOperator)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sess map[string]string
	json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess["user_id"] != "u1" || sess["role"] != enum.RoleOperator || sess["machine_id"] != "VM-TEST" {
		t.Errorf("unexpected session %v", sess)
	}
}

func TestAdminUpdateMachineStatus(t *testing.T) {
	api := &mockAdminBackend{machine: backend.Machine{ID: "VM-TEST", Status: enum.MachineStatusOnline}}
	r := adminRouter(api, nil)

	token, _ := auth.GenerateToken(adminSecret, "u1", "VM-TEST", enum.RoleTechnician)
	rec := postJSONAuth(t, r, "/admin/machine/status", token, map[string]string{"status": enum.MachineStatusMaintenance})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(api.statuses) != 1 || api.statuses[0] != enum.MachineStatusMaintenance {
		t.Errorf("expected status update call, got %v", api.statuses)
	}

	rec = postJSONAuth(t, r, "/admin/machine/status", token, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty status, got %d", rec.Code)
	}
}

func postJSONAuth(t *testing.T, r chi.Router, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(rec, req)
	return rec
}
