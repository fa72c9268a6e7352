package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
)

var today = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type harness struct {
	t          *testing.T
	store      *memStore
	events     *testutil.MockPublisher
	auditBus   *testutil.MockPublisher
	ledger     *service.Ledger
	auth       *service.Authorizer
	orders     *service.OrderService
	receptions *service.ReceptionService
	stock      *service.StockService
	journal    *service.JournalService
	sweeper    *service.ExpirySweeper

	// contexts acting as principals with various grants
	pharmacist context.Context
	viewer     context.Context
	admin      context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Nop()
	store := newMemStore()
	bus := testutil.NewMockPublisher()
	auditBus := testutil.NewMockPublisher()

	publisher := events.NewPharmacyEventPublisher(bus, log)
	ledger := service.NewLedger(movementStore{store}, sequence{store})
	ledger.SetClock(func() time.Time { return today })
	auth := service.NewAuthorizer(principalStore{store})
	recorder := service.NewAuditRecorder(auditStore{store}, events.NewAuditEventPublisher(auditBus, log), log)
	lowStock := service.NewLowStockMonitor(lotStore{store}, publisher, log)
	sweeper := service.NewExpirySweeper(store, lotStore{store}, recorder, publisher, time.Hour, log)
	sweeper.SetClock(func() time.Time { return today })

	h := &harness{
		t:        t,
		store:    store,
		events:   bus,
		auditBus: auditBus,
		ledger:   ledger,
		auth:     auth,
		orders: service.NewOrderService(store, orderStore{store}, lotStore{store}, catalogStore{store},
			ledger, auth, recorder, lowStock, publisher, log),
		receptions: service.NewReceptionService(store, lotStore{store}, catalogStore{store},
			ledger, auth, recorder, publisher, log),
		stock: service.NewStockService(store, lotStore{store}, catalogStore{store},
			ledger, auth, recorder, lowStock, publisher, log),
		journal: service.NewJournalService(auditStore{store}, auth),
		sweeper: sweeper,
	}

	h.pharmacist = h.principal("pharmacist", false,
		"orders.*", "lots.*", "movements.*", "products.view", "journal.view")
	h.viewer = h.principal("viewer", false, "orders.view", "lots.view")
	h.admin = h.principal("admin", true)
	return h
}

// principal registers an active principal and returns a context acting
// as it. A superuser gets no role.
func (h *harness) principal(username string, superuser bool, grants ...string) context.Context {
	h.t.Helper()
	p := &permissions.Principal{
		ID:          uuid.New().String(),
		Username:    username,
		IsSuperuser: superuser,
		IsActive:    true,
		Permissions: permissions.NewSet(),
	}
	if len(grants) > 0 {
		set, err := permissions.ParseSet(grants)
		if err != nil {
			h.t.Fatalf("bad grants: %v", err)
		}
		roleID := uuid.New().String()
		p.RoleID = &roleID
		p.Permissions = set
	}
	h.store.principals[p.ID] = p
	return actor.WithActor(context.Background(), &actor.Actor{ID: p.ID, Username: username})
}

func (h *harness) product(name string, alertStock int) *domain.Product {
	p := &domain.Product{
		ID:         uuid.New().String(),
		Name:       name,
		AlertStock: alertStock,
		IsActive:   true,
	}
	h.store.products[p.ID] = p
	return p
}

func (h *harness) supplier() *domain.Supplier {
	s := &domain.Supplier{ID: uuid.New().String(), Code: "SUP-1", CompanyName: "Pharma Distrib", IsActive: true}
	h.store.suppliers[s.ID] = s
	return s
}

func (h *harness) ward() *domain.Service {
	s := &domain.Service{ID: uuid.New().String(), Code: "CARDIO", Name: "Cardiology", IsActive: true}
	h.store.services[s.ID] = s
	return s
}

func (h *harness) location(code string) *domain.StorageLocation {
	l := &domain.StorageLocation{ID: uuid.New().String(), Code: code, Name: code, LocationType: "MAIN", IsActive: true}
	h.store.locations[l.ID] = l
	return l
}

func (h *harness) lot(productID, number string, qty int, expiry string) *domain.Lot {
	h.t.Helper()
	exp, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		h.t.Fatalf("bad expiry: %v", err)
	}
	l := domain.Lot{
		ID:              uuid.New().String(),
		ProductID:       productID,
		LotNumber:       number,
		ExpiryDate:      exp,
		ReceptionDate:   today,
		InitialQuantity: qty,
		CurrentQuantity: qty,
		Status:          domain.LotAvailable,
	}
	h.store.lots[l.ID] = l
	return &l
}

// validatedOrder creates an order as the pharmacist and validates it.
func (h *harness) validatedOrder(serviceID string, lines ...domain.NewOrderLine) *domain.Order {
	h.t.Helper()
	o, err := h.orders.Create(h.pharmacist, domain.NewOrder{ServiceID: serviceID, Lines: lines})
	if err != nil {
		h.t.Fatalf("create order: %v", err)
	}
	o, err = h.orders.ChangeStatus(h.pharmacist, o.ID, domain.OrderValidated)
	if err != nil {
		h.t.Fatalf("validate order: %v", err)
	}
	return o
}

func mustDate(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}
