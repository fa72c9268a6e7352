package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

type txKey struct{}

// memStore is an in-memory stand-in for the PostgreSQL repositories.
// Transactions are serialized and restore a snapshot on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products   map[string]*domain.Product
	suppliers  map[string]*domain.Supplier
	services   map[string]*domain.Service
	locations  map[string]*domain.StorageLocation
	principals map[string]*permissions.Principal

	lots      map[string]domain.Lot
	orders    map[string]domain.Order
	movements []domain.Movement
	counters  map[string]int64
	audit     []domain.AuditEntry

	// stockLocked is set by LockStock and cleared when a transaction starts.
	// Lot locks and movement inserts inside a transaction require it.
	stockLocked bool
	stockLocks  int

	// failMovementAt makes the nth movement insert fail (1-based).
	failMovementAt int
	movementCalls  int
	auditErr       error
}

func newMemStore() *memStore {
	return &memStore{
		products:   map[string]*domain.Product{},
		suppliers:  map[string]*domain.Supplier{},
		services:   map[string]*domain.Service{},
		locations:  map[string]*domain.StorageLocation{},
		principals: map[string]*permissions.Principal{},
		lots:       map[string]domain.Lot{},
		orders:     map[string]domain.Order{},
		counters:   map[string]int64{},
	}
}

type snapshot struct {
	lots      map[string]domain.Lot
	orders    map[string]domain.Order
	movements []domain.Movement
	counters  map[string]int64
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		lots:      make(map[string]domain.Lot, len(s.lots)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		movements: append([]domain.Movement(nil), s.movements...),
		counters:  make(map[string]int64, len(s.counters)),
	}
	for k, v := range s.lots {
		snap.lots[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots = snap.lots
	s.orders = snap.orders
	s.movements = snap.movements
	s.counters = snap.counters
}

func (s *memStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.stockLocked = false
	s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}

// movementsOf returns movements of type t, oldest first.
func (s *memStore) movementsOf(t domain.MovementType) []domain.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Movement
	for _, m := range s.movements {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) lot(id string) domain.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lots[id]
}

func (s *memStore) auditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

// requireStockLock fails a transactional lot lock or movement insert that
// was not preceded by LockStock. Callers hold s.mu.
func (s *memStore) requireStockLock(ctx context.Context, op string) error {
	if ctx.Value(txKey{}) == nil || s.stockLocked {
		return nil
	}
	return errors.Internal(op + " before the stock lock")
}

// --- lots ---

type lotStore struct{ *memStore }

func (s lotStore) LockStock(ctx context.Context) error {
	if ctx.Value(txKey{}) == nil {
		return errors.Internal("stock lock requires a transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockLocked = true
	s.stockLocks++
	return nil
}

func (s lotStore) Get(ctx context.Context, id string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	return &l, nil
}

func (s lotStore) GetForUpdate(ctx context.Context, id string) (*domain.Lot, error) {
	s.mu.Lock()
	err := s.requireStockLock(ctx, "lot lock")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s lotStore) ListAllocatable(ctx context.Context, productID string) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "lot lock"); err != nil {
		return nil, err
	}
	var out []domain.Lot
	for _, l := range s.lots {
		if l.ProductID == productID && l.Status == domain.LotAvailable && l.CurrentQuantity > 0 {
			out = append(out, l)
		}
	}
	domain.SortForAllocation(out)
	return out, nil
}

func (s lotStore) ListByProduct(ctx context.Context, productID string) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Lot{}
	for _, l := range s.lots {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	domain.SortForAllocation(out)
	return out, nil
}

func (s lotStore) Deduct(ctx context.Context, lotID string, qty int) (*domain.Lot, error) {
	if qty <= 0 {
		return nil, errors.InvalidInput("deduction quantity must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "deduction"); err != nil {
		return nil, err
	}
	l, ok := s.lots[lotID]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	if l.Available() < qty {
		return nil, errors.InsufficientStock(lotID, qty, l.Available())
	}
	l.CurrentQuantity -= qty
	l.Status = domain.StatusAfterDeduction(l.Status, l.CurrentQuantity)
	s.lots[lotID] = l
	return &l, nil
}

func (s lotStore) Replenish(ctx context.Context, lotID string, qty int) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "replenish"); err != nil {
		return nil, err
	}
	l, ok := s.lots[lotID]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	l.InitialQuantity += qty
	l.CurrentQuantity += qty
	if l.Status == domain.LotExhausted {
		l.Status = domain.LotAvailable
	}
	s.lots[lotID] = l
	return &l, nil
}

func (s lotStore) Receive(ctx context.Context, in domain.LotReceipt) (*domain.Lot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "lot receipt"); err != nil {
		return nil, false, err
	}
	for id, l := range s.lots {
		if l.ProductID == in.ProductID && l.LotNumber == in.LotNumber {
			l.InitialQuantity += in.Quantity
			l.CurrentQuantity += in.Quantity
			if in.UnitPrice.Valid {
				l.UnitPrice = in.UnitPrice
			}
			if l.Status == domain.LotExhausted {
				l.Status = domain.LotAvailable
			}
			s.lots[id] = l
			return &l, false, nil
		}
	}
	l := domain.Lot{
		ID:              uuid.New().String(),
		ProductID:       in.ProductID,
		LotNumber:       in.LotNumber,
		ManufactureDate: in.ManufactureDate,
		ExpiryDate:      domain.DateOf(in.ExpiryDate),
		ReceptionDate:   domain.DateOf(in.ReceptionDate),
		InitialQuantity: in.Quantity,
		CurrentQuantity: in.Quantity,
		UnitPrice:       in.UnitPrice,
		Status:          domain.LotAvailable,
	}
	s.lots[l.ID] = l
	return &l, true, nil
}

func (s lotStore) MarkExpired(ctx context.Context, day time.Time) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "expiry sweep"); err != nil {
		return nil, err
	}
	var out []domain.Lot
	for id, l := range s.lots {
		if l.Status == domain.LotAvailable && l.ExpiredOn(day) {
			l.Status = domain.LotExpired
			s.lots[id] = l
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s lotStore) Expire(ctx context.Context, lotID string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "expire"); err != nil {
		return nil, err
	}
	l, ok := s.lots[lotID]
	if !ok {
		return nil, errors.NotFound("lot")
	}
	l.Status = domain.LotExpired
	s.lots[lotID] = l
	return &l, nil
}

func (s lotStore) StockLevel(ctx context.Context, productID string) (*domain.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, errors.NotFound("product")
	}
	level := &domain.StockLevel{ProductID: p.ID, ProductName: p.Name, AlertStock: p.AlertStock, SafetyStock: p.SafetyStock}
	for _, l := range s.lots {
		if l.ProductID == productID && l.Status == domain.LotAvailable {
			level.Available += l.Available()
		}
	}
	return level, nil
}

// --- movements ---

type movementStore struct{ *memStore }

func (s movementStore) Create(ctx context.Context, m *domain.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStockLock(ctx, "movement insert"); err != nil {
		return err
	}
	s.movementCalls++
	if s.failMovementAt > 0 && s.movementCalls == s.failMovementAt {
		return errors.Internal("movement insert failed")
	}
	for _, existing := range s.movements {
		if existing.Number == m.Number {
			return errors.Conflict("movement number already used")
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	s.movements = append(s.movements, *m)
	return nil
}

// --- orders ---

type orderStore struct{ *memStore }

func (s orderStore) Create(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.Number == o.Number {
			return errors.Conflict("order number already used")
		}
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.RequestedAt = time.Now()
	o.UpdatedAt = o.RequestedAt
	for i := range o.Lines {
		if o.Lines[i].ID == "" {
			o.Lines[i].ID = uuid.New().String()
		}
		o.Lines[i].OrderID = o.ID
		o.Lines[i].Position = i + 1
	}
	s.orders[o.ID] = copyOrder(*o)
	return nil
}

func (s orderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errors.NotFound("order")
	}
	o = copyOrder(o)
	return &o, nil
}

func (s orderStore) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return s.Get(ctx, id)
}

func (s orderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return errors.NotFound("order")
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s orderStore) UpdateLine(ctx context.Context, line *domain.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[line.OrderID]
	if !ok {
		return errors.NotFound("order line")
	}
	for i := range o.Lines {
		if o.Lines[i].ID == line.ID {
			if line.DeliveredQuantity > o.Lines[i].RequestedQuantity {
				return errors.InvalidInput("delivered quantity must stay between 0 and the requested quantity")
			}
			o.Lines[i] = *line
			s.orders[o.ID] = o
			return nil
		}
	}
	return errors.NotFound("order line")
}

// --- catalog ---

type catalogStore struct{ *memStore }

func (s catalogStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("product")
}

func (s catalogStore) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*domain.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s catalogStore) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.suppliers[id]; ok {
		return v, nil
	}
	return nil, errors.NotFound("supplier")
}

func (s catalogStore) GetService(ctx context.Context, id string) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.services[id]; ok {
		return v, nil
	}
	return nil, errors.NotFound("service")
}

func (s catalogStore) GetLocation(ctx context.Context, id string) (*domain.StorageLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.locations[id]; ok {
		return v, nil
	}
	return nil, errors.NotFound("storage location")
}

// --- principals, audit, sequence ---

type principalStore struct{ *memStore }

func (s principalStore) Get(ctx context.Context, id string) (*permissions.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.principals[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("principal")
}

type auditStore struct{ *memStore }

func (s auditStore) Create(ctx context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditErr != nil {
		return s.auditErr
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now()
	s.audit = append(s.audit, *e)
	return nil
}

func (s auditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.AuditEntry{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

type sequence struct{ *memStore }

func (s sequence) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%s", prefix, day.Format("20060102"))
	s.counters[key]++
	return s.counters[key], nil
}
