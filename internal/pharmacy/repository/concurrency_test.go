package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

var pharmacyDay = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

// pharmacy wires the services over the real repositories without a broker.
type pharmacy struct {
	orders     *service.OrderService
	receptions *service.ReceptionService
	asUser     context.Context
	ward       string
	supplier   string
}

func newPharmacy(t *testing.T, ctx context.Context) *pharmacy {
	t.Helper()
	db := suite.DB
	log := suite.Logger

	role := suite.Fixtures.PharmacistRole()
	require.NoError(t, suite.Fixtures.InsertRole(ctx, role))
	user := suite.Fixtures.Principal(&role)
	require.NoError(t, suite.Fixtures.InsertPrincipal(ctx, user))
	ward := suite.Fixtures.Service()
	require.NoError(t, suite.Fixtures.InsertService(ctx, ward))
	supplier := suite.Fixtures.Supplier()
	require.NoError(t, suite.Fixtures.InsertSupplier(ctx, supplier))

	lots := repository.NewLotRepository(db)
	catalog := repository.NewCatalogRepository(db)
	ledger := service.NewLedger(repository.NewMovementRepository(db), repository.NewSequenceRepository(db))
	ledger.SetClock(func() time.Time { return pharmacyDay })
	auth := service.NewAuthorizer(repository.NewPrincipalRepository(db))
	audit := service.NewAuditRecorder(repository.NewAuditRepository(db), nil, log)
	lowStock := service.NewLowStockMonitor(lots, nil, log)

	return &pharmacy{
		orders: service.NewOrderService(db, repository.NewOrderRepository(db), lots, catalog,
			ledger, auth, audit, lowStock, nil, log),
		receptions: service.NewReceptionService(db, lots, catalog, ledger, auth, audit, nil, log),
		asUser:     actor.WithActor(ctx, &actor.Actor{ID: user.ID, Username: user.Username}),
		ward:       ward.ID,
		supplier:   supplier.ID,
	}
}

func (p *pharmacy) product(t *testing.T, ctx context.Context, stock ...int) string {
	t.Helper()
	product := seedProduct(t, ctx)
	for i, qty := range stock {
		lot := suite.Fixtures.Lot(product.ID, qty, day("2030-01-01").AddDate(0, i, 0))
		require.NoError(t, suite.Fixtures.InsertLot(ctx, lot))
	}
	return product.ID
}

func (p *pharmacy) validatedOrder(t *testing.T, lines ...domain.NewOrderLine) string {
	t.Helper()
	o, err := p.orders.Create(p.asUser, domain.NewOrder{ServiceID: p.ward, Lines: lines})
	require.NoError(t, err)
	_, err = p.orders.ChangeStatus(p.asUser, o.ID, domain.OrderValidated)
	require.NoError(t, err)
	return o.ID
}

func onHand(t *testing.T, ctx context.Context, productID string) int {
	t.Helper()
	var total int
	require.NoError(t, suite.RawDB.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(current_quantity), 0) FROM lots WHERE product_id = $1`, productID))
	return total
}

func movementNumbers(t *testing.T, ctx context.Context) []string {
	t.Helper()
	var numbers []string
	require.NoError(t, suite.RawDB.SelectContext(ctx, &numbers, `SELECT number FROM movements ORDER BY number`))
	return numbers
}

func contiguousMovementNumbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("MVT-20261015-%05d", i+1)
	}
	return out
}

// run starts fn n times at once and returns every error.
func run(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestDeliver_ConcurrentOrdersWithOppositeLineOrder(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx, 100)
	q := ph.product(t, ctx, 100)

	const n = 8
	orderIDs := make([]string, n)
	for i := range orderIDs {
		lines := []domain.NewOrderLine{{ProductID: p, Quantity: 5}, {ProductID: q, Quantity: 5}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		orderIDs[i] = ph.validatedOrder(t, lines...)
	}

	errs := run(n, func(i int) error {
		_, err := ph.orders.Deliver(ph.asUser, orderIDs[i])
		return err
	})
	for i, err := range errs {
		require.NoError(t, err, "delivery %d", i)
	}

	for _, id := range orderIDs {
		o, err := ph.orders.Get(ph.asUser, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderDelivered, o.Status)
	}
	assert.Equal(t, 60, onHand(t, ctx, p))
	assert.Equal(t, 60, onHand(t, ctx, q))
	assert.Equal(t, contiguousMovementNumbers(2*n), movementNumbers(t, ctx))
}

func TestDeliver_ConcurrentWithReceptionsOnSameProducts(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx, 50)
	q := ph.product(t, ctx, 50)

	const n = 6
	orderIDs := make([]string, n)
	for i := range orderIDs {
		orderIDs[i] = ph.validatedOrder(t,
			domain.NewOrderLine{ProductID: p, Quantity: 3},
			domain.NewOrderLine{ProductID: q, Quantity: 3},
		)
	}

	expiry := day("2031-06-01")
	errs := run(2*n, func(i int) error {
		if i < n {
			_, err := ph.orders.Deliver(ph.asUser, orderIDs[i])
			return err
		}
		_, err := ph.receptions.Receive(ph.asUser, domain.Reception{
			SupplierID: ph.supplier,
			Lines: []domain.ReceptionLine{
				{ProductID: q, LotNumber: fmt.Sprintf("RQ-%d", i), Quantity: 10, ExpiryDate: &expiry},
				{ProductID: p, LotNumber: fmt.Sprintf("RP-%d", i), Quantity: 10, ExpiryDate: &expiry},
			},
		})
		return err
	})
	for i, err := range errs {
		require.NoError(t, err, "call %d", i)
	}

	assert.Equal(t, 50-3*n+10*n, onHand(t, ctx, p))
	assert.Equal(t, 50-3*n+10*n, onHand(t, ctx, q))
	assert.Equal(t, contiguousMovementNumbers(4*n), movementNumbers(t, ctx))
}

func TestDeliver_SharedLotIsNeverOverdrawn(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx, 10)

	const n = 5
	orderIDs := make([]string, n)
	for i := range orderIDs {
		orderIDs[i] = ph.validatedOrder(t, domain.NewOrderLine{ProductID: p, Quantity: 4})
	}

	delivered := make([]int, n)
	errs := run(n, func(i int) error {
		result, err := ph.orders.Deliver(ph.asUser, orderIDs[i])
		if err == nil {
			delivered[i] = result.DeliveredQuantity()
		}
		return err
	})
	total := 0
	for i, err := range errs {
		require.NoError(t, err, "delivery %d", i)
		total += delivered[i]
	}

	assert.Equal(t, 10, total)
	assert.Equal(t, 0, onHand(t, ctx, p))

	var status string
	require.NoError(t, suite.RawDB.GetContext(ctx, &status, `SELECT status FROM lots WHERE product_id = $1`, p))
	assert.Equal(t, string(domain.LotExhausted), status)

	var issued int
	require.NoError(t, suite.RawDB.GetContext(ctx, &issued,
		`SELECT COALESCE(SUM(quantity), 0) FROM movements WHERE movement_type = 'SERVICE_ISSUE'`))
	assert.Equal(t, 10, issued)
}

func TestDeliver_SameOrderConcurrentlyDeliversOnce(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx, 10)
	orderID := ph.validatedOrder(t, domain.NewOrderLine{ProductID: p, Quantity: 12})

	const n = 4
	delivered := make([]int, n)
	errs := run(n, func(i int) error {
		result, err := ph.orders.Deliver(ph.asUser, orderID)
		if err == nil {
			delivered[i] = result.DeliveredQuantity()
		}
		return err
	})
	total := 0
	for i, err := range errs {
		require.NoError(t, err, "delivery %d", i)
		total += delivered[i]
	}
	assert.Equal(t, 10, total)

	o, err := ph.orders.Get(ph.asUser, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, o.Status)
	assert.Equal(t, 10, o.Lines[0].DeliveredQuantity)
	assert.Len(t, movementNumbers(t, ctx), 1)
}

func TestReceive_ConcurrentReceptionsGetContiguousNumbers(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx)

	const n = 10
	expiry := day("2030-01-01")
	errs := run(n, func(i int) error {
		_, err := ph.receptions.Receive(ph.asUser, domain.Reception{
			SupplierID: ph.supplier,
			Lines: []domain.ReceptionLine{
				{ProductID: p, LotNumber: fmt.Sprintf("G-%02d", i), Quantity: 1, ExpiryDate: &expiry},
			},
		})
		return err
	})
	for i, err := range errs {
		require.NoError(t, err, "reception %d", i)
	}

	assert.Equal(t, contiguousMovementNumbers(n), movementNumbers(t, ctx))
	assert.Equal(t, n, onHand(t, ctx, p))
}

func TestReceive_MalformedIDsAgainstPostgres(t *testing.T) {
	ctx := integration(t)
	ph := newPharmacy(t, ctx)
	p := ph.product(t, ctx)
	expiry := day("2030-01-01")

	result, err := ph.receptions.Receive(ph.asUser, domain.Reception{
		SupplierID: ph.supplier,
		Lines: []domain.ReceptionLine{
			{ProductID: "P-1", LotNumber: "X1", Quantity: 5, ExpiryDate: &expiry},
			{ProductID: p, LotNumber: "X2", Quantity: 5, ExpiryDate: &expiry},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, domain.SkipUnknownProduct, result.Lines[0].Reason)

	_, err = ph.receptions.Receive(ph.asUser, domain.Reception{
		SupplierID: "S-1",
		Lines:      []domain.ReceptionLine{{ProductID: p, LotNumber: "X3", Quantity: 5, ExpiryDate: &expiry}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
