package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/testutil"
)

const lotID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestLotRepository_Deduct(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	now := time.Now()
	mock.Mock.ExpectQuery(`UPDATE lots`).
		WithArgs(lotID, 40).
		WillReturnRows(testutil.MockRows(lotColumns...).AddRow(
			lotID, "p-1", "L-1", nil, day("2026-01-01"), day("2024-01-01"),
			100, 60, 0, nil, "AVAILABLE", now, now,
		))

	lot, err := repo.Deduct(context.Background(), lotID, 40)
	require.NoError(t, err)
	assert.Equal(t, 60, lot.CurrentQuantity)
	assert.Equal(t, domain.LotAvailable, lot.Status)
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_Deduct_Insufficient(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	now := time.Now()
	mock.Mock.ExpectQuery(`UPDATE lots`).
		WithArgs(lotID, 11).
		WillReturnRows(testutil.MockRows(lotColumns...))
	mock.ExpectQuery(`SELECT * FROM lots WHERE id = $1`).
		WithArgs(lotID).
		WillReturnRows(testutil.MockRows(lotColumns...).AddRow(
			lotID, "p-1", "L-1", nil, day("2026-01-01"), day("2024-01-01"),
			10, 10, 0, nil, "AVAILABLE", now, now,
		))

	lot, err := repo.Deduct(context.Background(), lotID, 11)
	assert.Nil(t, lot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "10", appErr.Params["available"])
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_Deduct_UnknownLot(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	mock.Mock.ExpectQuery(`UPDATE lots`).WillReturnRows(testutil.MockRows(lotColumns...))
	mock.ExpectQuery(`SELECT * FROM lots WHERE id = $1`).WillReturnRows(testutil.MockRows(lotColumns...))

	_, err := repo.Deduct(context.Background(), lotID, 1)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_Deduct_RejectsNonPositive(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	_, err := repo.Deduct(context.Background(), lotID, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_ListAllocatable_LocksInExpiryOrder(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	mock.Mock.ExpectQuery(`ORDER BY expiry_date, id\s+FOR UPDATE`).
		WithArgs("p-1").
		WillReturnRows(testutil.MockRows(lotColumns...))

	lots, err := repo.ListAllocatable(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Empty(t, lots)
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_LockStock(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	db := mock.Database()
	repo := repository.NewLotRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock($1)`).
		WithArgs(int64(0x50484152)).
		WillReturnResult(sqlmockResult(0))
	mock.Mock.ExpectQuery(`ORDER BY expiry_date, id\s+FOR UPDATE`).
		WithArgs("p-1").
		WillReturnRows(testutil.MockRows(lotColumns...))
	mock.ExpectCommit()

	err := db.Transaction(context.Background(), func(ctx context.Context) error {
		if err := repo.LockStock(ctx); err != nil {
			return err
		}
		_, err := repo.ListAllocatable(ctx, "p-1")
		return err
	})
	require.NoError(t, err)
	mock.ExpectationsWereMet(t)
}

func TestLotRepository_LockStock_RequiresTransaction(t *testing.T) {
	mock := testutil.NewMockDB(t)
	defer mock.Close()
	repo := repository.NewLotRepository(mock.Database())

	err := repo.LockStock(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInternal))
	mock.ExpectationsWereMet(t)
}

// --- integration ---

func seedProduct(t *testing.T, ctx context.Context) testutil.ProductFixture {
	t.Helper()
	p := suite.Fixtures.Product()
	require.NoError(t, suite.Fixtures.InsertProduct(ctx, p))
	return p
}

func TestLotRepository_Receive_CreatesThenTopsUp(t *testing.T) {
	ctx := integration(t)
	product := seedProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	receipt := domain.LotReceipt{
		ProductID:     product.ID,
		LotNumber:     "AMX-2291",
		Quantity:      100,
		ExpiryDate:    day("2027-06-30"),
		ReceptionDate: day("2026-10-01"),
		UnitPrice:     decimal.NewNullDecimal(decimal.RequireFromString("1.25")),
	}

	lot, created, err := repo.Receive(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 100, lot.InitialQuantity)
	assert.Equal(t, 100, lot.CurrentQuantity)

	receipt.Quantity = 20
	receipt.UnitPrice = decimal.NullDecimal{}
	again, created, err := repo.Receive(ctx, receipt)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lot.ID, again.ID)
	assert.Equal(t, 120, again.InitialQuantity)
	assert.Equal(t, 120, again.CurrentQuantity)
	assert.True(t, again.UnitPrice.Decimal.Equal(decimal.RequireFromString("1.25")))
}

func TestLotRepository_DeductToZeroExhaustsAndReceiveRevives(t *testing.T) {
	ctx := integration(t)
	product := seedProduct(t, ctx)
	fixture := suite.Fixtures.Lot(product.ID, 5, day("2027-01-01"))
	require.NoError(t, suite.Fixtures.InsertLot(ctx, fixture))
	repo := repository.NewLotRepository(suite.DB)

	lot, err := repo.Deduct(ctx, fixture.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, lot.CurrentQuantity)
	assert.Equal(t, domain.LotExhausted, lot.Status)

	_, err = repo.Deduct(ctx, fixture.ID, 1)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	revived, created, err := repo.Receive(ctx, domain.LotReceipt{
		ProductID: product.ID, LotNumber: fixture.LotNumber, Quantity: 3,
		ExpiryDate: fixture.ExpiryDate, ReceptionDate: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.LotAvailable, revived.Status)
	assert.Equal(t, 3, revived.CurrentQuantity)
	assert.Equal(t, 8, revived.InitialQuantity)
}

func TestLotRepository_DeductRespectsReservation(t *testing.T) {
	ctx := integration(t)
	product := seedProduct(t, ctx)
	fixture := suite.Fixtures.Lot(product.ID, 10, day("2027-01-01"))
	fixture.Reserved = 4
	require.NoError(t, suite.Fixtures.InsertLot(ctx, fixture))
	repo := repository.NewLotRepository(suite.DB)

	_, err := repo.Deduct(ctx, fixture.ID, 7)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	lot, err := repo.Deduct(ctx, fixture.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 4, lot.CurrentQuantity)
	assert.Equal(t, 0, lot.Available())
}

func TestLotRepository_MarkExpiredAndStockLevel(t *testing.T) {
	ctx := integration(t)
	p := suite.Fixtures.Product(testutil.WithAlertStock(20))
	require.NoError(t, suite.Fixtures.InsertProduct(ctx, p))

	old := suite.Fixtures.Lot(p.ID, 7, day("2026-01-31"))
	fresh := suite.Fixtures.Lot(p.ID, 15, day("2027-01-31"))
	require.NoError(t, suite.Fixtures.InsertLot(ctx, old))
	require.NoError(t, suite.Fixtures.InsertLot(ctx, fresh))
	repo := repository.NewLotRepository(suite.DB)

	expired, err := repo.MarkExpired(ctx, day("2026-02-01"))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
	assert.Equal(t, domain.LotExpired, expired[0].Status)

	level, err := repo.StockLevel(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, level.Available)
	assert.True(t, level.BelowAlert())

	again, err := repo.MarkExpired(ctx, day("2026-02-01"))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLotRepository_ListAllocatable_Order(t *testing.T) {
	ctx := integration(t)
	product := seedProduct(t, ctx)
	late := suite.Fixtures.Lot(product.ID, 5, day("2027-12-01"))
	early := suite.Fixtures.Lot(product.ID, 10, day("2027-01-01"))
	empty := suite.Fixtures.Lot(product.ID, 0, day("2026-12-01"))
	empty.Status = "EXHAUSTED"
	for _, l := range []testutil.LotFixture{late, early, empty} {
		require.NoError(t, suite.Fixtures.InsertLot(ctx, l))
	}
	repo := repository.NewLotRepository(suite.DB)

	err := suite.DB.Transaction(ctx, func(ctx context.Context) error {
		lots, err := repo.ListAllocatable(ctx, product.ID)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, early.ID, lots[0].ID)
		assert.Equal(t, late.ID, lots[1].ID)
		return nil
	})
	require.NoError(t, err)
}

