package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// CatalogRepository reads reference data: products, suppliers, services
// and storage locations.
type CatalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *database.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetProduct returns a product by id
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if !isUUID(id) {
		return nil, errors.NotFound("product")
	}
	if err := r.db.Q(ctx).GetContext(ctx, &p, `SELECT * FROM products WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, mapErr(err)
	}
	return &p, nil
}

// GetProducts returns the products among ids that exist, keyed by id.
// Malformed ids are simply not found.
func (r *CatalogRepository) GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM products WHERE id IN (?)`, valid)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	var products []domain.Product
	if err := r.db.Q(ctx).SelectContext(ctx, &products, query, args...); err != nil {
		return nil, mapErr(err)
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

// GetSupplier returns a supplier by id
func (r *CatalogRepository) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var s domain.Supplier
	if !isUUID(id) {
		return nil, errors.NotFound("supplier")
	}
	if err := r.db.Q(ctx).GetContext(ctx, &s, `SELECT * FROM suppliers WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("supplier")
		}
		return nil, mapErr(err)
	}
	return &s, nil
}

// GetService returns a ward by id
func (r *CatalogRepository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	var s domain.Service
	if !isUUID(id) {
		return nil, errors.NotFound("service")
	}
	if err := r.db.Q(ctx).GetContext(ctx, &s, `SELECT * FROM services WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("service")
		}
		return nil, mapErr(err)
	}
	return &s, nil
}

// GetLocation returns a storage location by id
func (r *CatalogRepository) GetLocation(ctx context.Context, id string) (*domain.StorageLocation, error) {
	var l domain.StorageLocation
	if !isUUID(id) {
		return nil, errors.NotFound("storage location")
	}
	if err := r.db.Q(ctx).GetContext(ctx, &l, `SELECT * FROM storage_locations WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("storage location")
		}
		return nil, mapErr(err)
	}
	return &l, nil
}
