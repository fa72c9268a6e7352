package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// IntegrationSuite provides a real PostgreSQL database with the pharmacy
// schema applied.
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    suite, err = testutil.NewIntegrationSuite(ctx, repository.Schema)
//	    if err != nil {
//	        // Docker unavailable: tests call suite.Skip(t)
//	    }
//	    code := m.Run()
//	    suite.Cleanup(ctx)
//	    os.Exit(code)
//	}
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts a container and applies schema to it.
func NewIntegrationSuite(ctx context.Context, schema string) (*IntegrationSuite, error) {
	container, err := NewPostgresContainer(ctx, DefaultPostgresConfig())
	if err != nil {
		return nil, err
	}

	raw, err := container.Connect(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, err
	}

	if _, err := raw.ExecContext(ctx, schema); err != nil {
		raw.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log := logger.Nop()

	return &IntegrationSuite{
		Container: container,
		RawDB:     raw,
		DB:        database.Wrap(raw, log),
		Fixtures:  NewFixtureFactory(raw),
		Logger:    log,
	}, nil
}

// Reset empties every pharmacy table between tests.
func (s *IntegrationSuite) Reset(ctx context.Context) error {
	_, err := s.RawDB.ExecContext(ctx, `
		TRUNCATE audit_journal, movements, order_lines, orders, lots,
			sequence_counters, role_permissions, principals, roles,
			products, suppliers, services, storage_locations
		RESTART IDENTITY CASCADE
	`)
	return err
}

// Cleanup closes the connection and terminates the container. Safe on a
// nil suite.
func (s *IntegrationSuite) Cleanup(ctx context.Context) {
	if s == nil {
		return
	}
	s.RawDB.Close()
	s.Container.Terminate(ctx)
}
