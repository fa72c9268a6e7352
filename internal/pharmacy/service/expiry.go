package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// ExpirySweeper periodically flags available lots past their expiry date
// so allocation stops drawing from them.
type ExpirySweeper struct {
	tx        Transactor
	lots      LotStore
	audit     *AuditRecorder
	publisher *events.PharmacyEventPublisher
	interval  time.Duration
	now       func() time.Time
	logger    *logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	tx Transactor,
	lots LotStore,
	audit *AuditRecorder,
	publisher *events.PharmacyEventPublisher,
	interval time.Duration,
	log *logger.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		tx:        tx,
		lots:      lots,
		audit:     audit,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    log,
	}
}

// SetClock replaces the clock deciding what "today" is.
func (s *ExpirySweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start sweeps once immediately and then on every tick until Stop.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.SystemActor()))
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

		s.runSweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop stops the sweeper and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *ExpirySweeper) runSweep(ctx context.Context) {
	start := time.Now()
	lots, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("expired", len(lots)).
		Msg("expiry sweep completed")
}

// Sweep flags every available lot that expired before today and returns
// them.
func (s *ExpirySweeper) Sweep(ctx context.Context) ([]domain.Lot, error) {
	var expired []domain.Lot
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}
		var err error
		expired, err = s.lots.MarkExpired(ctx, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range expired {
		lot := &expired[i]
		entry := auditEntry(
			domain.AuditCategoryStock, domain.AuditExpire, nil,
			"lot", lot.ID, lot.LotNumber,
			fmt.Sprintf("Lot %s expired on %s", lot.LotNumber, lot.ExpiryDate.Format("2006-01-02")),
			map[string]interface{}{
				"product_id":       lot.ProductID,
				"current_quantity": lot.CurrentQuantity,
			},
		)
		s.audit.Record(ctx, entry)
		s.publisher.PublishLotExpired(ctx, lot)
	}
	return expired, nil
}
