package service

import (
	"context"
	"fmt"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// Ledger numbers and appends stock movements and hands out order numbers.
// It never changes lot quantities; callers deduct or receive first and
// record the movement in the same transaction.
type Ledger struct {
	movements MovementStore
	sequence  Sequence
	now       func() time.Time
}

// NewLedger creates a ledger numbering from sequence
func NewLedger(movements MovementStore, sequence Sequence) *Ledger {
	return &Ledger{
		movements: movements,
		sequence:  sequence,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for numbering.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Now is the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// NextNumber returns the next PREFIX-YYYYMMDD-N identifier for today.
func (l *Ledger) NextNumber(ctx context.Context, prefix string) (string, error) {
	day := l.now()
	seq, err := l.sequence.Next(ctx, prefix, day)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", prefix, err)
	}
	return domain.FormatNumber(prefix, day, seq), nil
}

// NextOrderNumber returns the next CMD number.
func (l *Ledger) NextOrderNumber(ctx context.Context) (string, error) {
	return l.NextNumber(ctx, domain.OrderPrefix)
}

// Append records a movement under a fresh MVT number.
func (l *Ledger) Append(ctx context.Context, in domain.NewMovement) (*domain.Movement, error) {
	if !in.Type.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.Quantity <= 0 {
		return nil, errors.InvalidInput("movement quantity must be positive")
	}
	direction := in.Direction
	if direction == "" {
		direction = in.Type.DefaultDirection()
	}
	if direction == "" {
		return nil, errors.InvalidInput(fmt.Sprintf("movement type %s needs a direction", in.Type))
	}

	number, err := l.NextNumber(ctx, domain.MovementPrefix)
	if err != nil {
		return nil, err
	}

	m := &domain.Movement{
		Number:                number,
		Type:                  in.Type,
		Direction:             direction,
		ProductID:             in.ProductID,
		LotID:                 in.LotID,
		Quantity:              in.Quantity,
		SourceLocationID:      in.SourceLocationID,
		DestinationLocationID: in.DestinationLocationID,
		ServiceID:             in.ServiceID,
		OrderID:               in.OrderID,
		SupplierID:            in.SupplierID,
		Reason:                in.Reason,
		PerformedBy:           in.PerformedBy,
	}
	if err := l.movements.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
