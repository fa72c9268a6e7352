package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// ReceptionService books supplier deliveries into stock
type ReceptionService struct {
	tx        Transactor
	lots      LotStore
	catalog   CatalogStore
	ledger    *Ledger
	auth      *Authorizer
	audit     *AuditRecorder
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
}

// NewReceptionService creates a new reception service
func NewReceptionService(
	tx Transactor,
	lots LotStore,
	catalog CatalogStore,
	ledger *Ledger,
	auth *Authorizer,
	audit *AuditRecorder,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *ReceptionService {
	return &ReceptionService{
		tx:        tx,
		lots:      lots,
		catalog:   catalog,
		ledger:    ledger,
		auth:      auth,
		audit:     audit,
		publisher: publisher,
		logger:    log,
	}
}

// Receive validates the whole reception, then creates or tops up one lot
// per line and records a purchase receipt for each. Lines naming an
// unknown or inactive product are skipped and reported.
func (s *ReceptionService) Receive(ctx context.Context, in domain.Reception) (*domain.ReceptionResult, error) {
	ctx, span := tracer.Start(ctx, "ReceptionService.Receive", trace.WithAttributes(
		attribute.String("supplier.id", in.SupplierID),
		attribute.Int("reception.lines", len(in.Lines)),
	))
	defer span.End()

	principal, err := s.auth.Require(ctx, permissions.Lots, permissions.Add)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	receptionDate := s.ledger.Now()
	if in.ReceptionDate != nil && !in.ReceptionDate.IsZero() {
		receptionDate = *in.ReceptionDate
	}

	var result *domain.ReceptionResult
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.catalog.GetSupplier(ctx, in.SupplierID); err != nil {
			return err
		}
		if in.LocationID != nil {
			if _, err := s.catalog.GetLocation(ctx, *in.LocationID); err != nil {
				return err
			}
		}
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}

		ids := make([]string, len(in.Lines))
		for i, l := range in.Lines {
			ids[i] = l.ProductID
		}
		products, err := s.catalog.GetProducts(ctx, ids)
		if err != nil {
			return err
		}

		result = &domain.ReceptionResult{
			SupplierID: in.SupplierID,
			Lines:      make([]domain.ReceptionLineResult, 0, len(in.Lines)),
		}
		for i, l := range in.Lines {
			line := domain.ReceptionLineResult{
				Index:     i,
				ProductID: l.ProductID,
				LotNumber: l.LotNumber,
				Quantity:  l.Quantity,
			}

			product, ok := products[l.ProductID]
			switch {
			case !ok:
				line.Outcome, line.Reason = domain.ReceptionSkipped, domain.SkipUnknownProduct
			case !product.IsActive:
				line.Outcome, line.Reason = domain.ReceptionSkipped, domain.SkipInactiveProduct
			}
			if line.Outcome == domain.ReceptionSkipped {
				result.Skipped++
				result.Lines = append(result.Lines, line)
				continue
			}

			lot, _, err := s.lots.Receive(ctx, domain.LotReceipt{
				ProductID:       l.ProductID,
				LotNumber:       l.LotNumber,
				Quantity:        l.Quantity,
				ManufactureDate: l.ManufactureDate,
				ExpiryDate:      *l.ExpiryDate,
				ReceptionDate:   receptionDate,
				UnitPrice:       l.UnitPrice,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}

			mv, err := s.ledger.Append(ctx, domain.NewMovement{
				Type:                  domain.MovementPurchaseReceipt,
				ProductID:             l.ProductID,
				LotID:                 &lot.ID,
				Quantity:              l.Quantity,
				DestinationLocationID: in.LocationID,
				SupplierID:            &in.SupplierID,
				Reason:                in.DeliveryNote,
				PerformedBy:           &principal.ID,
			})
			if err != nil {
				return err
			}

			line.Outcome = domain.ReceptionAccepted
			line.Lot = lot
			line.MovementNumber = mv.Number
			result.Accepted++
			result.Lines = append(result.Lines, line)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("reception.accepted", result.Accepted),
		attribute.Int("reception.skipped", result.Skipped),
	)
	log := s.logger.WithSpan(ctx)
	for _, line := range result.Lines {
		if line.Outcome == domain.ReceptionSkipped {
			log.Warn().
				Int("line", line.Index+1).
				Str("product_id", line.ProductID).
				Str("reason", line.Reason).
				Msg("reception line skipped")
		}
	}
	log.Info().
		Str("supplier_id", in.SupplierID).
		Int("accepted", result.Accepted).
		Int("skipped", result.Skipped).
		Msg("reception booked")

	details := map[string]interface{}{
		"supplier_id": in.SupplierID,
		"accepted":    result.Accepted,
		"skipped":     result.Skipped,
	}
	if in.DeliveryNote != nil {
		details["delivery_note"] = *in.DeliveryNote
	}
	s.audit.Record(ctx, auditEntry(
		domain.AuditCategoryStock, domain.AuditReception, &principal.ID,
		"supplier", in.SupplierID, "",
		fmt.Sprintf("Reception of %d lots", result.Accepted),
		details,
	))
	s.publisher.PublishStockReceived(ctx, result)

	return result, nil
}
