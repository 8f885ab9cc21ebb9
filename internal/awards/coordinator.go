package awards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/analysis"
	"github.com/angelmondragon/tenderflow-backend/internal/numbering"
	"github.com/angelmondragon/tenderflow-backend/internal/reports"
	"github.com/angelmondragon/tenderflow-backend/internal/submissions"
	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/logger"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

const defaultMaxAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type numberAllocator interface {
	Allocate(ctx context.Context, exists numbering.ExistsFunc) (string, error)
}

// Input names the tender, the winning offer and the buyer awarding it.
type Input struct {
	TenderID     uuid.UUID
	SubmissionID uuid.UUID
	Actor        tenders.Actor
}

// Params wires the coordinator.
type Params struct {
	TxRunner    txRunner
	Tenders     tenders.Repository
	Submissions submissions.Repository
	Reports     reports.Repository
	Orders      Repository
	Outbox      outboxPublisher
	Audit       tenders.AuditRecorder
	Numbers     numberAllocator
	Logger      *logger.Logger
	MaxAttempts int
	Now         func() time.Time
}

// Coordinator turns a winning offer into a purchase order in one transaction.
type Coordinator struct {
	tx          txRunner
	tenders     tenders.Repository
	submissions submissions.Repository
	reports     reports.Repository
	orders      Repository
	outbox      outboxPublisher
	audit       tenders.AuditRecorder
	numbers     numberAllocator
	logg        *logger.Logger
	maxAttempts int
	now         func() time.Time
}

func NewCoordinator(params Params) (*Coordinator, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Tenders == nil {
		return nil, fmt.Errorf("tenders repository required")
	}
	if params.Submissions == nil {
		return nil, fmt.Errorf("submissions repository required")
	}
	if params.Reports == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("purchase order repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		tx:          params.TxRunner,
		tenders:     params.Tenders,
		submissions: params.Submissions,
		reports:     params.Reports,
		orders:      params.Orders,
		outbox:      params.Outbox,
		audit:       params.Audit,
		numbers:     params.Numbers,
		logg:        params.Logger,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

// Award validates the request against the tender's current state and, in
// the same transaction, writes the purchase order, marks the winner and
// moves the tender to awarded. A purchase order number collision retries the
// whole transaction.
func (c *Coordinator) Award(ctx context.Context, input Input) (*models.PurchaseOrder, error) {
	if input.TenderID == uuid.Nil || input.SubmissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tender id and submission id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"tender_id":     input.TenderID.String(),
		"submission_id": input.SubmissionID.String(),
	})

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		order, err := c.attempt(ctx, input)
		if err == nil {
			return order, nil
		}
		if !isNumberCollision(err) {
			return nil, err
		}
		lastErr = err
		c.logg.Warn(c.logg.WithField(ctx, "attempt", attempt), "purchase order number collided, retrying award")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique purchase order number")
}

func (c *Coordinator) attempt(ctx context.Context, input Input) (*models.PurchaseOrder, error) {
	now := c.now().UTC()
	var (
		order *models.PurchaseOrder
		entry models.AuditEntry
	)

	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tender, err := c.tenders.WithTx(tx).FindByIDForUpdate(ctx, input.TenderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
		}
		if !input.Actor.Owns(tender) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can award a tender")
		}
		if _, err := tenders.Next(tender.Status, tenders.EventAward); err != nil {
			return err
		}
		if tender.IsSealed(now) {
			return pkgerrors.New(pkgerrors.CodeConflict, "offers are sealed until the decryption date")
		}
		if err := tenders.ValidateForAward(*tender).Err(); err != nil {
			return err
		}

		subRepo := c.submissions.WithTx(tx)
		winner, err := subRepo.FindByIDForUpdate(ctx, input.SubmissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "submission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load submission")
		}
		if winner.TenderID != tender.ID {
			return pkgerrors.New(pkgerrors.CodeConflict, "submission does not belong to this tender")
		}
		if !winner.Status.IsValidOffer() {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "submission in status %s cannot win", winner.Status)
		}

		orders := c.orders.WithTx(tx)
		number, err := c.numbers.Allocate(ctx, orders.NumberExists)
		if err != nil {
			return err
		}
		order = buildPurchaseOrder(tender, winner, number, now)
		if err := orders.Create(ctx, order); err != nil {
			switch {
			case isNumberCollision(err):
				return err
			case db.IsUniqueViolation(err, "ux_purchase_orders_tender") || db.IsUniqueViolation(err, "purchase_orders.tender_id"):
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "tender already awarded")
			default:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase order")
			}
		}

		if err := c.storeEvaluationScores(ctx, tx, tender); err != nil {
			return err
		}
		if err := subRepo.MarkWinner(ctx, tender.ID, winner.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark winning submission")
		}
		previous, err := tenders.Transition(ctx, tx, tender, tenders.EventAward, now, nil)
		if err != nil {
			return err
		}

		entry = models.AuditEntry{
			ID:             uuid.New(),
			TenderID:       tender.ID,
			ActorID:        input.Actor.UserID,
			Action:         tenders.ActionFor(tenders.EventAward),
			PreviousStatus: &previous,
			NewStatus:      enums.TenderStatusAwarded,
			Metadata: types.JSONMap{
				"purchase_order_id":     order.ID.String(),
				"purchase_order_number": order.Number,
				"submission_id":         order.SubmissionID.String(),
			},
			OccurredAt: now,
		}

		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderAwarded,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			OccurredAt:    now,
			Data: payloads.TenderAwardedEvent{
				TenderID:            tender.ID,
				Number:              tender.Number,
				BuyerID:             tender.BuyerID,
				SupplierID:          winner.SupplierID,
				SubmissionID:        winner.ID,
				PurchaseOrderID:     order.ID,
				PurchaseOrderNumber: order.Number,
				TotalAmount:         order.TotalAmount,
				Currency:            order.Currency,
			},
		}.WithAudit(entry))
	})
	if err != nil {
		return nil, err
	}

	c.audit.Record(ctx, entry)
	c.logg.Info(c.logg.WithField(ctx, "purchase_order_number", order.Number), "tender awarded")
	return order, nil
}

// storeEvaluationScores persists the best-value score of every ranked offer
// so the award decision can be explained later.
func (c *Coordinator) storeEvaluationScores(ctx context.Context, tx *gorm.DB, tender *models.Tender) error {
	report, err := c.reports.WithTx(tx).FindByTenderID(ctx, tender.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load opening report")
	}
	result := analysis.Analyze(report.Snapshot, tender.Criteria, tender.LineItems)
	scores := make(map[uuid.UUID]float64, len(result.Ranking))
	for _, ranked := range result.Ranking {
		scores[ranked.SubmissionID] = ranked.Score
	}
	if err := c.submissions.WithTx(tx).SetEvaluationScores(ctx, scores); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store evaluation scores")
	}
	return nil
}

// PurchaseOrderForTender returns the order of an awarded tender to its buyer
// or to the winning supplier.
func (c *Coordinator) PurchaseOrderForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) (*models.PurchaseOrder, error) {
	order, err := c.orders.FindByTenderID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase order")
	}
	switch {
	case actor.IsBuyer() && actor.UserID == order.BuyerID:
	case actor.IsSupplier() && actor.UserID == order.SupplierID:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase order belongs to another party")
	}
	return order, nil
}

func buildPurchaseOrder(tender *models.Tender, winner *models.Submission, number string, now time.Time) *models.PurchaseOrder {
	lines := make(types.POLines, 0, len(tender.LineItems))
	for _, item := range tender.LineItems {
		for _, price := range winner.LinePrices {
			if price.ItemCode != item.Code {
				continue
			}
			lines = append(lines, types.POLine{
				Code:        item.Code,
				Description: item.Description,
				Quantity:    item.Quantity,
				Unit:        item.Unit,
				UnitPrice:   price.UnitPrice,
				LineTotal:   price.UnitPrice.Mul(item.Quantity),
			})
			break
		}
	}
	criteria := append(types.Criteria(nil), tender.Criteria...)
	return &models.PurchaseOrder{
		ID:           uuid.New(),
		Number:       number,
		TenderID:     tender.ID,
		SubmissionID: winner.ID,
		SupplierID:   winner.SupplierID,
		BuyerID:      tender.BuyerID,
		TotalAmount:  winner.TotalAmount,
		Currency:     winner.Currency,
		Status:       enums.PurchaseOrderStatusPending,
		LineItems:    lines,
		Terms: types.POTerms{
			TenderNumber:       tender.Number,
			Title:              tender.Title,
			Currency:           tender.Currency,
			Criteria:           criteria,
			SubmissionDeadline: tender.SubmissionDeadline,
			DecryptionDate:     tender.DecryptionDate,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func isNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, "ux_purchase_orders_number") || db.IsUniqueViolation(err, "purchase_orders.number")
}
