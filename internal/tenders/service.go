package tenders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/numbering"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox"
	"github.com/angelmondragon/tenderflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tenderflow-backend/pkg/pagination"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AuditRecorder receives lifecycle entries once the owning transaction
// committed. The same entry rides the outbox event inside the transaction.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

type numberAllocator interface {
	Allocate(ctx context.Context, exists numbering.ExistsFunc) (string, error)
}

// Service exposes the buyer-facing tender lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Tender, error)
	Update(ctx context.Context, input UpdateInput) (*models.Tender, error)
	Publish(ctx context.Context, tenderID uuid.UUID, actor Actor) (*models.Tender, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Tender, error)
	Get(ctx context.Context, tenderID uuid.UUID, actor Actor) (*models.Tender, error)
	List(ctx context.Context, actor Actor, params ListParams) (*TenderList, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	audit   AuditRecorder
	numbers numberAllocator
	now     func() time.Time
}

// NewService builds the tender service. A nil clock uses time.Now.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, audit AuditRecorder, numbers numberAllocator, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tenders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("number allocator required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		audit:   audit,
		numbers: numbers,
		now:     now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Tender, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Actor.IsBuyer() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can create tenders")
	}

	now := s.now().UTC()
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	tender := &models.Tender{
		ID:                 uuid.New(),
		BuyerID:            input.Actor.UserID,
		Title:              strings.TrimSpace(input.Title),
		Description:        input.Description,
		Status:             enums.TenderStatusDraft,
		Currency:           currency,
		BudgetMin:          nullDecimal(input.BudgetMin),
		BudgetMax:          nullDecimal(input.BudgetMax),
		SubmissionDeadline: input.SubmissionDeadline.UTC(),
		DecryptionDate:     utcPtr(input.DecryptionDate),
		InquiryStart:       utcPtr(input.InquiryStart),
		InquiryEnd:         utcPtr(input.InquiryEnd),
		Criteria:           input.Criteria,
		LineItems:          input.LineItems,
		IsPublic:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if input.IsPublic != nil {
		tender.IsPublic = *input.IsPublic
	}
	if err := validateDraft(*tender).Err(); err != nil {
		return nil, err
	}

	var entry models.AuditEntry
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		number, err := s.numbers.Allocate(ctx, repo.NumberExists)
		if err != nil {
			return err
		}
		tender.Number = number
		if err := repo.Create(ctx, tender); err != nil {
			if db.IsUniqueViolation(err, "ux_tenders_number") || db.IsUniqueViolation(err, "tenders.number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "tender number already allocated")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tender")
		}
		entry = newAuditEntry(tender.ID, input.Actor.UserID, enums.AuditActionCreated, nil, enums.TenderStatusDraft, types.JSONMap{
			"number": tender.Number,
		}, now)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderCreated,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         actorRef(input.Actor),
			OccurredAt:    now,
			Data: payloads.TenderCreatedEvent{
				TenderID: tender.ID,
				Number:   tender.Number,
				BuyerID:  tender.BuyerID,
			},
		}.WithAudit(entry))
	}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, entry)
	return tender, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.Tender, error) {
	if input.TenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tender id required")
	}

	var (
		updated *models.Tender
		changed []string
		entry   models.AuditEntry
	)
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tender, err := repo.FindByIDForUpdate(ctx, input.TenderID)
		if err != nil {
			return loadError(err)
		}
		if !input.Actor.Owns(tender) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can update a tender")
		}
		if tender.Status != enums.TenderStatusDraft {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "cannot update a tender in status %s", tender.Status)
		}

		changed = applyPatch(tender, input)
		if len(changed) == 0 {
			updated = tender
			return nil
		}
		if err := validateDraft(*tender).Err(); err != nil {
			return err
		}
		tender.UpdatedAt = s.now().UTC()
		if err := repo.UpdateDraft(ctx, tender, append(changed, "updated_at")); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConcurrentTransition
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tender")
		}
		updated = tender

		previous := enums.TenderStatusDraft
		entry = newAuditEntry(tender.ID, input.Actor.UserID, enums.AuditActionUpdated, &previous, enums.TenderStatusDraft, types.JSONMap{
			"fields": changed,
		}, tender.UpdatedAt)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderUpdated,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         actorRef(input.Actor),
			OccurredAt:    tender.UpdatedAt,
			Data: payloads.TenderUpdatedEvent{
				TenderID: tender.ID,
				Number:   tender.Number,
				BuyerID:  tender.BuyerID,
				Fields:   changed,
			},
		}.WithAudit(entry))
	}); err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.audit.Record(ctx, entry)
	}
	return updated, nil
}

func (s *service) Publish(ctx context.Context, tenderID uuid.UUID, actor Actor) (*models.Tender, error) {
	if tenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tender id required")
	}

	var (
		tender *models.Tender
		entry  models.AuditEntry
	)
	now := s.now().UTC()
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		tender, err = s.repo.WithTx(tx).FindByIDForUpdate(ctx, tenderID)
		if err != nil {
			return loadError(err)
		}
		if !actor.Owns(tender) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can publish a tender")
		}
		if _, err := Next(tender.Status, EventPublish); err != nil {
			return err
		}
		if err := ValidateForPublish(*tender, now).Err(); err != nil {
			return err
		}
		previous, err := Transition(ctx, tx, tender, EventPublish, now, nil)
		if err != nil {
			return err
		}
		entry = newAuditEntry(tender.ID, actor.UserID, enums.AuditActionPublished, &previous, tender.Status, nil, now)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderPublished,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.TenderPublishedEvent{
				TenderID:           tender.ID,
				Number:             tender.Number,
				BuyerID:            tender.BuyerID,
				Title:              tender.Title,
				SubmissionDeadline: tender.SubmissionDeadline,
				DecryptionDate:     tender.DecryptionDate,
				IsPublic:           tender.IsPublic,
			},
		}.WithAudit(entry))
	}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, entry)
	return tender, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Tender, error) {
	if input.TenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tender id required")
	}
	reason := trimmedPtr(input.Reason)

	var (
		tender *models.Tender
		entry  models.AuditEntry
	)
	now := s.now().UTC()
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		tender, err = s.repo.WithTx(tx).FindByIDForUpdate(ctx, input.TenderID)
		if err != nil {
			return loadError(err)
		}
		if !input.Actor.Owns(tender) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can cancel a tender")
		}
		previous, err := Transition(ctx, tx, tender, EventCancel, now, map[string]any{"cancel_reason": reason})
		if err != nil {
			return err
		}
		tender.CancelReason = reason

		metadata := types.JSONMap{}
		if reason != nil {
			metadata["reason"] = *reason
		}
		entry = newAuditEntry(tender.ID, input.Actor.UserID, enums.AuditActionCancelled, &previous, tender.Status, metadata, now)
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTenderCancelled,
			AggregateType: enums.AggregateTender,
			AggregateID:   tender.ID,
			Actor:         actorRef(input.Actor),
			OccurredAt:    now,
			Data: payloads.TenderCancelledEvent{
				TenderID:       tender.ID,
				Number:         tender.Number,
				BuyerID:        tender.BuyerID,
				PreviousStatus: previous,
				Reason:         reason,
			},
		}.WithAudit(entry))
	}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, entry)
	return tender, nil
}

func (s *service) Get(ctx context.Context, tenderID uuid.UUID, actor Actor) (*models.Tender, error) {
	tender, err := s.repo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, loadError(err)
	}
	if !CanView(tender, actor) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
	}
	return tender, nil
}

func (s *service) List(ctx context.Context, actor Actor, params ListParams) (*TenderList, error) {
	filter := ListFilter{Status: params.Status}
	if params.Mine {
		if !actor.IsBuyer() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers own tenders")
		}
		buyerID := actor.UserID
		filter.BuyerID = &buyerID
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.List(ctx, filter, params.Params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tenders")
	}
	return list, nil
}

// CanView hides drafts from everyone but their owner.
func CanView(t *models.Tender, actor Actor) bool {
	if t == nil {
		return false
	}
	if actor.Owns(t) {
		return true
	}
	return t.Status != enums.TenderStatusDraft
}

func validateDraft(t models.Tender) Violations {
	var out Violations
	if t.Title == "" {
		out.add("title", RuleRequired, "title is required")
	}
	if !t.Currency.IsValid() {
		out.add("currency", RuleInvalid, fmt.Sprintf("unsupported currency %q", t.Currency))
	}
	if t.BudgetMin.Valid && t.BudgetMin.Decimal.IsNegative() {
		out.add("budget_min", RuleRange, "budget minimum must not be negative")
	}
	if t.BudgetMin.Valid && t.BudgetMax.Valid && t.BudgetMin.Decimal.GreaterThan(t.BudgetMax.Decimal) {
		out.add("budget_max", RuleOrder, "budget maximum must not be below the minimum")
	}
	if len(t.LineItems) > 0 {
		out = append(out, validateLineItems(t.LineItems)...)
	}
	out = append(out, ValidateCriteria(t.Criteria)...)
	out = append(out, ValidateSchedule(ScheduleOf(t))...)
	return out
}

func applyPatch(t *models.Tender, in UpdateInput) []string {
	var changed []string
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
		changed = append(changed, "title")
	}
	if in.Description != nil {
		t.Description = in.Description
		changed = append(changed, "description")
	}
	if in.Currency != nil {
		t.Currency = *in.Currency
		changed = append(changed, "currency")
	}
	if in.BudgetMin != nil {
		t.BudgetMin = nullDecimal(in.BudgetMin)
		changed = append(changed, "budget_min")
	}
	if in.BudgetMax != nil {
		t.BudgetMax = nullDecimal(in.BudgetMax)
		changed = append(changed, "budget_max")
	}
	if in.SubmissionDeadline != nil {
		t.SubmissionDeadline = in.SubmissionDeadline.UTC()
		changed = append(changed, "submission_deadline")
	}
	if in.DecryptionDate != nil {
		t.DecryptionDate = utcPtr(in.DecryptionDate)
		changed = append(changed, "decryption_date")
	}
	if in.InquiryStart != nil {
		t.InquiryStart = utcPtr(in.InquiryStart)
		changed = append(changed, "inquiry_start")
	}
	if in.InquiryEnd != nil {
		t.InquiryEnd = utcPtr(in.InquiryEnd)
		changed = append(changed, "inquiry_end")
	}
	if in.Criteria != nil {
		t.Criteria = *in.Criteria
		changed = append(changed, "criteria")
	}
	if in.LineItems != nil {
		t.LineItems = *in.LineItems
		changed = append(changed, "line_items")
	}
	if in.IsPublic != nil {
		t.IsPublic = *in.IsPublic
		changed = append(changed, "is_public")
	}
	return changed
}

func loadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
}

func newAuditEntry(tenderID, actorID uuid.UUID, action enums.AuditAction, previous *enums.TenderStatus, next enums.TenderStatus, metadata types.JSONMap, at time.Time) models.AuditEntry {
	return models.AuditEntry{
		ID:             uuid.New(),
		TenderID:       tenderID,
		ActorID:        actorID,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      next,
		Metadata:       metadata,
		OccurredAt:     at.UTC(),
	}
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
