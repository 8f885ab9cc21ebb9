package submissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tenderflow-backend/internal/tenders"
	"github.com/angelmondragon/tenderflow-backend/pkg/db"
	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service handles offer intake and sealed listing.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Submission, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.Submission, error)
	ListForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.Submission, error)
}

type service struct {
	repo    Repository
	tenders tenders.Repository
	tx      txRunner
	now     func() time.Time
}

// NewService builds the submission service. A nil clock uses time.Now.
func NewService(repo Repository, tenderRepo tenders.Repository, tx txRunner, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("submissions repository required")
	}
	if tenderRepo == nil {
		return nil, fmt.Errorf("tenders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, tenders: tenderRepo, tx: tx, now: now}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Submission, error) {
	if !input.Actor.IsSupplier() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only suppliers can submit offers")
	}
	if input.TenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tender id required")
	}

	now := s.now().UTC()
	var result *models.Submission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tender, err := s.tenders.WithTx(tx).FindByIDForUpdate(ctx, input.TenderID)
		if err != nil {
			return tenderLoadError(err)
		}
		if err := ensureOpen(tender, now); err != nil {
			return err
		}

		currency := input.Currency
		if currency == "" {
			currency = tender.Currency
		}
		if err := validateOffer(tender, input, currency).Err(); err != nil {
			return err
		}

		submission := &models.Submission{
			ID:              uuid.New(),
			TenderID:        tender.ID,
			SupplierID:      input.Actor.UserID,
			TotalAmount:     input.TotalAmount,
			Currency:        currency,
			LinePrices:      input.LinePrices,
			CriterionScores: input.CriterionScores,
			ComplianceScore: input.ComplianceScore,
			Status:          enums.SubmissionStatusSubmitted,
			SubmittedAt:     now,
			Notes:           input.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByTenderAndSupplier(ctx, tender.ID, input.Actor.UserID)
		switch {
		case err == nil && existing.Status == enums.SubmissionStatusWithdrawn:
			submission.ID = existing.ID
			submission.CreatedAt = existing.CreatedAt
			if err := repo.Resubmit(ctx, submission); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeConflict, "offer changed concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resubmit offer")
			}
		case err == nil:
			return pkgerrors.New(pkgerrors.CodeConflict, "supplier already submitted an offer for this tender")
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing offer")
		default:
			if err := repo.Create(ctx, submission); err != nil {
				if db.IsUniqueViolation(err, "ux_submissions_tender_supplier") || db.IsUniqueViolation(err, "submissions.tender_id") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "supplier already submitted an offer for this tender")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
			}
		}
		result = submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.Submission, error) {
	if !input.Actor.IsSupplier() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only suppliers can withdraw offers")
	}

	now := s.now().UTC()
	var result *models.Submission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		tender, err := s.tenders.WithTx(tx).FindByIDForUpdate(ctx, input.TenderID)
		if err != nil {
			return tenderLoadError(err)
		}
		repo := s.repo.WithTx(tx)
		submission, err := repo.FindByIDForUpdate(ctx, input.SubmissionID)
		if err != nil {
			return submissionLoadError(err)
		}
		if submission.TenderID != tender.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "submission not found")
		}
		if submission.SupplierID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the submitting supplier can withdraw an offer")
		}
		if err := ensureOpen(tender, now); err != nil {
			return err
		}
		if err := repo.Withdraw(ctx, submission.ID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "cannot withdraw an offer in status %s", submission.Status)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw offer")
		}
		submission.Status = enums.SubmissionStatusWithdrawn
		submission.WithdrawnAt = &now
		submission.UpdatedAt = now
		result = submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListForTender shows a supplier their own offer. The owning buyer sees every
// offer once the tender closed and the decryption date passed.
func (s *service) ListForTender(ctx context.Context, tenderID uuid.UUID, actor tenders.Actor) ([]models.Submission, error) {
	tender, err := s.tenders.FindByID(ctx, tenderID)
	if err != nil {
		return nil, tenderLoadError(err)
	}

	switch {
	case actor.IsSupplier():
		own, err := s.repo.FindByTenderAndSupplier(ctx, tenderID, actor.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return []models.Submission{}, nil
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
		}
		return []models.Submission{*own}, nil
	case actor.Owns(tender):
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the owning buyer can list offers")
	}

	if tender.Status == enums.TenderStatusDraft || tender.Status == enums.TenderStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "offers stay sealed until the tender closes")
	}
	if tender.IsSealed(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "offers are sealed until the decryption date")
	}
	rows, err := s.repo.ListByTender(ctx, tenderID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	return rows, nil
}

func ensureOpen(tender *models.Tender, now time.Time) error {
	if tender.Status != enums.TenderStatusPublished {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "tender is not accepting offers in status %s", tender.Status)
	}
	if !now.Before(tender.SubmissionDeadline) {
		return pkgerrors.New(pkgerrors.CodeConflict, "submission deadline has passed")
	}
	return nil
}

func validateOffer(tender *models.Tender, input SubmitInput, currency enums.Currency) tenders.Violations {
	var out tenders.Violations
	add := func(field, rule, message string) {
		out = append(out, tenders.Violation{Field: field, Rule: rule, Message: message})
	}

	if !input.TotalAmount.IsPositive() {
		add("total_amount", tenders.RuleRange, "total amount must be positive")
	}
	if currency != tender.Currency {
		add("currency", tenders.RuleInvalid, fmt.Sprintf("offer currency %s does not match tender currency %s", currency, tender.Currency))
	}

	seen := make(map[string]struct{}, len(input.LinePrices))
	for i, line := range input.LinePrices {
		field := fmt.Sprintf("line_prices[%d]", i)
		code := strings.TrimSpace(line.ItemCode)
		if _, ok := tender.LineItems.Find(code); !ok {
			add(field+".item_code", tenders.RuleInvalid, fmt.Sprintf("unknown line item %q", line.ItemCode))
		} else if _, dup := seen[code]; dup {
			add(field+".item_code", tenders.RuleUnique, fmt.Sprintf("line item %q priced twice", code))
		}
		seen[code] = struct{}{}
		if line.UnitPrice.IsNegative() {
			add(field+".unit_price", tenders.RuleRange, "unit price must not be negative")
		}
	}

	names := make([]string, 0, len(input.CriterionScores))
	for name := range input.CriterionScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		score := input.CriterionScores[name]
		if score < 0 || score > 100 {
			add("criterion_scores."+name, tenders.RuleRange, "criterion score must be between 0 and 100")
		}
		if !hasCriterion(tender.Criteria, name) {
			add("criterion_scores."+name, tenders.RuleInvalid, fmt.Sprintf("unknown criterion %q", name))
		}
	}
	if input.ComplianceScore != nil && (*input.ComplianceScore < 0 || *input.ComplianceScore > 100) {
		add("compliance_score", tenders.RuleRange, "compliance score must be between 0 and 100")
	}
	return out
}

func hasCriterion(criteria types.Criteria, name string) bool {
	for _, c := range criteria {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func tenderLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tender not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tender")
}

func submissionLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "submission not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load submission")
}
