package submissions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tenderflow-backend/pkg/db/models"
	"github.com/angelmondragon/tenderflow-backend/pkg/enums"
)

// Repository persists supplier offers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, submission *models.Submission) error
	Resubmit(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	FindByTenderAndSupplier(ctx context.Context, tenderID, supplierID uuid.UUID) (*models.Submission, error)
	ListByTender(ctx context.Context, tenderID uuid.UUID, statuses []enums.SubmissionStatus) ([]models.Submission, error)
	Withdraw(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkWinner(ctx context.Context, tenderID, winnerID uuid.UUID, at time.Time) error
	SetEvaluationScores(ctx context.Context, scores map[uuid.UUID]float64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a submissions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == uuid.Nil {
		submission.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(submission).Error
}

// Resubmit replaces the offer of a withdrawn submission in place.
// Returns gorm.ErrRecordNotFound when the row is not withdrawn.
func (r *repository) Resubmit(ctx context.Context, submission *models.Submission) error {
	res := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", submission.ID, enums.SubmissionStatusWithdrawn).
		Select("total_amount", "currency", "line_prices", "criterion_scores", "compliance_score", "status", "submitted_at", "withdrawn_at", "notes", "updated_at").
		Updates(submission)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var submission models.Submission
	if err := query.First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *repository) FindByTenderAndSupplier(ctx context.Context, tenderID, supplierID uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Where("tender_id = ? AND supplier_id = ?", tenderID, supplierID).
		First(&submission).Error
	if err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListByTender returns offers in submission order. Empty statuses means all.
func (r *repository) ListByTender(ctx context.Context, tenderID uuid.UUID, statuses []enums.SubmissionStatus) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Where("tender_id = ?", tenderID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []models.Submission
	if err := query.Order("submitted_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Withdraw flips a still competing offer to withdrawn.
// Returns gorm.ErrRecordNotFound when the offer no longer competes.
func (r *repository) Withdraw(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, []enums.SubmissionStatus{enums.SubmissionStatusSubmitted, enums.SubmissionStatusReceived}).
		Updates(map[string]any{
			"status":       enums.SubmissionStatusWithdrawn,
			"withdrawn_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkWinner accepts winnerID and rejects every other competing offer of the
// tender. Withdrawn offers keep their status.
func (r *repository) MarkWinner(ctx context.Context, tenderID, winnerID uuid.UUID, at time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Submission{}).
		Where("tender_id = ? AND id <> ?", tenderID, winnerID).
		Updates(map[string]any{"is_winner": false, "updated_at": at}).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Submission{}).
		Where("tender_id = ? AND id <> ? AND status IN ?", tenderID, winnerID, []enums.SubmissionStatus{enums.SubmissionStatusSubmitted, enums.SubmissionStatusReceived}).
		Updates(map[string]any{"status": enums.SubmissionStatusRejected, "updated_at": at}).Error; err != nil {
		return err
	}
	res := db.Model(&models.Submission{}).
		Where("id = ? AND tender_id = ?", winnerID, tenderID).
		Updates(map[string]any{
			"is_winner":  true,
			"status":     enums.SubmissionStatusAccepted,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetEvaluationScores stores the best-value score computed for each offer.
func (r *repository) SetEvaluationScores(ctx context.Context, scores map[uuid.UUID]float64) error {
	for id, score := range scores {
		if err := r.db.WithContext(ctx).
			Model(&models.Submission{}).
			Where("id = ?", id).
			Update("evaluation_score", score).Error; err != nil {
			return err
		}
	}
	return nil
}
