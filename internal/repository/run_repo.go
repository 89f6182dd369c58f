package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/hubexport/internal/domain"
	"gorm.io/gorm"
)

// RunRepository handles workflow run history.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, run *domain.WorkflowRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &run, nil
}

// UpdateStage records the stage a run is in along with its status message.
func (r *RunRepository) UpdateStage(ctx context.Context, id string, stage domain.Stage, message string) error {
	updates := map[string]interface{}{
		"stage":   stage,
		"message": message,
	}
	if stage == domain.StageSucceeded || stage == domain.StageFailed {
		updates["completed_at"] = time.Now()
	}
	return r.update(ctx, id, updates)
}

// RecordFailure stores the retry count and last error of a run.
func (r *RunRepository) RecordFailure(ctx context.Context, id string, retryCount int, lastErr string) error {
	return r.update(ctx, id, map[string]interface{}{
		"retry_count": retryCount,
		"last_error":  lastErr,
	})
}

// SetRepositoryID stores the destination repository of a run.
func (r *RunRepository) SetRepositoryID(ctx context.Context, id, repositoryID string) error {
	return r.update(ctx, id, map[string]interface{}{"repository_id": repositoryID})
}

// ListRecent returns the most recent runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.WorkflowRun, error) {
	var runs []domain.WorkflowRun
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *RunRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.WorkflowRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
