package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// TransitionRepository persists the append-only audit log. There is no
// update or delete on purpose.
type TransitionRepository interface {
	Append(ctx context.Context, record *models.TransitionRecord) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.TransitionRecord, error)
}

type transitionRepository struct {
	db *gorm.DB
}

// NewTransitionRepository constructs a repository backed by GORM.
func NewTransitionRepository(db *gorm.DB) TransitionRepository {
	return &transitionRepository{db: db}
}

func (r *transitionRepository) Append(ctx context.Context, record *models.TransitionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *transitionRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.TransitionRecord, error) {
	var records []models.TransitionRecord
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
