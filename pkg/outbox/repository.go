package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gmottadev/pageturner-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublished returns rows still awaiting publication, oldest first,
// skipping rows that already exhausted maxAttempts.
func (r *Repository) FetchUnpublished(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var rows []models.OutboxEvent
	err := conn.Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now(),
		}).Error
}

func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    cause.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}
