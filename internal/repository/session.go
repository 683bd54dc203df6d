package repository

import (
	"context"
	"errors"
	"time"

	"pairsurvey/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session state not found")

// SessionRepository persists the wizard state of each browser session.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*models.SessionState, error) {
	var st models.SessionState
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Save inserts or replaces the state and stamps UpdatedAt.
func (r *SessionRepository) Save(ctx context.Context, st *models.SessionState) error {
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(st).Error
}

// DeleteStale removes sessions not touched since before and returns how many went.
func (r *SessionRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("updated_at < ?", before).Delete(&models.SessionState{})
	return res.RowsAffected, res.Error
}

// CountByStep returns the number of stored sessions on each screen.
func (r *SessionRepository) CountByStep(ctx context.Context) (map[models.Step]int64, error) {
	var rows []struct {
		Step  models.Step
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.SessionState{}).
		Select("step, count(*) as count").
		Group("step").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Step]int64, len(rows))
	for _, row := range rows {
		counts[row.Step] = row.Count
	}
	return counts, nil
}
