package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

const alertSelect = `
	SELECT a.id, a.product_id, a.type, a.message, a.is_read, a.created_at,
	       COALESCE(p.name, '') AS product_name
	FROM alerts a
	LEFT JOIN products p ON p.id = a.product_id`

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateIfAbsent inserts the alert unless an unread alert of the same type
// already exists for the product. It reports whether a row was created.
func (r *AlertRepository) CreateIfAbsent(ctx context.Context, alert *Alert) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (id, product_id, type, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, type) WHERE is_read = false DO NOTHING
		RETURNING is_read, created_at
	`

	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		alert.ID, alert.ProductID, alert.Type, alert.Message,
	).Scan(&alert.IsRead, &alert.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, database.Translate(err)
	}
	return true, nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("alert")
	}

	var alert Alert
	if err := r.db.Q(ctx).GetContext(ctx, &alert, alertSelect+` WHERE a.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// List lists alerts newest first
func (r *AlertRepository) List(ctx context.Context, f AlertFilter) ([]*Alert, int64, error) {
	if f.ProductID != "" && !isUUID(f.ProductID) {
		return []*Alert{}, 0, nil
	}

	w := &where{}
	if f.Type != "" {
		w.add("a.type = ?", f.Type)
	}
	if f.IsRead != nil {
		w.add("a.is_read = ?", *f.IsRead)
	}
	if f.ProductID != "" {
		w.add("a.product_id = ?", f.ProductID)
	}

	var total int64
	if err := r.db.Q(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM alerts a`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	limit, offset := limitOffset(f.Page, f.PerPage)
	query := alertSelect + w.String() +
		` ORDER BY a.created_at DESC, a.id LIMIT ` + w.next(limit) + ` OFFSET ` + w.next(offset)

	alerts := []*Alert{}
	if err := r.db.Q(ctx).SelectContext(ctx, &alerts, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, total, nil
}

// MarkRead marks one alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound("alert")
	}

	result, err := r.db.Q(ctx).ExecContext(ctx, `UPDATE alerts SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// MarkAllRead marks every currently unread alert as read in one statement
func (r *AlertRepository) MarkAllRead(ctx context.Context) (int64, error) {
	result, err := r.db.Q(ctx).ExecContext(ctx, `UPDATE alerts SET is_read = true WHERE is_read = false`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClearRead deletes all read alerts
func (r *AlertRepository) ClearRead(ctx context.Context) (int64, error) {
	result, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM alerts WHERE is_read = true`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete deletes one alert
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound("alert")
	}

	result, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}

// CountUnread counts unread alerts
func (r *AlertRepository) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Q(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts WHERE is_read = false`); err != nil {
		return 0, err
	}
	return count, nil
}
