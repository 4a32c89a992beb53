package repository

import (
	"context"
	"database/sql"

	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// OperatorRepository caches operator identities published by the user service
type OperatorRepository struct {
	db *database.DB
}

// NewOperatorRepository creates a new operator repository
func NewOperatorRepository(db *database.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// Set creates or updates a cached operator
func (r *OperatorRepository) Set(ctx context.Context, op *Operator) error {
	query := `
		INSERT INTO operator_cache (user_id, first_name, last_name, email, role_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET first_name = $2, last_name = $3, email = $4, role_name = $5, updated_at = NOW()
	`

	_, err := r.db.Q(ctx).ExecContext(ctx, query, op.UserID, op.FirstName, op.LastName, op.Email, op.RoleName)
	return err
}

// Get gets a cached operator by user ID
func (r *OperatorRepository) Get(ctx context.Context, userID string) (*Operator, error) {
	var op Operator
	query := `SELECT user_id, first_name, last_name, email, role_name FROM operator_cache WHERE user_id = $1`
	if err := r.db.Q(ctx).GetContext(ctx, &op, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("operator")
		}
		return nil, err
	}
	return &op, nil
}

// Delete removes a cached operator
func (r *OperatorRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.Q(ctx).ExecContext(ctx, `DELETE FROM operator_cache WHERE user_id = $1`, userID)
	return err
}
