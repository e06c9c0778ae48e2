package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gate-api/internal/models"
)

const operatorColumns = `id, email, password_hash, full_name, station, active, last_login, created_at, updated_at`

// OperatorRepository persists gate-station operator accounts.
type OperatorRepository struct {
	db *sqlx.DB
}

// NewOperatorRepository constructs the repository.
func NewOperatorRepository(db *sqlx.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

// FindByEmail fetches an operator by email address.
func (r *OperatorRepository) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	query := fmt.Sprintf(`SELECT %s FROM operators WHERE email = $1`, operatorColumns)
	var operator models.Operator
	if err := r.db.GetContext(ctx, &operator, query, email); err != nil {
		return nil, fmt.Errorf("find operator by email: %w", err)
	}
	return &operator, nil
}

// FindByID fetches an operator by id.
func (r *OperatorRepository) FindByID(ctx context.Context, id string) (*models.Operator, error) {
	query := fmt.Sprintf(`SELECT %s FROM operators WHERE id = $1`, operatorColumns)
	var operator models.Operator
	if err := r.db.GetContext(ctx, &operator, query, id); err != nil {
		return nil, fmt.Errorf("find operator by id: %w", err)
	}
	return &operator, nil
}

// UpdateLastLogin stamps the most recent successful login.
func (r *OperatorRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE operators SET last_login = $1, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, ts, id); err != nil {
		return fmt.Errorf("update operator last login: %w", err)
	}
	return nil
}
