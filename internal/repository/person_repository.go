package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gate-api/internal/models"
)

// PersonRepository reads the identifier directory. The directory rows are
// owned and refreshed by the external credential service; this repository
// never writes them.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs the repository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// ResolveBadge maps a badge identifier to its person record. The match is
// exact and case-sensitive. Deactivated persons do not resolve, so a
// revoked badge stops working immediately. A miss surfaces as
// sql.ErrNoRows for the caller to translate.
func (r *PersonRepository) ResolveBadge(ctx context.Context, identifier string) (*models.Person, error) {
	const query = `SELECT id, badge_identifier, category, full_name, label, photo_ref, active, created_at, updated_at
FROM persons WHERE badge_identifier = $1 AND active = TRUE`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, identifier); err != nil {
		return nil, fmt.Errorf("resolve badge: %w", err)
	}
	return &person, nil
}

// CountActive returns the number of active persons in a category. It backs
// the expected-population input of the absent estimate.
func (r *PersonRepository) CountActive(ctx context.Context, category models.PersonCategory) (int, error) {
	const query = `SELECT COUNT(*) FROM persons WHERE category = $1 AND active = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, category); err != nil {
		return 0, fmt.Errorf("count active persons: %w", err)
	}
	return count, nil
}
