package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gate-api/internal/models"
)

const accessEventColumns = `id, identifier, mode, person_id, person_category, person_name, person_label,
registered_by, registered_by_name, device_info, active, recorded_at`

// AccessEventRepository persists the append-only access event log. Rows
// are never updated or hard-deleted; the only mutation is the soft-delete
// active flag.
type AccessEventRepository struct {
	db *sqlx.DB
}

// NewAccessEventRepository constructs the repository.
func NewAccessEventRepository(db *sqlx.DB) *AccessEventRepository {
	return &AccessEventRepository{db: db}
}

// Append inserts one event atomically and fills in its monotonic id.
func (r *AccessEventRepository) Append(ctx context.Context, event *models.AccessEvent) error {
	const query = `INSERT INTO access_events (identifier, mode, person_id, person_category, person_name, person_label,
registered_by, registered_by_name, device_info, active, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	if err := r.db.GetContext(ctx, &event.ID, query,
		event.Identifier, event.Mode, event.PersonID, event.Category, event.FullName, event.Label,
		event.RegisteredBy, event.RegisteredByName, event.DeviceInfo, event.Active, event.RecordedAt,
	); err != nil {
		return fmt.Errorf("append access event: %w", err)
	}
	return nil
}

// List returns events matching the filter, newest first, with a total count.
func (r *AccessEventRepository) List(ctx context.Context, filter models.AccessEventFilter) ([]models.AccessEvent, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ActiveOnly {
		where = append(where, "active = TRUE")
	}
	if filter.Mode != nil {
		where = append(where, fmt.Sprintf("mode = $%d", len(args)+1))
		args = append(args, *filter.Mode)
	}
	if filter.Date != nil {
		start, end := dayBounds(*filter.Date)
		where = append(where, fmt.Sprintf("recorded_at >= $%d", len(args)+1))
		args = append(args, start)
		where = append(where, fmt.Sprintf("recorded_at < $%d", len(args)+1))
		args = append(args, end)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM access_events WHERE %s
ORDER BY recorded_at DESC, id DESC LIMIT %d OFFSET %d`, accessEventColumns, whereClause, size, offset)

	var events []models.AccessEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list access events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM access_events WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count access events: %w", err)
	}
	return events, total, nil
}

// ListForDay fetches every active event of one calendar day, newest first.
// The presence aggregator and the daily report both read through here.
func (r *AccessEventRepository) ListForDay(ctx context.Context, date time.Time) ([]models.AccessEvent, error) {
	start, end := dayBounds(date)
	query := fmt.Sprintf(`SELECT %s FROM access_events
WHERE active = TRUE AND recorded_at >= $1 AND recorded_at < $2
ORDER BY recorded_at DESC, id DESC`, accessEventColumns)
	var events []models.AccessEvent
	if err := r.db.SelectContext(ctx, &events, query, start, end); err != nil {
		return nil, fmt.Errorf("list day access events: %w", err)
	}
	return events, nil
}

// Deactivate soft-deletes one event. Reserved for corrective deletion;
// no other field is ever mutable.
func (r *AccessEventRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE access_events SET active = FALSE WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate access event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate access event: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deactivate access event: %w", sql.ErrNoRows)
	}
	return nil
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}
