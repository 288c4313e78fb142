package component

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence for component records. Runtime fields
// (status, pending commands, latency) are memory-only by design; the
// repository carries identity, grouping, content assignment, the
// maintenance trail and the last contact timestamp.
type Repository interface {
	// List retrieves all persisted components. Malformed rows are skipped,
	// not fatal; the implementation logs and carries on.
	List(ctx context.Context) ([]Component, error)

	// GetByUUID retrieves one component. Returns ErrNotFound if absent.
	GetByUUID(ctx context.Context, uuid string) (*Component, error)

	// Create inserts a new record. Returns ErrExists on id/uuid collision.
	Create(ctx context.Context, c *Component) error

	// Update rewrites the persisted fields of an existing record.
	Update(ctx context.Context, c *Component) error

	// Delete removes a record by uuid. Returns ErrNotFound if absent.
	Delete(ctx context.Context, uuid string) error

	// UpdateContact persists the last contact timestamp. Called on every
	// heartbeat; kept narrow so it stays cheap.
	UpdateContact(ctx context.Context, uuid string, lastContact time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteRepository creates a SQLite-backed repository over an open
// connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used for skipped-row warnings.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	r.logger = logger
}

const componentColumns = `uuid, id, kind, groups, description, address,
	hardware_address, app_name, definition_id, permissions,
	maintenance_status, maintenance_notes, last_contact, created_at, updated_at`

// List retrieves all persisted components, skipping rows that fail to
// scan or decode. A single corrupt record must never prevent the rest of
// the fleet from loading.
func (r *SQLiteRepository) List(ctx context.Context) ([]Component, error) {
	query := `SELECT ` + componentColumns + ` FROM components ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying components: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var comps []Component
	for rows.Next() {
		c, scanErr := scanComponent(rows)
		if scanErr != nil {
			r.logger.Warn("skipping malformed component record", "error", scanErr)
			continue
		}
		comps = append(comps, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating components: %w", err)
	}
	return comps, nil
}

// GetByUUID retrieves one component record.
func (r *SQLiteRepository) GetByUUID(ctx context.Context, uuid string) (*Component, error) {
	query := `SELECT ` + componentColumns + ` FROM components WHERE uuid = ?`

	c, err := scanComponent(r.db.QueryRowContext(ctx, query, uuid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying component by uuid: %w", err)
	}
	return c, nil
}

// Create inserts a new component record.
func (r *SQLiteRepository) Create(ctx context.Context, c *Component) error {
	groupsJSON, permsJSON, err := marshalFields(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO components (
			uuid, id, kind, groups, description, address,
			hardware_address, app_name, definition_id, permissions,
			maintenance_status, maintenance_notes, last_contact, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		c.UUID, c.ID, string(c.Kind), groupsJSON, c.Description, c.Address,
		c.HardwareAddress, c.AppName, c.DefinitionID, permsJSON,
		c.MaintenanceStatus, c.MaintenanceNotes,
		nullableTime(c.LastContact), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting component: %w", err)
	}
	return nil
}

// Update rewrites the persisted fields of an existing record, keyed by
// uuid so stable-id renames work.
func (r *SQLiteRepository) Update(ctx context.Context, c *Component) error {
	groupsJSON, permsJSON, err := marshalFields(c)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE components SET
			id = ?, kind = ?, groups = ?, description = ?, address = ?,
			hardware_address = ?, app_name = ?, definition_id = ?, permissions = ?,
			maintenance_status = ?, maintenance_notes = ?, last_contact = ?, updated_at = ?
		WHERE uuid = ?`

	res, err := r.db.ExecContext(ctx, query,
		c.ID, string(c.Kind), groupsJSON, c.Description, c.Address,
		c.HardwareAddress, c.AppName, c.DefinitionID, permsJSON,
		c.MaintenanceStatus, c.MaintenanceNotes,
		nullableTime(c.LastContact), c.UpdatedAt, c.UUID,
	)
	if err != nil {
		return fmt.Errorf("updating component: %w", err)
	}
	return requireRow(res)
}

// Delete removes a component record.
func (r *SQLiteRepository) Delete(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM components WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("deleting component: %w", err)
	}
	return requireRow(res)
}

// UpdateContact persists the last contact timestamp only.
func (r *SQLiteRepository) UpdateContact(ctx context.Context, uuid string, lastContact time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE components SET last_contact = ?, updated_at = ? WHERE uuid = ?`,
		lastContact.UTC(), time.Now().UTC(), uuid,
	)
	if err != nil {
		return fmt.Errorf("updating last contact: %w", err)
	}
	return requireRow(res)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanComponent reads one row into a Component. JSON field decode errors
// are returned so List can skip the row.
func scanComponent(s scanner) (*Component, error) {
	var (
		c           Component
		kind        string
		groupsJSON  string
		permsJSON   string
		lastContact sql.NullTime
	)

	err := s.Scan(
		&c.UUID, &c.ID, &kind, &groupsJSON, &c.Description, &c.Address,
		&c.HardwareAddress, &c.AppName, &c.DefinitionID, &permsJSON,
		&c.MaintenanceStatus, &c.MaintenanceNotes,
		&lastContact, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = Kind(kind)
	if groupsJSON != "" {
		if err := json.Unmarshal([]byte(groupsJSON), &c.Groups); err != nil {
			return nil, fmt.Errorf("decoding groups for %q: %w", c.UUID, err)
		}
	}
	if permsJSON != "" {
		if err := json.Unmarshal([]byte(permsJSON), &c.Permissions); err != nil {
			return nil, fmt.Errorf("decoding permissions for %q: %w", c.UUID, err)
		}
	}
	if lastContact.Valid {
		c.LastContact = lastContact.Time
	}
	c.LatencyMS = -1
	return &c, nil
}

func marshalFields(c *Component) (groupsJSON, permsJSON string, err error) {
	g, err := json.Marshal(c.Groups)
	if err != nil {
		return "", "", fmt.Errorf("marshalling groups: %w", err)
	}
	p, err := json.Marshal(c.Permissions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling permissions: %w", err)
	}
	return string(g), string(p), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects SQLite unique constraint failures without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
