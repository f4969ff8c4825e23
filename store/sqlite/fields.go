package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homecare/settlement-engine/fields"
)

// =============================================================================
// FIELD DEFINITIONS
// =============================================================================

// SaveField inserts or replaces a definition. (target_model, name) is unique.
func (s *Store) SaveField(ctx context.Context, d fields.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	options, err := json.Marshal(d.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO field_definitions (id, target_model, name, label, field_type,
			options_json, required, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_model = excluded.target_model,
			name = excluded.name,
			label = excluded.label,
			field_type = excluded.field_type,
			options_json = excluded.options_json,
			required = excluded.required,
			sort_order = excluded.sort_order
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, string(d.TargetModel), d.Name, d.Label, string(d.Type),
		string(options), d.Required, d.Order, formatTime(d.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fields.ErrDuplicateField
	}
	if err != nil {
		return fmt.Errorf("failed to save field %s: %w", d.Name, err)
	}
	return nil
}

// ListFields returns definitions for a target model (all when empty).
func (s *Store) ListFields(ctx context.Context, target fields.TargetModel) ([]fields.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, target_model, name, label, field_type, options_json, required, sort_order, created_at
		FROM field_definitions`
	var args []any
	if target != "" {
		query += ` WHERE target_model = ?`
		args = append(args, string(target))
	}
	query += ` ORDER BY sort_order, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	var defs []fields.Definition
	for rows.Next() {
		var d fields.Definition
		var model, fieldType, createdAt string
		var options sql.NullString
		if err := rows.Scan(&d.ID, &model, &d.Name, &d.Label, &fieldType,
			&options, &d.Required, &d.Order, &createdAt); err != nil {
			return nil, err
		}
		d.TargetModel = fields.TargetModel(model)
		d.Type = fields.FieldType(fieldType)
		d.CreatedAt = parseTime(createdAt)
		if options.Valid && options.String != "" && options.String != "null" {
			if err := json.Unmarshal([]byte(options.String), &d.Options); err != nil {
				return nil, fmt.Errorf("failed to decode options of %s: %w", d.Name, err)
			}
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// DeleteField removes a definition.
func (s *Store) DeleteField(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM field_definitions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete field %s: %w", id, err)
	}
	return nil
}
