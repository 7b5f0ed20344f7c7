package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteEntitySet inserts an entity set record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., an unknown state) still return errors.
func (s *Store) WriteEntitySet(ctx context.Context, set EntitySet) error {
	if !set.State.Valid() {
		return fmt.Errorf("write entity set: invalid state %q", set.State)
	}
	defJSON, err := marshalDefinition(set.Definition)
	if err != nil {
		return fmt.Errorf("write entity set: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_sets
		(id, entity_type, lookup_type, name, description, definition, state, count, transient, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		set.ID,
		set.EntityType,
		set.LookupType,
		set.Name,
		set.Description,
		defJSON,
		string(set.State),
		set.Count,
		boolToInt(set.Transient),
		set.Seq,
	)
	if err != nil {
		return fmt.Errorf("write entity set: %w", err)
	}

	return nil
}

// UpdateState records the outcome of a materialization.
// Returns sql.ErrNoRows if no set has the id.
func (s *Store) UpdateState(ctx context.Context, id string, state State, count int64) error {
	if !state.Valid() {
		return fmt.Errorf("update entity set state: invalid state %q", state)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE entity_sets SET state = ?, count = ? WHERE id = ?
	`, string(state), count, id)
	if err != nil {
		return fmt.Errorf("update entity set state: %w", err)
	}
	return requireOneRow(res, "update entity set state")
}

// SetTransient updates the transient flag.
// Returns sql.ErrNoRows if no set has the id.
func (s *Store) SetTransient(ctx context.Context, id string, transient bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entity_sets SET transient = ? WHERE id = ?
	`, boolToInt(transient), id)
	if err != nil {
		return fmt.Errorf("set entity set transient: %w", err)
	}
	return requireOneRow(res, "set entity set transient")
}

// DeleteEntitySet removes a record.
// Returns sql.ErrNoRows if no set has the id.
func (s *Store) DeleteEntitySet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entity_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity set: %w", err)
	}
	return requireOneRow(res, "delete entity set")
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
