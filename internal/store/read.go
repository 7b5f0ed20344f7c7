package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const selectColumns = `
	SELECT id, entity_type, lookup_type, name, description, definition, state, count, transient, seq
	FROM entity_sets
`

// GetEntitySet returns the set with the given id.
// Returns sql.ErrNoRows (wrapped) if it does not exist.
func (s *Store) GetEntitySet(ctx context.Context, id string) (EntitySet, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+`WHERE id = ?`, id)
	set, err := scanEntitySet(row)
	if err != nil {
		return EntitySet{}, fmt.Errorf("get entity set %s: %w", id, err)
	}
	return set, nil
}

// ListEntitySets returns every set, or only those of entityType when it is
// non-empty. Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ListEntitySets(ctx context.Context, entityType string) ([]EntitySet, error) {
	query := selectColumns + `ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{}
	if entityType != "" {
		query = selectColumns + `WHERE entity_type = ? ORDER BY seq ASC, id COLLATE BINARY ASC`
		args = append(args, entityType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entity sets: %w", err)
	}
	defer rows.Close()

	sets := []EntitySet{}
	for rows.Next() {
		set, err := scanEntitySet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity sets: %w", err)
	}

	return sets, nil
}

// GetLastSeq returns the highest seq number used in the store.
// Used to resume the logical clock from the correct position.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM entity_sets
	`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq from entity_sets: %w", err)
	}
	return maxSeq, nil
}

// IsNotFound reports whether err means the requested set does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntitySet(row scanner) (EntitySet, error) {
	var (
		set       EntitySet
		defJSON   string
		state     string
		transient int
	)
	err := row.Scan(
		&set.ID,
		&set.EntityType,
		&set.LookupType,
		&set.Name,
		&set.Description,
		&defJSON,
		&state,
		&set.Count,
		&transient,
		&set.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EntitySet{}, err
		}
		return EntitySet{}, fmt.Errorf("scan entity set: %w", err)
	}
	set.Definition = unmarshalDefinition(defJSON)
	set.State = State(state)
	set.Transient = transient != 0
	return set, nil
}
