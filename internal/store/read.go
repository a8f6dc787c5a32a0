package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/remote"
)

const selectCollection = `SELECT id, kind, owner_id, title, item_count, thumbnail FROM collections`

// BatchRecord is one row of the batch log.
type BatchRecord struct {
	Seq          int64  `json:"seq"`
	BatchKey     string `json:"batch_key"`
	CollectionID string `json:"collection_id"`
	Updates      string `json:"updates"`
}

// LoadCollection returns the aggregate and its fragments ordered by
// position ASC, id ASC COLLATE BINARY.
func (s *Store) LoadCollection(ctx context.Context, parentID string) (ir.Aggregate, ir.Snapshot, error) {
	agg, err := scanAggregate(s.db.QueryRowContext(ctx, selectCollection+` WHERE id = ?`, parentID))
	if err != nil {
		return ir.Aggregate{}, nil, classify(remote.OpLoad, parentID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, payload
		FROM fragments
		WHERE collection_id = ?
		ORDER BY position ASC, id COLLATE BINARY ASC
	`, parentID)
	if err != nil {
		return ir.Aggregate{}, nil, classify(remote.OpLoad, parentID, err)
	}
	defer rows.Close()

	items := ir.Snapshot{}
	for rows.Next() {
		var (
			it      ir.Item
			payload string
		)
		if err := rows.Scan(&it.ID, &it.Position, &payload); err != nil {
			return ir.Aggregate{}, nil, classify(remote.OpLoad, parentID, err)
		}
		it.Payload, err = unmarshalPayload(payload)
		if err != nil {
			return ir.Aggregate{}, nil, remote.NewError(remote.CodeUnavailable, remote.OpLoad, it.ID, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return ir.Aggregate{}, nil, classify(remote.OpLoad, parentID, fmt.Errorf("iterate fragments: %w", err))
	}

	return agg, items, nil
}

// ListCollections returns every collection ordered by id. ULIDs sort by
// creation time.
func (s *Store) ListCollections(ctx context.Context) ([]ir.Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, selectCollection+` ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, classify(remote.OpLoad, "", err)
	}
	defer rows.Close()

	out := []ir.Aggregate{}
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, classify(remote.OpLoad, "", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(remote.OpLoad, "", err)
	}
	return out, nil
}

// BatchLog returns the batch writes applied to a collection, oldest first.
func (s *Store) BatchLog(ctx context.Context, collectionID string) ([]BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, batch_key, collection_id, updates
		FROM batch_log
		WHERE collection_id = ?
		ORDER BY seq ASC
	`, collectionID)
	if err != nil {
		return nil, classify(remote.OpLoad, collectionID, err)
	}
	defer rows.Close()

	out := []BatchRecord{}
	for rows.Next() {
		var r BatchRecord
		if err := rows.Scan(&r.Seq, &r.BatchKey, &r.CollectionID, &r.Updates); err != nil {
			return nil, classify(remote.OpLoad, collectionID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(remote.OpLoad, collectionID, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (ir.Aggregate, error) {
	var (
		agg       ir.Aggregate
		kind      string
		thumbnail sql.NullString
	)
	if err := row.Scan(&agg.ID, &kind, &agg.OwnerID, &agg.Title, &agg.ItemCount, &thumbnail); err != nil {
		return ir.Aggregate{}, err
	}
	agg.Kind = ir.CollectionKind(kind)
	if thumbnail.Valid {
		agg.Thumbnail = ir.StringPtr(thumbnail.String)
	}
	return agg, nil
}
