package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/remote"
)

// CreateCollection inserts a new plan or queue. An empty ID gets a ULID.
func (s *Store) CreateCollection(ctx context.Context, agg ir.Aggregate) (ir.Aggregate, error) {
	if !agg.Kind.Valid() {
		return ir.Aggregate{}, remote.NewError(remote.CodeInvalid, remote.OpCreate, agg.ID, fmt.Errorf("unknown kind %q", agg.Kind))
	}
	if agg.ID == "" {
		agg.ID = s.newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, kind, owner_id, title, item_count, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, agg.ID, string(agg.Kind), agg.OwnerID, agg.Title, agg.ItemCount, nullString(agg.Thumbnail))
	if err != nil {
		return ir.Aggregate{}, classify(remote.OpCreate, agg.ID, err)
	}
	return agg, nil
}

// Create inserts a fragment under parentID. An empty item ID gets a ULID.
func (s *Store) Create(ctx context.Context, parentID string, item ir.Item) (ir.Item, error) {
	if item.ID == "" {
		item.ID = s.newID()
	}
	if item.Position < 0 {
		return ir.Item{}, remote.NewError(remote.CodeInvalid, remote.OpCreate, item.ID, errors.New("negative position"))
	}
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return ir.Item{}, remote.NewError(remote.CodeInvalid, remote.OpCreate, item.ID, err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE id = ?`, parentID).Scan(&exists)
	if err != nil {
		return ir.Item{}, classify(remote.OpCreate, parentID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fragments (id, collection_id, position, payload, created_by)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, parentID, item.Position, payload, s.actor)
	if err != nil {
		return ir.Item{}, classify(remote.OpCreate, item.ID, err)
	}

	out := item.Clone()
	if out.Payload == nil {
		out.Payload = ir.IRObject{}
	}
	return out, nil
}

// Update applies changes to a fragment or, failing that, a collection.
func (s *Store) Update(ctx context.Context, id string, changes ir.IRObject) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(remote.OpUpdate, id, err)
	}
	defer tx.Rollback()

	err = updateFragment(ctx, tx, remote.OpUpdate, id, changes)
	if remote.IsNotFound(err) {
		err = updateCollection(ctx, tx, id, changes)
	}
	if err != nil {
		return err
	}
	return classify(remote.OpUpdate, id, tx.Commit())
}

// Delete removes a fragment.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE id = ?`, id)
	if err != nil {
		return classify(remote.OpDelete, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(remote.OpDelete, id, err)
	}
	if n == 0 {
		return remote.NewError(remote.CodeNotFound, remote.OpDelete, id, nil)
	}
	return nil
}

// BatchWrite applies every update in one transaction and appends a row to
// the batch log. Any failure rolls the whole batch back.
func (s *Store) BatchWrite(ctx context.Context, updates []ir.PendingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(remote.OpBatchWrite, "", err)
	}
	defer tx.Rollback()

	var collectionID string
	err = tx.QueryRowContext(ctx, `SELECT collection_id FROM fragments WHERE id = ?`, updates[0].ItemID).Scan(&collectionID)
	if err != nil {
		return classify(remote.OpBatchWrite, updates[0].ItemID, err)
	}

	for _, u := range updates {
		if err := updateFragment(ctx, tx, remote.OpBatchWrite, u.ItemID, u.Changes); err != nil {
			return err
		}
	}

	key, err := ir.BatchKey(collectionID, updates)
	if err != nil {
		return remote.NewError(remote.CodeInvalid, remote.OpBatchWrite, "", err)
	}
	encoded, err := marshalUpdates(updates)
	if err != nil {
		return remote.NewError(remote.CodeInvalid, remote.OpBatchWrite, "", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_log (batch_key, collection_id, updates)
		VALUES (?, ?, ?)
	`, key, collectionID, encoded)
	if err != nil {
		return classify(remote.OpBatchWrite, "", err)
	}

	return classify(remote.OpBatchWrite, "", tx.Commit())
}

func updateFragment(ctx context.Context, tx *sql.Tx, op remote.Op, id string, changes ir.IRObject) error {
	var (
		position int
		payload  string
	)
	err := tx.QueryRowContext(ctx, `SELECT position, payload FROM fragments WHERE id = ?`, id).Scan(&position, &payload)
	if err != nil {
		return classify(op, id, err)
	}
	obj, err := unmarshalPayload(payload)
	if err != nil {
		return remote.NewError(remote.CodeUnavailable, op, id, err)
	}

	next, err := remote.ApplyItemChanges(op, ir.Item{ID: id, Position: position, Payload: obj}, changes)
	if err != nil {
		return err
	}
	encoded, err := marshalPayload(next.Payload)
	if err != nil {
		return remote.NewError(remote.CodeInvalid, op, id, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE fragments SET position = ?, payload = ? WHERE id = ?`, next.Position, encoded, id)
	return classify(op, id, err)
}

func updateCollection(ctx context.Context, tx *sql.Tx, id string, changes ir.IRObject) error {
	agg, err := scanAggregate(tx.QueryRowContext(ctx, selectCollection+` WHERE id = ?`, id))
	if err != nil {
		return classify(remote.OpUpdate, id, err)
	}
	if err := remote.ValidateAggregateChanges(id, changes); err != nil {
		return err
	}
	agg = agg.Apply(changes)

	_, err = tx.ExecContext(ctx, `
		UPDATE collections SET title = ?, item_count = ?, thumbnail = ? WHERE id = ?
	`, agg.Title, agg.ItemCount, nullString(agg.Thumbnail), id)
	return classify(remote.OpUpdate, id, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
