package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/planbuilder/internal/ir"
)

// createTestStore opens a fresh database in a temp dir with sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	n := 0
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}), WithActor("user-1"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPlan creates a plan holding one fragment per id, in order.
func seedPlan(t *testing.T, s *Store, planID string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateCollection(ctx, ir.Aggregate{
		ID:        planID,
		Kind:      ir.KindPlan,
		OwnerID:   "user-1",
		Title:     "Plan " + planID,
		ItemCount: len(ids),
	})
	require.NoError(t, err)
	for i, id := range ids {
		_, err := s.Create(ctx, planID, ir.Item{
			ID:       id,
			Position: i,
			Payload:  ir.IRObject{"thumbnail": ir.IRString(id + ".png")},
		})
		require.NoError(t, err)
	}
}
