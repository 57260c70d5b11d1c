package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

func newTestStore(t *testing.T) *TurnStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndLoadLatestSnapshot(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	tn := turns.NewTurnBuilder().
		WithMetadata(turns.MetaKeySessionID, "s-1").
		WithUserPrompt("hello").
		Build()
	require.NoError(t, s.SaveTurn(ctx, tn, "pre_inference"))

	turns.AppendBlock(tn, turns.NewAssistantTextBlock("hi there"))
	require.NoError(t, s.SaveTurn(ctx, tn, "post_inference"))

	loaded, err := s.LoadTurn(ctx, tn.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, tn.ID, loaded.ID)
	require.Len(t, loaded.Blocks, 2)
	require.Equal(t, "hi there", turns.LastAssistantText(loaded))
}

func TestStore_LoadMissingTurnIsNil(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	loaded, err := s.LoadTurn(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_ListTurns(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first := turns.NewTurnBuilder().WithUserPrompt("one").Build()
	second := turns.NewTurnBuilder().
		WithMetadata(turns.MetaKeySessionID, "s-2").
		WithUserPrompt("two").
		Build()

	require.NoError(t, s.SaveTurn(ctx, first, "pre_inference"))
	require.NoError(t, s.SaveTurn(ctx, second, "pre_inference"))
	require.NoError(t, s.SaveTurn(ctx, second, "post_inference"))

	infos, err := s.ListTurns(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// most recently updated first
	require.Equal(t, second.ID, infos[0].TurnID)
	require.Equal(t, "s-2", infos[0].SessionID)
	require.Equal(t, 2, infos[0].Snapshots)
	require.Equal(t, first.ID, infos[1].TurnID)
}

func TestStore_SnapshotHookSwallowsNilTurn(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	hook := s.SnapshotHook()
	hook(context.Background(), nil, "pre_inference")

	infos, err := s.ListTurns(context.Background())
	require.NoError(t, err)
	require.Empty(t, infos)
}
