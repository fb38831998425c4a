package trust

import (
	"context"
	"testing"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMemory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nop())
	a := testutil.CreateActor(t, db, "A")
	ctx := context.Background()

	ev, err := svc.RecordMemory(ctx, Memory{
		ActorID: a.ID, Raw: "Found water", Summary: "water", Importance: 4,
		Tags: []string{"survival", " ", "water"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"survival", "water"}, ev.TagList())

	for _, imp := range []int{0, 11, -3} {
		_, err = svc.RecordMemory(ctx, Memory{ActorID: a.ID, Raw: "x", Importance: imp})
		assert.ErrorIs(t, err, gameerr.ErrValidation, "importance %d", imp)
	}

	_, err = svc.RecordMemory(ctx, Memory{ActorID: 9999, Raw: "x", Importance: 1})
	assert.ErrorIs(t, err, gameerr.ErrActorNotFound)
}

func TestMemoriesOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nop())
	a := testutil.CreateActor(t, db, "A")
	ctx := context.Background()

	for i, imp := range []int{2, 9, 5, 8} {
		_, err := svc.RecordMemory(ctx, Memory{ActorID: a.ID, Raw: string(rune('a' + i)), Importance: imp})
		require.NoError(t, err)
	}

	recent, err := svc.Memories(ctx, a.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].RawContent)
	assert.Equal(t, "c", recent[1].RawContent)

	important, err := svc.ImportantMemories(ctx, a.ID, 5, 10)
	require.NoError(t, err)
	require.Len(t, important, 3)
	assert.Equal(t, 9, important[0].Importance)
	assert.Equal(t, 8, important[1].Importance)
	assert.Equal(t, 5, important[2].Importance)

	n, err := svc.WipeMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
