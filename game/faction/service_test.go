package faction

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/fracturesim/config"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T, reply string) (*Service, *gorm.DB, *string) {
	db := testutil.SetupTestDB(t)
	var prompt string
	opts := []oracle.Option{}
	if reply != "" {
		opts = append(opts,
			oracle.WithProvider("fake", oracle.ProviderFunc(func(_ context.Context, req oracle.Request) (string, error) {
				prompt = req.System
				return reply, nil
			})),
			oracle.WithDefault("fake"))
	}
	o := oracle.New(config.OracleConfig{Timeout: time.Second}, zap.NewNop(), opts...)
	svc := NewService(db, o, zap.NewNop())
	svc.SetRand(func(n int) int { return n - 1 })
	return svc, db, &prompt
}

func setResources(t *testing.T, db *gorm.DB, id int64, n int) {
	require.NoError(t, db.Model(&model.Faction{}).Where("id = ?", id).Update("resources", n).Error)
}

func TestCreate(t *testing.T) {
	svc, _, _ := newService(t, "")
	ctx := context.Background()

	f, err := svc.Create(ctx, "Rust Saints", "Scrap-worshipping mechanics of the old depot.")
	require.NoError(t, err)
	assert.Equal(t, 0, f.Resources)

	_, err = svc.Create(ctx, "Rust Saints", "A second group with the very same name.")
	assert.ErrorIs(t, err, gameerr.ErrConflict)
	_, err = svc.Create(ctx, "RS", "Name is far too short here.")
	assert.ErrorIs(t, err, gameerr.ErrValidation)
	_, err = svc.Create(ctx, "Ash Walkers", "short")
	assert.ErrorIs(t, err, gameerr.ErrValidation)
}

func TestList_CountsMembers(t *testing.T) {
	svc, db, _ := newService(t, "")
	ctx := context.Background()
	f, err := svc.Create(ctx, "Rust Saints", "Scrap-worshipping mechanics of the old depot.")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Ash Walkers", "Nomads crossing the burnt plains at night.")
	require.NoError(t, err)

	for _, name := range []string{"Mara", "Jonas"} {
		a := testutil.CreateActor(t, db, name)
		require.NoError(t, db.Model(a).Update("faction_id", f.ID).Error)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rust Saints", list[0].Name)
	assert.EqualValues(t, 2, list[0].Members)
	assert.EqualValues(t, 0, list[1].Members)
}

func TestEvaluateTurn_FallbackMaintains(t *testing.T) {
	svc, db, _ := newService(t, "")
	ctx := context.Background()
	f, err := svc.Create(ctx, "Rust Saints", "Scrap-worshipping mechanics of the old depot.")
	require.NoError(t, err)
	setResources(t, db, f.ID, 3)

	res, err := svc.EvaluateTurn(ctx, f.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, oracle.MoveMaintain, res.Action)
	assert.Equal(t, -5, res.Delta)
	assert.Equal(t, 0, res.Resources, "resources floor at zero")
	assert.Equal(t, "Routine maintenance.", res.Reasoning)
}

func TestEvaluateTurn_Moves(t *testing.T) {
	cases := []struct {
		action string
		delta  int
	}{
		{oracle.MoveExpand, -20},
		{oracle.MoveFortify, -10},
		{oracle.MoveRecruit, -15},
		{oracle.MoveScavenge, 29},
	}
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			svc, db, _ := newService(t, `{"action":"`+tc.action+`","reasoning":"because","newGoal":""}`)
			ctx := context.Background()
			f, err := svc.Create(ctx, "Rust Saints", "Scrap-worshipping mechanics of the old depot.")
			require.NoError(t, err)
			setResources(t, db, f.ID, 50)

			res, err := svc.EvaluateTurn(ctx, f.ID, "")
			require.NoError(t, err)
			assert.False(t, res.Fallback)
			assert.Equal(t, tc.action, res.Action)
			assert.Equal(t, tc.delta, res.Delta)
			assert.Equal(t, 50+tc.delta, res.Resources)

			got, err := svc.Get(ctx, f.ID)
			require.NoError(t, err)
			assert.Equal(t, 50+tc.delta, got.Resources)
		})
	}
}

func TestEvaluateTurn_UpdatesGoalAndSeesWorld(t *testing.T) {
	svc, db, prompt := newService(t, `{"action":"FORTIFY","reasoning":"Storm coming.","newGoal":"Hold the depot"}`)
	ctx := context.Background()
	f, err := svc.Create(ctx, "Rust Saints", "Scrap-worshipping mechanics of the old depot.")
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.WorldEvent{Title: "Acid Rain", Type: model.EventWeather, Active: true}).Error)

	res, err := svc.EvaluateTurn(ctx, f.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Hold the depot", res.NewGoal)
	assert.Contains(t, *prompt, "Acid Rain")

	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hold the depot", got.Goals)
}

func TestEvaluateTurn_NotFound(t *testing.T) {
	svc, _, _ := newService(t, "")
	_, err := svc.EvaluateTurn(context.Background(), 42, "")
	assert.ErrorIs(t, err, gameerr.ErrFactionNotFound)
}
