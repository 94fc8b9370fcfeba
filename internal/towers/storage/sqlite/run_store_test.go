package sqlite

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline-data/corridor.report/internal/towers"
)

func TestRunStore_CreateAndGet(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	id, err := store.CreateRun("scans/corridor-7.pcd", `{"eps":8}`)
	require.NoError(t, err)
	require.Len(t, id, 36, "run id should be a uuid")

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "scans/corridor-7.pcd", run.SourcePath)
	assert.Equal(t, `{"eps":8}`, run.ParamsJSON)
	assert.NotEmpty(t, run.StartedAt)
	assert.Empty(t, run.FinishedAt)
	assert.Zero(t, run.TowerCount)
}

func TestRunStore_CompleteRun(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	id, err := store.CreateRun("scans/corridor-7.pcd", "{}")
	require.NoError(t, err)

	result := &towers.Result{
		Towers: []towers.TowerRecord{
			{
				ID:  "3f1d2c4e-0000-4000-8000-000000000001",
				Seq: 1, Label: 0,
				Box:     towers.OBB{Center: r3.Vector{X: 10, Y: 20, Z: 14}},
				HeightM: 21.5, WidthM: 9.5, Aspect: 21.5 / 9.5,
				NorthAngleDeg: 45.5, PointCount: 1234, CloudPath: "towers/1.pcd",
			},
			{
				ID:  "3f1d2c4e-0000-4000-8000-000000000002",
				Seq: 2, Label: 3,
				Box:     towers.OBB{Center: r3.Vector{X: 110, Y: 22, Z: 15}},
				HeightM: 24, WidthM: 11, Aspect: 24.0 / 11,
				NorthAngleDeg: 132, PointCount: 987,
			},
		},
		Faults: []towers.Fault{
			{Stage: towers.FaultClustering, Ref: 2, Err: "clustering panic: boom"},
		},
		Stats: towers.RunStats{
			PointsIn: 250000, PointsDownsampled: 250000, PointsFiltered: 81000,
			Chunks: 2, Clusters: 5, Candidates: 3,
			Duplicates: 1, Replacements: 0,
			BaseHeight: 12.5, UsedOffset: 3.0, FellBack: false,
		},
	}
	require.NoError(t, store.CompleteRun(id, result))

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.NotEmpty(t, run.FinishedAt)
	assert.Equal(t, 250000, run.PointsIn)
	assert.Equal(t, 81000, run.PointsFiltered)
	assert.Equal(t, 2, run.Chunks)
	assert.Equal(t, 5, run.Clusters)
	assert.Equal(t, 3, run.Candidates)
	assert.Equal(t, 1, run.Duplicates)
	assert.Equal(t, 2, run.TowerCount)
	assert.Equal(t, 1, run.FaultCount)
	assert.Equal(t, 12.5, run.BaseHeight)
	assert.False(t, run.FellBack)

	got, err := store.TowersForRun(id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, 2, got[1].Seq)
	assert.Equal(t, result.Towers[0].ID, got[0].ID)
	assert.Equal(t, 10.0, got[0].Box.Center.X)
	assert.Equal(t, 21.5, got[0].HeightM)
	assert.Equal(t, 45.5, got[0].NorthAngleDeg)
	assert.Equal(t, "towers/1.pcd", got[0].CloudPath)
	assert.Empty(t, got[1].CloudPath)

	faults, err := store.FaultsForRun(id)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, towers.FaultClustering, faults[0].Stage)
	assert.Equal(t, 2, faults[0].Ref)
}

func TestRunStore_FailRun(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	id, err := store.CreateRun("scans/empty.pcd", "{}")
	require.NoError(t, err)
	require.NoError(t, store.FailRun(id, "point cloud is empty"))

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.NotEmpty(t, run.FinishedAt)
	assert.Equal(t, 1, run.FaultCount)

	faults, err := store.FaultsForRun(id)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, "fatal", faults[0].Stage)
	assert.Equal(t, "point cloud is empty", faults[0].Err)
}

func TestRunStore_TowersForRunEmpty(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	id, err := store.CreateRun("scans/none.pcd", "{}")
	require.NoError(t, err)

	got, err := store.TowersForRun(id)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunStore_InsertTowersRequiresRun(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	err := store.InsertTowers("no-such-run", []towers.TowerRecord{
		{ID: "3f1d2c4e-0000-4000-8000-00000000000a", Seq: 1},
	})
	assert.Error(t, err, "foreign keys should reject towers without a run")
}

func TestRunStore_GetRunMissing(t *testing.T) {
	store := NewRunStore(setupExtractionTestDB(t))

	_, err := store.GetRun("no-such-run")
	assert.Error(t, err)
}
