package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackend(t *testing.T) (*SQLiteBackend, *sql.DB) {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := NewSQLiteBackend(db)
	require.NoError(t, b.EnsureSchema(context.Background()))
	return b, db
}

func sampleState() *learning.State {
	s := learning.NewState()
	s.Turns = 12
	s.Matrix[atoms.GroupAffect][atoms.GroupSomatic] = 0.25
	s.Matrix[atoms.GroupSomatic][atoms.GroupAffect] = 0.25
	s.Matrix[atoms.GroupThreat][atoms.GroupRegulation] = 0.5
	s.Matrix[atoms.GroupRegulation][atoms.GroupThreat] = 0.5

	var centroid learning.Centroid
	centroid[0] = 0.7
	centroid[76] = 0.1
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Clusters = []learning.FamilyCluster{
		{
			ID:          "b-second-by-id",
			Centroid:    centroid,
			MemberCount: 3,
			Stats: learning.ClusterStats{
				MeanEnergy:       0.31,
				MeanConfidence:   0.5,
				Strategies:       map[string]int{"direct": 2, "fallback": 1},
				TemplateAffinity: map[string]float64{"grief.reflect": 0.12},
				OpportuneCount:   1,
				CreatedAt:        created,
				LastSeen:         created.Add(time.Hour),
			},
		},
		{
			ID:          "a-first-by-id",
			MemberCount: 1,
			Stats: learning.ClusterStats{
				Strategies:       map[string]int{},
				TemplateAffinity: map[string]float64{},
				CreatedAt:        created,
				LastSeen:         created,
			},
		},
	}
	return s
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := testBackend(t)

	_, err := b.LoadState(ctx)
	require.ErrorIs(t, err, ErrNoState)

	want := sampleState()
	require.NoError(t, b.SaveState(ctx, want))

	got, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.Matrix.Valid())

	// a second save replaces everything
	want.Clusters = want.Clusters[:1]
	want.Turns = 13
	require.NoError(t, b.SaveState(ctx, want))
	got, err = b.LoadState(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Clusters, 1)
	assert.Equal(t, 13, got.Turns)
}

func TestSQLiteBackend_Corrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mangle string
	}{
		{"centroid", `UPDATE family_clusters SET centroid = x'0102'`},
		{"stats", `UPDATE family_clusters SET stats = '{not json'`},
		{"timestamp", `UPDATE family_clusters SET created_at = 'yesterday'`},
		{"matrix weight", `UPDATE association_matrix SET weight = 3`},
		{"matrix cell", `INSERT INTO association_matrix (i, j, weight) VALUES (4, 40, 0.1)`},
		{"turns", `UPDATE resonance_meta SET value = 'many' WHERE key = 'turns'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, db := testBackend(t)
			require.NoError(t, b.SaveState(ctx, sampleState()))
			_, err := db.Exec(tt.mangle)
			require.NoError(t, err)

			_, err = b.LoadState(ctx)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestSQLiteBackend_WithStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "resonance.db")

	db, err := Open("sqlite3", path)
	require.NoError(t, err)
	b := NewSQLiteBackend(db)
	require.NoError(t, b.EnsureSchema(ctx))

	store := learning.NewStore(b)
	require.NoError(t, store.Load(ctx))
	store.Commit(func(s *learning.State) { s.Turns = 3 })
	require.NoError(t, store.Persist(ctx))
	require.NoError(t, db.Close())

	db, err = Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	reopened := learning.NewStore(NewSQLiteBackend(db))
	require.NoError(t, reopened.Load(ctx))
	assert.Equal(t, 3, reopened.Snapshot().Turns)
}

func TestSQLiteBackend_CorruptStateReinitializesStore(t *testing.T) {
	ctx := context.Background()
	b, db := testBackend(t)
	require.NoError(t, b.SaveState(ctx, sampleState()))
	_, err := db.Exec(`UPDATE family_clusters SET stats = 'x'`)
	require.NoError(t, err)

	store := learning.NewStore(b)
	require.NoError(t, store.Load(ctx))
	assert.Empty(t, store.Snapshot().Clusters)
	assert.Equal(t, 0, store.Snapshot().Turns)
}

func TestFloat64Blob(t *testing.T) {
	in := []float64{0, 1.5, -2, 0.125}
	assert.Equal(t, in, BytesToFloat64Slice(Float64SliceToBytes(in)))
	assert.Nil(t, BytesToFloat64Slice([]byte{1, 2, 3}))
	assert.Nil(t, Float64SliceToBytes(nil))
}
