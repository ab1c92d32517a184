// Package storage persists the associative memory in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/learning"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/001_learning.sql
var learningSchema string

var (
	// ErrNoState means the database holds no saved memory yet.
	ErrNoState = learning.ErrNoState
	// ErrCorrupt means saved rows could not be decoded.
	ErrCorrupt = errors.New("learning state corrupt")
)

const (
	metaVersion = "version"
	metaTurns   = "turns"
	metaSavedAt = "saved_at"
)

// Open opens a database file, creating its directory, and configures the
// connection for a single writer. driver is "sqlite" (modernc) or "sqlite3"
// (mattn); the caller imports the driver.
func Open(driver, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return db, nil
}

// SQLiteBackend implements learning.Backend.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps an open database.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// EnsureSchema creates the tables if they are missing.
func (b *SQLiteBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, learningSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

type clusterStats struct {
	MeanEnergy       float64            `json:"mean_energy"`
	MeanConfidence   float64            `json:"mean_confidence"`
	Strategies       map[string]int     `json:"strategies"`
	TemplateAffinity map[string]float64 `json:"template_affinity"`
	OpportuneCount   int                `json:"opportune_count"`
}

// SaveState replaces the saved memory in one transaction.
func (b *SQLiteBackend) SaveState(ctx context.Context, s *learning.State) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"resonance_meta", "association_matrix", "family_clusters"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := map[string]string{
		metaVersion: strconv.Itoa(s.Version),
		metaTurns:   strconv.Itoa(s.Turns),
		metaSavedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO resonance_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	matrixStmt, err := tx.PrepareContext(ctx, `INSERT INTO association_matrix (i, j, weight) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare matrix insert: %w", err)
	}
	defer matrixStmt.Close()
	for i := 0; i < atoms.NumGroups; i++ {
		for j := i + 1; j < atoms.NumGroups; j++ {
			if w := s.Matrix[i][j]; w != 0 {
				if _, err := matrixStmt.ExecContext(ctx, i, j, w); err != nil {
					return fmt.Errorf("save matrix (%d,%d): %w", i, j, err)
				}
			}
		}
	}

	for seq, c := range s.Clusters {
		stats, err := json.Marshal(clusterStats{
			MeanEnergy:       c.Stats.MeanEnergy,
			MeanConfidence:   c.Stats.MeanConfidence,
			Strategies:       c.Stats.Strategies,
			TemplateAffinity: c.Stats.TemplateAffinity,
			OpportuneCount:   c.Stats.OpportuneCount,
		})
		if err != nil {
			return fmt.Errorf("encode cluster %s stats: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO family_clusters (id, seq, centroid, member_count, stats, created_at, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, seq, Float64SliceToBytes(c.Centroid[:]), c.MemberCount, string(stats),
			c.Stats.CreatedAt.UTC().Format(time.RFC3339Nano),
			c.Stats.LastSeen.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("save cluster %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug().Int("clusters", len(s.Clusters)).Int("turns", s.Turns).Msg("learning state saved")
	return nil
}

// LoadState reads the saved memory. It returns ErrNoState when nothing was
// saved and ErrCorrupt when rows cannot be decoded.
func (b *SQLiteBackend) LoadState(ctx context.Context) (*learning.State, error) {
	meta, err := b.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	versionText, ok := meta[metaVersion]
	if !ok {
		return nil, ErrNoState
	}

	s := learning.NewState()
	if s.Version, err = strconv.Atoi(versionText); err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrCorrupt, versionText)
	}
	if s.Turns, err = strconv.Atoi(meta[metaTurns]); err != nil {
		return nil, fmt.Errorf("%w: turns %q", ErrCorrupt, meta[metaTurns])
	}

	if err := b.loadMatrix(ctx, &s.Matrix); err != nil {
		return nil, err
	}
	if s.Clusters, err = b.loadClusters(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *SQLiteBackend) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM resonance_meta`)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: meta row: %v", ErrCorrupt, err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func (b *SQLiteBackend) loadMatrix(ctx context.Context, m *learning.Matrix) error {
	rows, err := b.db.QueryContext(ctx, `SELECT i, j, weight FROM association_matrix`)
	if err != nil {
		return fmt.Errorf("query matrix: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var i, j int
		var w float64
		if err := rows.Scan(&i, &j, &w); err != nil {
			return fmt.Errorf("%w: matrix row: %v", ErrCorrupt, err)
		}
		if i < 0 || j < 0 || i >= atoms.NumGroups || j >= atoms.NumGroups || i == j {
			return fmt.Errorf("%w: matrix cell (%d,%d)", ErrCorrupt, i, j)
		}
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: matrix weight %v at (%d,%d)", ErrCorrupt, w, i, j)
		}
		m[i][j] = w
		m[j][i] = w
	}
	return rows.Err()
}

func (b *SQLiteBackend) loadClusters(ctx context.Context) ([]learning.FamilyCluster, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, centroid, member_count, stats, created_at, last_seen
		FROM family_clusters ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	defer rows.Close()

	var out []learning.FamilyCluster
	for rows.Next() {
		var (
			c                   learning.FamilyCluster
			blob                []byte
			statsText           string
			createdAt, lastSeen string
		)
		if err := rows.Scan(&c.ID, &blob, &c.MemberCount, &statsText, &createdAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("%w: cluster row: %v", ErrCorrupt, err)
		}

		vec := BytesToFloat64Slice(blob)
		if len(vec) != atoms.PrimaryDims {
			return nil, fmt.Errorf("%w: cluster %s centroid has %d dims", ErrCorrupt, c.ID, len(vec))
		}
		copy(c.Centroid[:], vec)

		var stats clusterStats
		if err := json.Unmarshal([]byte(statsText), &stats); err != nil {
			return nil, fmt.Errorf("%w: cluster %s stats: %v", ErrCorrupt, c.ID, err)
		}
		c.Stats = learning.ClusterStats{
			MeanEnergy:       stats.MeanEnergy,
			MeanConfidence:   stats.MeanConfidence,
			Strategies:       stats.Strategies,
			TemplateAffinity: stats.TemplateAffinity,
			OpportuneCount:   stats.OpportuneCount,
		}
		if c.Stats.Strategies == nil {
			c.Stats.Strategies = map[string]int{}
		}
		if c.Stats.TemplateAffinity == nil {
			c.Stats.TemplateAffinity = map[string]float64{}
		}
		if c.Stats.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("%w: cluster %s created_at: %v", ErrCorrupt, c.ID, err)
		}
		if c.Stats.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("%w: cluster %s last_seen: %v", ErrCorrupt, c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Float64SliceToBytes encodes a vector for BLOB storage.
func Float64SliceToBytes(slice []float64) []byte {
	if slice == nil {
		return nil
	}
	buf := make([]byte, len(slice)*8)
	for i, v := range slice {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// BytesToFloat64Slice decodes a BLOB vector. Malformed input yields nil.
func BytesToFloat64Slice(data []byte) []float64 {
	if len(data) == 0 || len(data)%8 != 0 {
		return nil
	}
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out
}
