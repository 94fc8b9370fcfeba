// Package sqlite persists extraction runs, their towers, and their
// faults. Writes go through a busy-retry wrapper so concurrent runs
// against one database file do not fail on transient lock conflicts.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-data/corridor.report/internal/towers"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ExtractionRun is one recorded pipeline invocation. Timestamps are
// RFC 3339 strings in UTC; FinishedAt is empty while the run is open.
type ExtractionRun struct {
	ID                string
	StartedAt         string
	FinishedAt        string
	Status            string
	SourcePath        string
	ParamsJSON        string
	PointsIn          int
	PointsDownsampled int
	PointsFiltered    int
	Chunks            int
	Clusters          int
	Candidates        int
	Duplicates        int
	Replacements      int
	TowerCount        int
	FaultCount        int
	BaseHeight        float64
	UsedOffset        float64
	FellBack          bool
}

// RunStore manages extraction_runs rows and their dependents.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun inserts a run in the running state and returns its id.
func (s *RunStore) CreateRun(sourcePath, paramsJSON string) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO extraction_runs (id, started_at, status, source_path, params_json)
		VALUES (?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query, id, timestamp(), StatusRunning, sourcePath, paramsJSON)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert extraction run: %w", err)
	}
	return id, nil
}

// CompleteRun closes the run with its final stats, towers, and faults.
func (s *RunStore) CompleteRun(runID string, result *towers.Result) error {
	stats := result.Stats
	query := `
		UPDATE extraction_runs SET
			finished_at = ?, status = ?,
			points_in = ?, points_downsampled = ?, points_filtered = ?,
			chunks = ?, clusters = ?, candidates = ?,
			duplicates = ?, replacements = ?,
			tower_count = ?, fault_count = ?,
			base_height = ?, used_offset = ?, fell_back = ?
		WHERE id = ?
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			timestamp(), StatusCompleted,
			stats.PointsIn, stats.PointsDownsampled, stats.PointsFiltered,
			stats.Chunks, stats.Clusters, stats.Candidates,
			stats.Duplicates, stats.Replacements,
			len(result.Towers), len(result.Faults),
			stats.BaseHeight, stats.UsedOffset, stats.FellBack,
			runID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("complete extraction run: %w", err)
	}

	if err := s.InsertTowers(runID, result.Towers); err != nil {
		return err
	}
	return s.InsertFaults(runID, result.Faults)
}

// FailRun closes the run as failed and records the fatal error.
func (s *RunStore) FailRun(runID, reason string) error {
	query := `UPDATE extraction_runs SET finished_at = ?, status = ?, fault_count = fault_count + 1 WHERE id = ?`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query, timestamp(), StatusFailed, runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("fail extraction run: %w", err)
	}
	return s.InsertFaults(runID, []towers.Fault{{Stage: "fatal", Err: reason}})
}

// GetRun loads one run by id.
func (s *RunStore) GetRun(runID string) (*ExtractionRun, error) {
	query := `
		SELECT id, started_at, COALESCE(finished_at, ''), status, source_path, params_json,
			points_in, points_downsampled, points_filtered,
			chunks, clusters, candidates, duplicates, replacements,
			tower_count, fault_count, base_height, used_offset, fell_back
		FROM extraction_runs WHERE id = ?
	`
	var run ExtractionRun
	err := s.db.QueryRow(query, runID).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.SourcePath, &run.ParamsJSON,
		&run.PointsIn, &run.PointsDownsampled, &run.PointsFiltered,
		&run.Chunks, &run.Clusters, &run.Candidates, &run.Duplicates, &run.Replacements,
		&run.TowerCount, &run.FaultCount, &run.BaseHeight, &run.UsedOffset, &run.FellBack,
	)
	if err != nil {
		return nil, fmt.Errorf("get extraction run: %w", err)
	}
	return &run, nil
}

// InsertTowers stores the run's tower records in one transaction.
func (s *RunStore) InsertTowers(runID string, records []towers.TowerRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO towers (
			id, run_id, seq, label,
			center_x, center_y, center_z,
			height_m, width_m, aspect, north_angle_deg,
			point_count, cloud_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, rec := range records {
			c := rec.Box.Center
			_, err := tx.Exec(query,
				rec.ID, runID, rec.Seq, rec.Label,
				c.X, c.Y, c.Z,
				rec.HeightM, rec.WidthM, rec.Aspect, rec.NorthAngleDeg,
				rec.PointCount, rec.CloudPath,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("insert towers: %w", err)
	}
	return nil
}

// TowersForRun loads the run's towers in sequence order. Only the box
// center survives storage; rotation and extents are not persisted.
func (s *RunStore) TowersForRun(runID string) ([]towers.TowerRecord, error) {
	query := `
		SELECT id, seq, label, center_x, center_y, center_z,
			height_m, width_m, aspect, north_angle_deg, point_count, cloud_path
		FROM towers WHERE run_id = ? ORDER BY seq
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("query towers: %w", err)
	}
	defer rows.Close()

	var records []towers.TowerRecord
	for rows.Next() {
		var rec towers.TowerRecord
		err := rows.Scan(
			&rec.ID, &rec.Seq, &rec.Label,
			&rec.Box.Center.X, &rec.Box.Center.Y, &rec.Box.Center.Z,
			&rec.HeightM, &rec.WidthM, &rec.Aspect, &rec.NorthAngleDeg,
			&rec.PointCount, &rec.CloudPath,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tower row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// InsertFaults stores the run's recoverable faults.
func (s *RunStore) InsertFaults(runID string, faults []towers.Fault) error {
	if len(faults) == 0 {
		return nil
	}
	query := `INSERT INTO run_faults (run_id, stage, ref, error) VALUES (?, ?, ?, ?)`
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, f := range faults {
			if _, err := tx.Exec(query, runID, f.Stage, f.Ref, f.Err); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("insert run faults: %w", err)
	}
	return nil
}

// FaultsForRun loads the run's faults in insertion order.
func (s *RunStore) FaultsForRun(runID string) ([]towers.Fault, error) {
	query := `SELECT stage, ref, error FROM run_faults WHERE run_id = ? ORDER BY id`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("query run faults: %w", err)
	}
	defer rows.Close()

	var faults []towers.Fault
	for rows.Next() {
		var f towers.Fault
		if err := rows.Scan(&f.Stage, &f.Ref, &f.Err); err != nil {
			return nil, fmt.Errorf("scan fault row: %w", err)
		}
		faults = append(faults, f)
	}
	return faults, rows.Err()
}

func timestamp() string {
	return clock.Now().UTC().Format(time.RFC3339)
}
