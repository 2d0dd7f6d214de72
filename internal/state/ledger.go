package state

import (
	"database/sql"
	"time"

	"github.com/mfarrell/tractus/pkg/models"
)

// Ledger records run, stage, and job events. Writes are best-effort:
// a failed audit write never fails the pipeline, so errors are dropped.
// Safe for concurrent use (the underlying DB serialises access).
type Ledger struct {
	db *DB
}

// NewLedger creates a ledger over an open, migrated database.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// OpenLedger opens (and migrates) the ledger of a run directory.
func OpenLedger(runDir string) (*Ledger, error) {
	db, err := Open(LedgerPath(runDir))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return NewLedger(db), nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RunStarted records the beginning of a pipeline run.
func (l *Ledger) RunStarted(runID, runDir string) {
	l.db.Exec(`
		INSERT OR REPLACE INTO runs (id, run_dir, status, started_at)
		VALUES (?, ?, 'active', ?)
	`, runID, runDir, formatTime(time.Now()))
}

// RunFinished records a run's terminal status.
func (l *Ledger) RunFinished(runID string, runErr error) {
	status, detail := "complete", ""
	if runErr != nil {
		status, detail = "failed", runErr.Error()
	}
	l.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, status, detail, formatTime(time.Now()), runID)
}

// StageEvent records one stage transition.
func (l *Ledger) StageEvent(runID string, stage models.Stage, status models.StageStatus, detail string) {
	l.db.Exec(`
		INSERT INTO stage_events (run_id, stage, status, detail, at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, string(stage), string(status), detail, formatTime(time.Now()))
}

// JobEvent records a scheduler submission or completion.
func (l *Ledger) JobEvent(runID, jobName, schedulerID string, jobErr error) {
	status, detail := "ok", ""
	if jobErr != nil {
		status, detail = "failed", jobErr.Error()
	}
	l.db.Exec(`
		INSERT INTO jobs (run_id, name, scheduler_id, status, error, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, jobName, schedulerID, status, detail, formatTime(time.Now()))
}

// Run is one recorded pipeline run.
type Run struct {
	ID         string
	RunDir     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Runs returns all recorded runs, most recent first.
func (l *Ledger) Runs() ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT id, run_dir, status, COALESCE(error, ''), started_at, finished_at
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.RunDir, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, err
		}
		if t, err := parseTime(started); err == nil {
			r.StartedAt = t
		}
		if finished.Valid {
			if t, err := parseTime(finished.String); err == nil {
				r.FinishedAt = &t
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// JobRecord is one recorded scheduler event.
type JobRecord struct {
	RunID       string
	Name        string
	SchedulerID string
	Status      string
	Error       string
	At          time.Time
}

// Jobs returns the job events of one run, oldest first.
func (l *Ledger) Jobs(runID string) ([]JobRecord, error) {
	rows, err := l.db.Query(`
		SELECT run_id, name, COALESCE(scheduler_id, ''), status, COALESCE(error, ''), at
		FROM jobs WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		var at string
		if err := rows.Scan(&j.RunID, &j.Name, &j.SchedulerID, &j.Status, &j.Error, &at); err != nil {
			return nil, err
		}
		if t, err := parseTime(at); err == nil {
			j.At = t
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// StageRecord is one recorded stage transition.
type StageRecord struct {
	RunID  string
	Stage  models.Stage
	Status models.StageStatus
	Detail string
	At     time.Time
}

// StageEvents returns the stage transitions of one run, oldest first.
func (l *Ledger) StageEvents(runID string) ([]StageRecord, error) {
	rows, err := l.db.Query(`
		SELECT run_id, stage, status, COALESCE(detail, ''), at
		FROM stage_events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StageRecord
	for rows.Next() {
		var e StageRecord
		var stage, status, at string
		if err := rows.Scan(&e.RunID, &stage, &status, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Stage = models.Stage(stage)
		e.Status = models.StageStatus(status)
		if t, err := parseTime(at); err == nil {
			e.At = t
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
