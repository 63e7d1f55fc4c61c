package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"k8s.io/klog/v2"
)

// Outcome is one (namespace, metric) result within a run.
type Outcome struct {
	RunDate   string
	Namespace string
	Metric    string
	Rows      int
	Status    string // "written", "skipped" or "failed"
	Detail    string // error text for failed outcomes
}

const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Ledger keeps a local SQLite record of per-metric outcomes so past runs can
// be inspected without querying the warehouse.
type Ledger struct {
	db     *sql.DB
	dbPath string
	mutex  sync.Mutex
	insert *sql.Stmt
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %v", err)
	}

	l := &Ledger{db: db, dbPath: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %v", err)
	}

	l.insert, err = db.Prepare(`
		INSERT INTO run_outcomes (run_date, namespace, metric, rows, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare ledger insert: %v", err)
	}

	klog.V(2).InfoS("Opened run ledger", "path", path)
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		namespace TEXT NOT NULL,
		metric TEXT NOT NULL,
		rows INTEGER NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_date ON run_outcomes(run_date);
	CREATE INDEX IF NOT EXISTS idx_namespace_metric ON run_outcomes(namespace, metric);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Record stores one outcome.
func (l *Ledger) Record(o Outcome) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	_, err := l.insert.Exec(o.RunDate, o.Namespace, o.Metric, o.Rows, o.Status, o.Detail)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %v", err)
	}
	return nil
}

// ForRun returns all outcomes recorded under one run date, insertion order.
func (l *Ledger) ForRun(runDate string) ([]Outcome, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	rows, err := l.db.Query(`
		SELECT run_date, namespace, metric, rows, status, detail
		FROM run_outcomes WHERE run_date = ? ORDER BY id`, runDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %v", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var detail sql.NullString
		if err := rows.Scan(&o.RunDate, &o.Namespace, &o.Metric, &o.Rows, &o.Status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %v", err)
		}
		o.Detail = detail.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Cleanup removes outcomes older than retentionDays.
func (l *Ledger) Cleanup(retentionDays int) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	result, err := l.db.Exec(`
		DELETE FROM run_outcomes
		WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return fmt.Errorf("failed to clean up ledger: %v", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		klog.V(2).InfoS("Cleaned up ledger outcomes", "removed", n)
	}
	return nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l.insert != nil {
		l.insert.Close()
	}
	return l.db.Close()
}
