package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage represents a persistent storage using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	lock   *FileLock
	dbPath string
	now    func() time.Time
}

// NewSQLiteStorage creates a new SQLite storage instance. lock may be nil when
// only one process ever opens dbPath.
func NewSQLiteStorage(dbPath string, lock *FileLock) (*SQLiteStorage, error) {
	if dbPath == "" {
		dbPath = "projects.db" // Default database file
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps transactions of this process strictly serialized.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		lock:   lock,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			name TEXT PRIMARY KEY,
			active INTEGER NOT NULL DEFAULT 1,
			finished INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS stages (
			project TEXT NOT NULL REFERENCES projects(name),
			code TEXT NOT NULL,
			stage_name TEXT NOT NULL,
			percent INTEGER,
			to_finish TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			finished INTEGER NOT NULL DEFAULT 0,
			last_updated TEXT NOT NULL DEFAULT '',
			photos TEXT NOT NULL DEFAULT '',
			last_editor TEXT NOT NULL DEFAULT '',
			-- one record per (project, stage code)
			PRIMARY KEY (project, code)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create stages table: %w", err)
	}

	return nil
}

// migrateSchema checks for and applies necessary schema changes
func migrateSchema(db *sql.DB) error {
	exists, err := columnExists(db, "stages", "last_editor_id")
	if err != nil {
		return err
	}
	if !exists {
		log.Println("Schema migration: Adding 'last_editor_id' column to 'stages' table...")
		if _, err := db.Exec("ALTER TABLE stages ADD COLUMN last_editor_id TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("failed to add last_editor_id column: %w", err)
		}
	}
	return nil
}

// columnExists reports whether table has a column called column
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("failed to query table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, typeName string
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &typeName, &notnull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info row: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating table info rows: %w", err)
	}
	return false, nil
}

// SetClock replaces the time source used for LastUpdated stamps
func (s *SQLiteStorage) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// ListProjects returns projects in creation order
func (s *SQLiteStorage) ListProjects(activeOnly bool) ([]Project, error) {
	var projects []Project
	err := s.lock.With(func() error {
		query := "SELECT name, active, finished, created_at FROM projects"
		if activeOnly {
			query += " WHERE active = 1"
		}
		query += " ORDER BY rowid ASC"

		rows, err := s.db.Query(query)
		if err != nil {
			return fmt.Errorf("failed to query projects: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p Project
			if err := rows.Scan(&p.Name, &p.Active, &p.Finished, &p.CreatedAt); err != nil {
				return fmt.Errorf("failed to scan project row: %w", err)
			}
			projects = append(projects, p)
		}
		return rows.Err()
	})
	return projects, err
}

// AddProject inserts a project and its seven stage rows in one transaction
func (s *SQLiteStorage) AddProject(name string) (bool, error) {
	name = normalizeProjectName(name)
	if name == "" {
		return false, nil
	}

	created := false
	err := s.lock.With(func() error {
		return s.inTx(func(tx *sql.Tx) error {
			res, err := tx.Exec(
				"INSERT OR IGNORE INTO projects (name, active, finished, created_at) VALUES (?, 1, 0, ?)",
				name, s.now().Format(time.RFC3339),
			)
			if err != nil {
				return fmt.Errorf("failed to insert project %q: %w", name, err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return nil // exact duplicate
			}
			created = true
			for _, def := range Stages {
				if err := ensureStageRow(tx, name, def.Code); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Printf("AddProject: created project %q", name)
	}
	return created, nil
}

// SetProjectActive archives or restores a project
func (s *SQLiteStorage) SetProjectActive(name string, active bool) error {
	return s.setProjectFlag(name, "active", active)
}

// SetProjectFinished marks a project finished or not
func (s *SQLiteStorage) SetProjectFinished(name string, finished bool) error {
	return s.setProjectFlag(name, "finished", finished)
}

func (s *SQLiteStorage) setProjectFlag(name, column string, value bool) error {
	return s.lock.With(func() error {
		res, err := s.db.Exec("UPDATE projects SET "+column+" = ? WHERE name = ?", value, name)
		if err != nil {
			return fmt.Errorf("failed to update %s of %q: %w", column, name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("set %s %q: %w", column, name, ErrUnknownProject)
		}
		return nil
	})
}

// ReadStage returns one stage record, creating the row if it is missing
func (s *SQLiteStorage) ReadStage(project string, code StageCode) (StageRecord, error) {
	var rec StageRecord
	err := s.lock.With(func() error {
		return s.inTx(func(tx *sql.Tx) error {
			var err error
			rec, err = readStageTx(tx, project, code)
			return err
		})
	})
	return rec, err
}

// ReadStages returns all seven stage records in fixed order
func (s *SQLiteStorage) ReadStages(project string) ([]StageRecord, error) {
	var out []StageRecord
	err := s.lock.With(func() error {
		return s.inTx(func(tx *sql.Tx) error {
			out = make([]StageRecord, 0, len(Stages))
			for _, def := range Stages {
				rec, err := readStageTx(tx, project, def.Code)
				if err != nil {
					return err
				}
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStage applies upd inside a transaction
func (s *SQLiteStorage) UpdateStage(project string, code StageCode, upd StageUpdate, editor Editor) error {
	return s.lock.With(func() error {
		return s.inTx(func(tx *sql.Tx) error {
			rec, err := readStageTx(tx, project, code)
			if err != nil {
				return err
			}
			applyUpdate(&rec, upd, editor, s.now())
			return writeStageTx(tx, project, rec)
		})
	})
}

// AppendPhoto adds a photo reference; the read and the write share one lock hold
func (s *SQLiteStorage) AppendPhoto(project string, code StageCode, ref string, editor Editor) error {
	return s.lock.With(func() error {
		return s.inTx(func(tx *sql.Tx) error {
			rec, err := readStageTx(tx, project, code)
			if err != nil {
				return err
			}
			rec.Photos = appendPhoto(rec.Photos, ref)
			stamp(&rec, editor, s.now())
			return writeStageTx(tx, project, rec)
		})
	})
}

// inTx runs fn in a transaction, committing on success
func (s *SQLiteStorage) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction on %s: %w", s.dbPath, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction on %s: %w", s.dbPath, err)
	}
	return nil
}

func ensureStageRow(tx *sql.Tx, project string, code StageCode) error {
	_, err := tx.Exec(
		"INSERT OR IGNORE INTO stages (project, code, stage_name) VALUES (?, ?, ?)",
		project, string(code), code.Name(),
	)
	if err != nil {
		return fmt.Errorf("failed to create stage %s of %q: %w", code, project, err)
	}
	return nil
}

func readStageTx(tx *sql.Tx, project string, code StageCode) (StageRecord, error) {
	if !code.Valid() {
		return StageRecord{}, fmt.Errorf("stage %q: %w", code, ErrUnknownStage)
	}

	var exists int
	err := tx.QueryRow("SELECT 1 FROM projects WHERE name = ?", project).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return StageRecord{}, fmt.Errorf("stage %s of %q: %w", code, project, ErrUnknownProject)
	}
	if err != nil {
		return StageRecord{}, fmt.Errorf("failed to look up project %q: %w", project, err)
	}

	if err := ensureStageRow(tx, project, code); err != nil {
		return StageRecord{}, err
	}

	rec := StageRecord{Code: code}
	var percent sql.NullInt64
	var photos string
	err = tx.QueryRow(`
		SELECT percent, to_finish, notes, finished, last_updated, photos, last_editor, last_editor_id
		FROM stages WHERE project = ? AND code = ?
	`, project, string(code)).Scan(
		&percent, &rec.ToFinish, &rec.Notes, &rec.Finished,
		&rec.LastUpdated, &photos, &rec.LastEditor, &rec.LastEditorID,
	)
	if err != nil {
		return StageRecord{}, fmt.Errorf("failed to read stage %s of %q: %w", code, project, err)
	}
	if percent.Valid {
		rec.Percent = IntPtr(int(percent.Int64))
	}
	rec.Photos = splitPhotos(photos)
	return rec, nil
}

func writeStageTx(tx *sql.Tx, project string, rec StageRecord) error {
	var percent sql.NullInt64
	if rec.Percent != nil {
		percent = sql.NullInt64{Int64: int64(*rec.Percent), Valid: true}
	}
	_, err := tx.Exec(`
		UPDATE stages
		SET percent = ?, to_finish = ?, notes = ?, finished = ?, last_updated = ?,
			photos = ?, last_editor = ?, last_editor_id = ?
		WHERE project = ? AND code = ?
	`,
		percent, rec.ToFinish, rec.Notes, rec.Finished, rec.LastUpdated,
		joinPhotos(rec.Photos), rec.LastEditor, rec.LastEditorID,
		project, string(rec.Code),
	)
	if err != nil {
		return fmt.Errorf("failed to write stage %s of %q: %w", rec.Code, project, err)
	}
	return nil
}
