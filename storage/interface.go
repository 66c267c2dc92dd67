package storage

import "errors"

var (
	// ErrUnknownProject is returned when an operation names a project that is not stored.
	ErrUnknownProject = errors.New("unknown project")
	// ErrUnknownStage is returned for stage codes outside S1..S7.
	ErrUnknownStage = errors.New("unknown stage code")
	// ErrSheetConflict is returned by the spreadsheet backend when a new project's
	// sanitized sheet title collides with an existing sheet.
	ErrSheetConflict = errors.New("sheet title already taken by another project")
)

// StorageInterface defines the interface for storage implementations
type StorageInterface interface {
	// ListProjects returns projects in creation order. With activeOnly set,
	// archived projects are skipped.
	ListProjects(activeOnly bool) ([]Project, error)

	// AddProject creates a project together with its seven stage records.
	// Blank names and exact duplicates are ignored and report created=false.
	AddProject(name string) (created bool, err error)

	// SetProjectActive archives (false) or restores (true) a project
	SetProjectActive(name string, active bool) error

	// SetProjectFinished sets the finished flag of a project
	SetProjectFinished(name string, finished bool) error

	// ReadStage returns one stage record, creating an empty one if it is missing
	ReadStage(project string, code StageCode) (StageRecord, error)

	// ReadStages returns all seven stage records of a project in fixed stage order
	ReadStages(project string) ([]StageRecord, error)

	// UpdateStage writes the set fields of upd and stamps LastUpdated and the editor.
	// An empty update only refreshes the stamp.
	UpdateStage(project string, code StageCode, upd StageUpdate, editor Editor) error

	// AppendPhoto adds a photo reference to a stage, keeping the newest MaxPhotos entries
	AppendPhoto(project string, code StageCode, ref string, editor Editor) error

	// Close releases the backend
	Close() error
}
