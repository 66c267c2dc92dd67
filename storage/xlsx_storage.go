package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

// ProjectsSheet is the workbook sheet listing every project
const ProjectsSheet = "__Projects"

// maxSheetTitle is the spreadsheet limit on sheet name length
const maxSheetTitle = 31

var (
	projectHeaders = []string{"Project", "Active", "Finished", "CreatedAt"}
	stageHeaders   = []string{
		"Stage", "Percent", "ToFinish", "Notes", "Finished",
		"LastUpdated", "Photos", "LastEditor", "LastEditorId",
	}
)

// SanitizeSheetName turns a project name into a valid sheet title: characters the
// spreadsheet format rejects become '·' and the result is cut to 31 characters.
func SanitizeSheetName(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == maxSheetTitle {
			break
		}
		if strings.ContainsRune(`:\/?*[]`, r) {
			r = '·'
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() == 0 {
		return "Project"
	}
	return b.String()
}

// XLSXStorage keeps projects in a single workbook: one projects sheet plus one
// sheet per project. Every operation opens the file under the lock and mutating
// operations replace it atomically. Sheet titles compare case-insensitively, so
// project names that differ only in case cannot coexist here (ErrSheetConflict).
type XLSXStorage struct {
	mu   sync.Mutex // guards the file when no FileLock is configured
	path string
	lock *FileLock
	now  func() time.Time
}

// NewXLSXStorage creates the workbook at path if it does not exist yet
func NewXLSXStorage(path string, lock *FileLock) (*XLSXStorage, error) {
	if path == "" {
		path = "projects.xlsx"
	}
	s := &XLSXStorage{path: path, lock: lock, now: time.Now}
	err := lock.With(func() error {
		f, dirty, err := s.open()
		if err != nil {
			return err
		}
		defer f.Close()
		if dirty {
			return saveWorkbook(f, s.path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workbook %s: %w", path, err)
	}
	return s, nil
}

// SetClock replaces the time source used for LastUpdated stamps
func (s *XLSXStorage) SetClock(now func() time.Time) {
	s.now = now
}

// Close is a no-op; the workbook is not held open between operations
func (s *XLSXStorage) Close() error {
	return nil
}

// ListProjects returns projects in sheet order
func (s *XLSXStorage) ListProjects(activeOnly bool) ([]Project, error) {
	var out []Project
	err := s.read(func(f *excelize.File) error {
		projects, err := readProjects(f)
		if err != nil {
			return err
		}
		for _, p := range projects {
			if activeOnly && !p.Active {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// AddProject appends a project row and creates its sheet
func (s *XLSXStorage) AddProject(name string) (bool, error) {
	name = normalizeProjectName(name)
	if name == "" {
		return false, nil
	}

	created := false
	err := s.write(func(f *excelize.File) (bool, error) {
		projects, err := readProjects(f)
		if err != nil {
			return false, err
		}
		for _, p := range projects {
			if p.Name == name {
				return false, nil
			}
		}

		title := SanitizeSheetName(name)
		if sheetExists(f, title) {
			return false, fmt.Errorf("project %q -> sheet %q: %w", name, title, ErrSheetConflict)
		}

		// Append after the last used row; blank rows in between are kept.
		rows, err := f.GetRows(ProjectsSheet)
		if err != nil {
			return false, fmt.Errorf("failed to read %s: %w", ProjectsSheet, err)
		}
		p := Project{Name: name, Active: true, CreatedAt: s.now().Format(time.RFC3339)}
		if err := setRow(f, ProjectsSheet, len(rows)+1, projectRow(p)); err != nil {
			return false, err
		}
		if err := createStageSheet(f, title); err != nil {
			return false, err
		}
		created = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Printf("AddProject: created project %q in %s", name, s.path)
	}
	return created, nil
}

// SetProjectActive archives or restores a project
func (s *XLSXStorage) SetProjectActive(name string, active bool) error {
	return s.setProjectFlag(name, 2, active)
}

// SetProjectFinished marks a project finished or not
func (s *XLSXStorage) SetProjectFinished(name string, finished bool) error {
	return s.setProjectFlag(name, 3, finished)
}

func (s *XLSXStorage) setProjectFlag(name string, col int, value bool) error {
	return s.write(func(f *excelize.File) (bool, error) {
		rows, err := f.GetRows(ProjectsSheet)
		if err != nil {
			return false, fmt.Errorf("failed to read %s: %w", ProjectsSheet, err)
		}
		for i := 1; i < len(rows); i++ {
			if cellAt(rows[i], 0) != name {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col, i+1)
			if err != nil {
				return false, err
			}
			if err := f.SetCellValue(ProjectsSheet, cell, value); err != nil {
				return false, fmt.Errorf("failed to set %s: %w", cell, err)
			}
			return true, nil
		}
		return false, fmt.Errorf("project %q: %w", name, ErrUnknownProject)
	})
}

// ReadStage returns one stage record, appending the row if it is missing
func (s *XLSXStorage) ReadStage(project string, code StageCode) (StageRecord, error) {
	var rec StageRecord
	err := s.write(func(f *excelize.File) (bool, error) {
		sheet, err := projectSheet(f, project)
		if err != nil {
			return false, err
		}
		var dirty bool
		rec, _, dirty, err = findStage(f, sheet, code)
		return dirty, err
	})
	return rec, err
}

// ReadStages returns all seven stage records in fixed order
func (s *XLSXStorage) ReadStages(project string) ([]StageRecord, error) {
	var out []StageRecord
	err := s.write(func(f *excelize.File) (bool, error) {
		sheet, err := projectSheet(f, project)
		if err != nil {
			return false, err
		}
		anyDirty := false
		out = make([]StageRecord, 0, len(Stages))
		for _, def := range Stages {
			rec, _, dirty, err := findStage(f, sheet, def.Code)
			if err != nil {
				return false, err
			}
			anyDirty = anyDirty || dirty
			out = append(out, rec)
		}
		return anyDirty, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStage applies upd to the stage row
func (s *XLSXStorage) UpdateStage(project string, code StageCode, upd StageUpdate, editor Editor) error {
	return s.write(func(f *excelize.File) (bool, error) {
		sheet, err := projectSheet(f, project)
		if err != nil {
			return false, err
		}
		rec, row, _, err := findStage(f, sheet, code)
		if err != nil {
			return false, err
		}
		applyUpdate(&rec, upd, editor, s.now())
		return true, setRow(f, sheet, row, stageRow(rec))
	})
}

// AppendPhoto adds a photo reference to the stage row
func (s *XLSXStorage) AppendPhoto(project string, code StageCode, ref string, editor Editor) error {
	return s.write(func(f *excelize.File) (bool, error) {
		sheet, err := projectSheet(f, project)
		if err != nil {
			return false, err
		}
		rec, row, _, err := findStage(f, sheet, code)
		if err != nil {
			return false, err
		}
		rec.Photos = appendPhoto(rec.Photos, ref)
		stamp(&rec, editor, s.now())
		return true, setRow(f, sheet, row, stageRow(rec))
	})
}

// read runs fn on a freshly opened workbook under the lock
func (s *XLSXStorage) read(fn func(f *excelize.File) error) error {
	if s.lock == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.lock.With(func() error {
		f, _, err := s.open()
		if err != nil {
			return err
		}
		defer f.Close()
		return fn(f)
	})
}

// write runs fn under the lock and saves the workbook when fn reports a change
func (s *XLSXStorage) write(fn func(f *excelize.File) (bool, error)) error {
	if s.lock == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.lock.With(func() error {
		f, dirty, err := s.open()
		if err != nil {
			return err
		}
		defer f.Close()

		changed, err := fn(f)
		if err != nil {
			return err
		}
		if changed || dirty {
			return saveWorkbook(f, s.path)
		}
		return nil
	})
}

// open loads the workbook, creating it or its projects sheet when missing.
// dirty reports whether the returned workbook differs from the file on disk.
func (s *XLSXStorage) open() (*excelize.File, bool, error) {
	var f *excelize.File
	dirty := false
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		if err := f.SetSheetName("Sheet1", ProjectsSheet); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("failed to name projects sheet: %w", err)
		}
		dirty = true
	} else {
		f, err = excelize.OpenFile(s.path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open workbook %s: %w", s.path, err)
		}
	}

	if !sheetExists(f, ProjectsSheet) {
		if _, err := f.NewSheet(ProjectsSheet); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("failed to create projects sheet: %w", err)
		}
		dirty = true
	}
	rows, err := f.GetRows(ProjectsSheet)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("failed to read %s: %w", ProjectsSheet, err)
	}
	if len(rows) == 0 {
		if err := setRow(f, ProjectsSheet, 1, stringsToRow(projectHeaders)); err != nil {
			f.Close()
			return nil, false, err
		}
		dirty = true
	}
	return f, dirty, nil
}

// saveWorkbook writes f next to path and renames it into place
func saveWorkbook(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp workbook: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp workbook: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace workbook %s: %w", path, err)
	}
	return nil
}

func readProjects(f *excelize.File) ([]Project, error) {
	rows, err := f.GetRows(ProjectsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProjectsSheet, err)
	}
	var out []Project
	for i := 1; i < len(rows); i++ {
		name := cellAt(rows[i], 0)
		if name == "" {
			continue
		}
		out = append(out, Project{
			Name:      name,
			Active:    boolCell(cellAt(rows[i], 1), true),
			Finished:  boolCell(cellAt(rows[i], 2), false),
			CreatedAt: cellAt(rows[i], 3),
		})
	}
	return out, nil
}

// projectSheet returns the sheet of a known project, creating it if needed
func projectSheet(f *excelize.File, project string) (string, error) {
	projects, err := readProjects(f)
	if err != nil {
		return "", err
	}
	known := false
	for _, p := range projects {
		if p.Name == project {
			known = true
			break
		}
	}
	if !known {
		return "", fmt.Errorf("project %q: %w", project, ErrUnknownProject)
	}
	title := SanitizeSheetName(project)
	if !sheetExists(f, title) {
		if err := createStageSheet(f, title); err != nil {
			return "", err
		}
	}
	return title, nil
}

func createStageSheet(f *excelize.File, title string) error {
	if _, err := f.NewSheet(title); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", title, err)
	}
	if err := setRow(f, title, 1, stringsToRow(stageHeaders)); err != nil {
		return err
	}
	for i, def := range Stages {
		if err := setRow(f, title, i+2, stageRow(emptyStage(def.Code))); err != nil {
			return err
		}
	}
	return nil
}

// findStage locates the row of code in sheet, appending an empty row if it is
// missing. It returns the record, its 1-based row number and whether it appended.
func findStage(f *excelize.File, sheet string, code StageCode) (StageRecord, int, bool, error) {
	if !code.Valid() {
		return StageRecord{}, 0, false, fmt.Errorf("stage %q: %w", code, ErrUnknownStage)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return StageRecord{}, 0, false, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		if err := setRow(f, sheet, 1, stringsToRow(stageHeaders)); err != nil {
			return StageRecord{}, 0, false, err
		}
		rows = [][]string{stageHeaders}
	}

	idx := headerIndex(rows[0])
	for i := 1; i < len(rows); i++ {
		if cellAt(rows[i], idx["Stage"]) == code.Name() {
			return parseStageRow(code, rows[i], idx), i + 1, false, nil
		}
	}

	rec := emptyStage(code)
	row := len(rows) + 1
	if err := setRow(f, sheet, row, stageRow(rec)); err != nil {
		return StageRecord{}, 0, false, err
	}
	return rec, row, true, nil
}

func parseStageRow(code StageCode, row []string, idx map[string]int) StageRecord {
	get := func(h string) string {
		i, ok := idx[h]
		if !ok {
			return ""
		}
		return cellAt(row, i)
	}
	rec := StageRecord{
		Code:         code,
		ToFinish:     get("ToFinish"),
		Notes:        get("Notes"),
		Finished:     boolCell(get("Finished"), false),
		LastUpdated:  get("LastUpdated"),
		Photos:       splitPhotos(get("Photos")),
		LastEditor:   get("LastEditor"),
		LastEditorID: get("LastEditorId"),
	}
	if v, err := strconv.Atoi(strings.TrimSpace(get("Percent"))); err == nil {
		rec.Percent = IntPtr(v)
	}
	return rec
}

func stageRow(rec StageRecord) []interface{} {
	var percent interface{} = ""
	if rec.Percent != nil {
		percent = *rec.Percent
	}
	finished := "-"
	if rec.Finished {
		finished = "true"
	}
	return []interface{}{
		rec.Code.Name(), percent, rec.ToFinish, rec.Notes, finished,
		rec.LastUpdated, joinPhotos(rec.Photos), rec.LastEditor, rec.LastEditorID,
	}
}

func projectRow(p Project) []interface{} {
	return []interface{}{p.Name, p.Active, p.Finished, p.CreatedAt}
}

func stringsToRow(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

// sheetExists compares case-insensitively, as spreadsheet applications do
func sheetExists(f *excelize.File, title string) bool {
	for _, name := range f.GetSheetList() {
		if strings.EqualFold(name, title) {
			return true
		}
	}
	return false
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
