package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

type clocked interface {
	StorageInterface
	SetClock(func() time.Time)
}

// backends returns a fresh instance of every backend for each call
func backends(t *testing.T) map[string]clocked {
	t.Helper()
	dir := t.TempDir()
	lock := NewFileLock(filepath.Join(dir, "projects.lock"), time.Second)

	sqlite, err := NewSQLiteStorage(filepath.Join(dir, "projects.db"), lock)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	xlsx, err := NewXLSXStorage(filepath.Join(dir, "projects.xlsx"), lock)
	if err != nil {
		t.Fatalf("NewXLSXStorage: %v", err)
	}

	return map[string]clocked{
		"memory": New(),
		"sqlite": sqlite,
		"xlsx":   xlsx,
	}
}

// stepClock returns a clock advancing one second per call
func stepClock() func() time.Time {
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestAddProject_DuplicateIsNoop(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.AddProject("Riverside")
			if err != nil || !created {
				t.Fatalf("first AddProject = %v, %v; want true, nil", created, err)
			}
			created, err = s.AddProject("Riverside")
			if err != nil || created {
				t.Fatalf("second AddProject = %v, %v; want false, nil", created, err)
			}
			created, err = s.AddProject("  Riverside  ")
			if err != nil || created {
				t.Fatalf("padded AddProject = %v, %v; want false, nil", created, err)
			}

			projects, err := s.ListProjects(false)
			if err != nil {
				t.Fatalf("ListProjects: %v", err)
			}
			if len(projects) != 1 {
				t.Fatalf("got %d projects, want 1", len(projects))
			}
			stages, err := s.ReadStages("Riverside")
			if err != nil {
				t.Fatalf("ReadStages: %v", err)
			}
			if len(stages) != len(Stages) {
				t.Fatalf("got %d stage records, want %d", len(stages), len(Stages))
			}
		})
	}
}

func TestAddProject_CaseSensitiveAndBlank(t *testing.T) {
	s := New()
	if created, _ := s.AddProject("   "); created {
		t.Fatal("blank name must not create a project")
	}
	if created, _ := s.AddProject("riverside"); !created {
		t.Fatal("expected riverside to be created")
	}
	if created, _ := s.AddProject("Riverside"); !created {
		t.Fatal("names differing in case are distinct projects")
	}
}

func TestStageRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.AddProject("Riverside"); err != nil {
				t.Fatalf("AddProject: %v", err)
			}
			editor := Editor{Name: "Anna", ID: 42}
			if err := s.UpdateStage("Riverside", S3, StageUpdate{ToFinish: StringPtr("Install panel A")}, editor); err != nil {
				t.Fatalf("UpdateStage: %v", err)
			}

			rec, err := s.ReadStage("Riverside", S3)
			if err != nil {
				t.Fatalf("ReadStage: %v", err)
			}
			if rec.ToFinish != "Install panel A" {
				t.Errorf("ToFinish = %q, want %q", rec.ToFinish, "Install panel A")
			}
			if rec.LastUpdated == "" {
				t.Error("LastUpdated should be stamped")
			}
			if rec.LastEditor != "Anna" || rec.LastEditorID != "42" {
				t.Errorf("editor = %q/%q, want Anna/42", rec.LastEditor, rec.LastEditorID)
			}
			if rec.Percent != nil {
				t.Errorf("Percent = %d, want unset", *rec.Percent)
			}

			other, err := s.ReadStage("Riverside", S4)
			if err != nil {
				t.Fatalf("ReadStage S4: %v", err)
			}
			if other.ToFinish != "" || other.LastUpdated != "" {
				t.Errorf("S4 should be untouched, got %+v", other)
			}
		})
	}
}

func TestQuickPercentSequence(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.SetClock(stepClock())
			if _, err := s.AddProject("Riverside"); err != nil {
				t.Fatalf("AddProject: %v", err)
			}
			var prev time.Time
			for _, pct := range []int{25, 90, 0, 50, 100, 75} {
				if err := s.UpdateStage("Riverside", S1, StageUpdate{Percent: IntPtr(pct)}, Editor{Name: "Jan", ID: 1}); err != nil {
					t.Fatalf("UpdateStage(%d): %v", pct, err)
				}
				rec, err := s.ReadStage("Riverside", S1)
				if err != nil {
					t.Fatalf("ReadStage: %v", err)
				}
				if rec.Percent == nil || *rec.Percent != pct {
					t.Fatalf("Percent = %v, want %d", rec.Percent, pct)
				}
				ts, err := time.Parse(TimestampLayout, rec.LastUpdated)
				if err != nil {
					t.Fatalf("LastUpdated %q: %v", rec.LastUpdated, err)
				}
				if ts.Before(prev) {
					t.Fatalf("LastUpdated went backwards: %s before %s", ts, prev)
				}
				prev = ts
			}
		})
	}
}

func TestAppendPhoto_Cap(t *testing.T) {
	for name, s := range backends(t) {
		if name == "xlsx" && testing.Short() {
			continue
		}
		t.Run(name, func(t *testing.T) {
			if _, err := s.AddProject("Riverside"); err != nil {
				t.Fatalf("AddProject: %v", err)
			}
			for i := 1; i <= MaxPhotos+1; i++ {
				if err := s.AppendPhoto("Riverside", S2, fmt.Sprintf("photo-%d", i), Editor{Name: "Jan", ID: 1}); err != nil {
					t.Fatalf("AppendPhoto %d: %v", i, err)
				}
			}
			rec, err := s.ReadStage("Riverside", S2)
			if err != nil {
				t.Fatalf("ReadStage: %v", err)
			}
			if len(rec.Photos) != MaxPhotos {
				t.Fatalf("got %d photos, want %d", len(rec.Photos), MaxPhotos)
			}
			if rec.Photos[0] != "photo-2" {
				t.Errorf("oldest photo = %q, want photo-2", rec.Photos[0])
			}
			if last := rec.Photos[len(rec.Photos)-1]; last != fmt.Sprintf("photo-%d", MaxPhotos+1) {
				t.Errorf("newest photo = %q", last)
			}
		})
	}
}

func TestArchiveAndFinish(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"Alpha", "Beta", "Gamma"} {
				if _, err := s.AddProject(p); err != nil {
					t.Fatalf("AddProject %s: %v", p, err)
				}
			}
			if err := s.SetProjectActive("Beta", false); err != nil {
				t.Fatalf("SetProjectActive: %v", err)
			}
			if err := s.SetProjectFinished("Gamma", true); err != nil {
				t.Fatalf("SetProjectFinished: %v", err)
			}

			active, err := s.ListProjects(true)
			if err != nil {
				t.Fatalf("ListProjects: %v", err)
			}
			if len(active) != 2 || active[0].Name != "Alpha" || active[1].Name != "Gamma" {
				t.Fatalf("active projects = %+v, want Alpha, Gamma", active)
			}
			if !active[1].Finished {
				t.Error("Gamma should be finished")
			}

			all, err := s.ListProjects(false)
			if err != nil {
				t.Fatalf("ListProjects(false): %v", err)
			}
			if len(all) != 3 || all[1].Name != "Beta" || all[1].Active {
				t.Fatalf("all projects = %+v", all)
			}

			err = s.SetProjectActive("Missing", true)
			if !errors.Is(err, ErrUnknownProject) {
				t.Fatalf("SetProjectActive(Missing) = %v, want ErrUnknownProject", err)
			}
		})
	}
}

func TestUnknownProjectAndStage(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.ReadStage("Nowhere", S1); !errors.Is(err, ErrUnknownProject) {
				t.Errorf("ReadStage(Nowhere) = %v, want ErrUnknownProject", err)
			}
			if _, err := s.AddProject("Riverside"); err != nil {
				t.Fatalf("AddProject: %v", err)
			}
			if _, err := s.ReadStage("Riverside", StageCode("S8")); !errors.Is(err, ErrUnknownStage) {
				t.Errorf("ReadStage(S8) = %v, want ErrUnknownStage", err)
			}
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.db")
	s, err := NewSQLiteStorage(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	if _, err := s.AddProject("Riverside"); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if err := s.UpdateStage("Riverside", S7, StageUpdate{Notes: StringPtr("scaffolding gone")}, Editor{Name: "Jan", ID: 7}); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStorage(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	rec, err := s.ReadStage("Riverside", S7)
	if err != nil {
		t.Fatalf("ReadStage: %v", err)
	}
	if rec.Notes != "scaffolding gone" {
		t.Errorf("Notes = %q after reopen", rec.Notes)
	}
}

func TestXLSXSheetConflict(t *testing.T) {
	s, err := NewXLSXStorage(filepath.Join(t.TempDir(), "projects.xlsx"), nil)
	if err != nil {
		t.Fatalf("NewXLSXStorage: %v", err)
	}
	if _, err := s.AddProject("Block A/B"); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	_, err = s.AddProject("Block A:B")
	if !errors.Is(err, ErrSheetConflict) {
		t.Fatalf("AddProject(Block A:B) = %v, want ErrSheetConflict", err)
	}
}

func TestXLSXCaseOnlyDifferenceConflicts(t *testing.T) {
	s, err := NewXLSXStorage(filepath.Join(t.TempDir(), "projects.xlsx"), nil)
	if err != nil {
		t.Fatalf("NewXLSXStorage: %v", err)
	}
	if _, err := s.AddProject("Riverside"); err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	if _, err := s.AddProject("riverside"); !errors.Is(err, ErrSheetConflict) {
		t.Fatalf("AddProject(riverside) = %v, want ErrSheetConflict", err)
	}
}

func TestXLSXAddProjectAfterBlankRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.xlsx")
	s, err := NewXLSXStorage(path, nil)
	if err != nil {
		t.Fatalf("NewXLSXStorage: %v", err)
	}
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		if _, err := s.AddProject(name); err != nil {
			t.Fatalf("AddProject(%s): %v", name, err)
		}
	}

	// Someone clears Beta's name in the workbook by hand
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.SetCellValue(ProjectsSheet, "A3", ""); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f.Close()

	if created, err := s.AddProject("Delta"); err != nil || !created {
		t.Fatalf("AddProject(Delta) = %v, %v", created, err)
	}
	projects, err := s.ListProjects(false)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	var names []string
	for _, p := range projects {
		names = append(names, p.Name)
	}
	want := []string{"Alpha", "Gamma", "Delta"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("projects = %v, want %v", names, want)
	}
	if _, err := s.ReadStages("Gamma"); err != nil {
		t.Errorf("ReadStages(Gamma): %v", err)
	}
}

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Riverside", "Riverside"},
		{"A/B:C?D*E[F]G\\H", "A·B·C·D·E·F·G·H"},
		{"", "Project"},
		{"Osiedle Zielone Wzgórze etap drugi budynek C", "Osiedle Zielone Wzgórze etap dr"},
	}
	for _, tt := range tests {
		if got := SanitizeSheetName(tt.in); got != tt.want {
			t.Errorf("SanitizeSheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportWorkbook(t *testing.T) {
	src := New()
	src.AddProject("Riverside")
	src.AddProject("Harbour")
	src.UpdateStage("Harbour", S5, StageUpdate{Percent: IntPtr(75), ToFinish: StringPtr("roof")}, Editor{Name: "Ola", ID: 3})
	src.SetProjectActive("Riverside", false)

	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := ExportWorkbook(src, path); err != nil {
		t.Fatalf("ExportWorkbook: %v", err)
	}

	// The export is a valid workbook for the spreadsheet backend.
	x, err := NewXLSXStorage(path, nil)
	if err != nil {
		t.Fatalf("NewXLSXStorage(export): %v", err)
	}
	all, err := x.ListProjects(false)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Riverside" || all[0].Active {
		t.Fatalf("exported projects = %+v", all)
	}
	rec, err := x.ReadStage("Harbour", S5)
	if err != nil {
		t.Fatalf("ReadStage: %v", err)
	}
	if rec.Percent == nil || *rec.Percent != 75 || rec.ToFinish != "roof" || rec.LastEditor != "Ola" {
		t.Fatalf("exported stage = %+v", rec)
	}
}

func TestFileLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.lock")
	holder := NewFileLock(path, time.Second)
	waiter := NewFileLock(path, 100*time.Millisecond)

	err := holder.With(func() error {
		return waiter.With(func() error { return nil })
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("nested lock on separate handle = %v, want ErrLockTimeout", err)
	}

	// A goroutine of the same process holding the lock counts against the timeout too
	shared := NewFileLock(path, 100*time.Millisecond)
	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		shared.With(func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	start := time.Now()
	err = shared.With(func() error { return nil })
	close(release)
	<-done
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("queued behind a goroutine = %v, want ErrLockTimeout", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("waited %v, want about the 100ms timeout", waited)
	}

	var nilLock *FileLock
	ran := false
	if err := nilLock.With(func() error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("nil lock should just run fn, got ran=%v err=%v", ran, err)
	}
}
