package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_LoadMissingReturnsZero(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got := s.Load(1)
	if got != (Session{}) {
		t.Fatalf("Load on empty store = %+v, want zero session", got)
	}
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	want := Session{
		Date:           "14.03.2025",
		Project:        "Riverside",
		Stage:          "S3",
		Pending:        AwaitText(FieldTodo),
		PanelMessageID: 77,
		Screen:         "stage",
	}
	if err := s.Save(42, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := s.Load(42)
	if got.Project != want.Project || got.Stage != want.Stage || got.PanelMessageID != 77 || got.Date != want.Date {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
	if got.Pending == nil || *got.Pending != *want.Pending {
		t.Fatalf("Pending = %+v, want %+v", got.Pending, want.Pending)
	}
	if other := s.Load(43); other != (Session{}) {
		t.Fatalf("sessions leak between users: %+v", other)
	}

	if err := s.Delete(42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := s.Load(42); got != (Session{}) {
		t.Fatalf("Load after Delete = %+v", got)
	}
	if err := s.Delete(42); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestStore_CorruptRecordIsFresh(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, keyFor(9)), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(9); got != (Session{}) {
		t.Fatalf("Load of corrupt record = %+v, want zero", got)
	}
}

func TestStore_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a := Session{Project: "Alpha", PanelMessageID: 1}
	b := Session{Project: "Beta", PanelMessageID: 2}
	if err := s.Save(5, a); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			next := a
			if i%2 == 0 {
				next = b
			}
			if err := s.Save(5, next); err != nil {
				t.Errorf("Save: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got := s.Load(5)
			if got != a && got != b {
				t.Errorf("observed partial record %+v", got)
				return
			}
		}
	}()
	wg.Wait()
}

func TestSessionTransitions(t *testing.T) {
	s := Session{Date: "01.08.2025", Project: "Riverside", Stage: "S2", Pending: AwaitPhoto(), PanelMessageID: 3}
	if !s.Awaiting(FieldPhoto) {
		t.Fatal("expected photo pending")
	}

	s.SelectStage("S4")
	if s.Stage != "S4" || s.Pending != nil {
		t.Fatalf("SelectStage = %+v", s)
	}

	s.Pending = AwaitText(FieldNotes)
	s.SelectProject("Harbour")
	if s.Project != "Harbour" || s.Stage != "" || s.Pending != nil {
		t.Fatalf("SelectProject = %+v", s)
	}

	s.GoHome()
	if s.Project != "" || s.Date != "01.08.2025" || s.PanelMessageID != 3 {
		t.Fatalf("GoHome = %+v", s)
	}
}
