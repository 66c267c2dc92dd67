package storage

import (
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"
)

// ExportWorkbook writes a snapshot of src in the spreadsheet layout (projects
// sheet plus one sheet per project) and atomically replaces path with it.
func ExportWorkbook(src StorageInterface, path string) error {
	projects, err := src.ListProjects(false)
	if err != nil {
		return fmt.Errorf("failed to list projects for export: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProjectsSheet); err != nil {
		return fmt.Errorf("failed to name projects sheet: %w", err)
	}
	if err := setRow(f, ProjectsSheet, 1, stringsToRow(projectHeaders)); err != nil {
		return err
	}

	exported := 0
	for i, p := range projects {
		if err := setRow(f, ProjectsSheet, i+2, projectRow(p)); err != nil {
			return err
		}

		title := SanitizeSheetName(p.Name)
		if sheetExists(f, title) {
			log.Printf("[ExportWorkbook] Skipping stages of %q: sheet %q already used", p.Name, title)
			continue
		}
		stages, err := src.ReadStages(p.Name)
		if err != nil {
			return fmt.Errorf("failed to read stages of %q: %w", p.Name, err)
		}
		if _, err := f.NewSheet(title); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", title, err)
		}
		if err := setRow(f, title, 1, stringsToRow(stageHeaders)); err != nil {
			return err
		}
		for j, rec := range stages {
			if err := setRow(f, title, j+2, stageRow(rec)); err != nil {
				return err
			}
		}
		exported++
	}

	if err := saveWorkbook(f, path); err != nil {
		return err
	}
	log.Printf("[ExportWorkbook] Exported %d projects to %s", exported, path)
	return nil
}
