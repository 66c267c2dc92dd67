package storage

import (
	"strconv"
	"strings"
	"time"
)

// StageCode identifies one of the seven fixed project stages
type StageCode string

const (
	S1 StageCode = "S1"
	S2 StageCode = "S2"
	S3 StageCode = "S3"
	S4 StageCode = "S4"
	S5 StageCode = "S5"
	S6 StageCode = "S6"
	S7 StageCode = "S7"
)

// MaxPhotos caps the photo reference list of a stage
const MaxPhotos = 200

// TimestampLayout is the format of StageRecord.LastUpdated. Seconds are kept so
// consecutive edits produce distinguishable panels.
const TimestampLayout = "02.01.2006 15:04:05"

// StageDef describes a stage: its code, display name and short label used in summaries
type StageDef struct {
	Code  StageCode
	Name  string
	Short string
}

// Stages lists every stage in display order
var Stages = []StageDef{
	{Code: S1, Name: "Stage 1", Short: "1"},
	{Code: S2, Name: "Stage 2", Short: "2"},
	{Code: S3, Name: "Stage 3", Short: "3"},
	{Code: S4, Name: "Stage 4", Short: "4"},
	{Code: S5, Name: "Stage 5", Short: "5"},
	{Code: S6, Name: "Stage 6", Short: "6"},
	{Code: S7, Name: "Extra work", Short: "Extra"},
}

// Valid reports whether c is one of S1..S7
func (c StageCode) Valid() bool {
	_, ok := stageDef(c)
	return ok
}

// Name returns the display name of the stage or "" for invalid codes
func (c StageCode) Name() string {
	def, _ := stageDef(c)
	return def.Name
}

// Short returns the abbreviated label used in the project summary line
func (c StageCode) Short() string {
	def, _ := stageDef(c)
	return def.Short
}

func stageDef(c StageCode) (StageDef, bool) {
	for _, def := range Stages {
		if def.Code == c {
			return def, true
		}
	}
	return StageDef{}, false
}

// StageByName maps a display name back to its code
func StageByName(name string) (StageCode, bool) {
	for _, def := range Stages {
		if def.Name == name {
			return def.Code, true
		}
	}
	return "", false
}

// Project is a construction project. Name is the natural key.
type Project struct {
	Name      string
	Active    bool
	Finished  bool
	CreatedAt string // RFC 3339
}

// StageRecord holds the progress of one stage of one project
type StageRecord struct {
	Code         StageCode
	Percent      *int // nil when unset
	ToFinish     string
	Notes        string
	Finished     bool
	LastUpdated  string
	Photos       []string
	LastEditor   string
	LastEditorID string
}

// StageUpdate carries the fields to change; nil fields are left untouched
type StageUpdate struct {
	Percent  *int
	ToFinish *string
	Notes    *string
}

// Editor identifies who made a change
type Editor struct {
	Name string
	ID   int64
}

// IntPtr and StringPtr are small helpers for building a StageUpdate
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }

func emptyStage(code StageCode) StageRecord {
	return StageRecord{Code: code}
}

// applyUpdate mutates rec with upd and stamps the edit
func applyUpdate(rec *StageRecord, upd StageUpdate, editor Editor, now time.Time) {
	if upd.Percent != nil {
		rec.Percent = IntPtr(*upd.Percent)
	}
	if upd.ToFinish != nil {
		rec.ToFinish = *upd.ToFinish
	}
	if upd.Notes != nil {
		rec.Notes = *upd.Notes
	}
	stamp(rec, editor, now)
}

func stamp(rec *StageRecord, editor Editor, now time.Time) {
	rec.LastUpdated = now.Format(TimestampLayout)
	rec.LastEditor = editor.Name
	rec.LastEditorID = strconv.FormatInt(editor.ID, 10)
}

// appendPhoto returns photos with ref appended, dropping the oldest entries beyond MaxPhotos
func appendPhoto(photos []string, ref string) []string {
	out := make([]string, 0, len(photos)+1)
	out = append(out, photos...)
	out = append(out, ref)
	if len(out) > MaxPhotos {
		out = out[len(out)-MaxPhotos:]
	}
	return out
}

func joinPhotos(photos []string) string {
	return strings.Join(photos, " ")
}

func splitPhotos(s string) []string {
	return strings.Fields(s)
}

func normalizeProjectName(name string) string {
	return strings.TrimSpace(name)
}

func boolCell(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}
