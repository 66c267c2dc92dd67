// Package callback parses and builds the inline-button tokens of the panel.
// Tokens look like domain:action[:args] and must fit Telegram's 64 byte limit.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iabalyuk/etapy/storage"
)

// ErrMalformed is returned for tokens that are not part of the grammar
var ErrMalformed = errors.New("malformed callback data")

// MaxLen is the Telegram limit for callback_data
const MaxLen = 64

// DayLayout is the date format used in day tokens and sessions
const DayLayout = "02.01.2006"

// Kind identifies a button action
type Kind int

const (
	Noop Kind = iota
	NavHome
	ProjectAdd
	ProjectArchive
	ArchiveToggle // Index
	ProjectOpen   // Index
	ProjectFinish
	ProjectToggleActive
	ProjectBack
	StageOpen // Stage
	StageSetTodo
	StageSetNotes
	StageSetPercent // Stage
	StageAddPhoto
	StageClear // Field, Stage
	StageSave  // Stage
	PercentSet // Stage, Percent or Manual
	PercentBack
	DateOpen
	CalendarMonth // Year, Month
	DayPick       // Day
)

// Data is a decoded callback token. Only the fields of its Kind are set.
type Data struct {
	Kind    Kind
	Index   int
	Stage   storage.StageCode
	Field   string // todo or notes
	Percent int
	Manual  bool
	Day     string
	Year    int
	Month   time.Month
}

// Parse decodes raw into Data
func Parse(raw string) (Data, error) {
	if raw == "" || len(raw) > MaxLen {
		return Data{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	parts := strings.Split(raw, ":")
	d, ok := parse(parts)
	if !ok {
		return Data{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return d, nil
}

func parse(p []string) (Data, bool) {
	switch p[0] {
	case "noop":
		return Data{Kind: Noop}, len(p) == 1
	case "nav":
		return Data{Kind: NavHome}, len(p) == 2 && p[1] == "home"
	case "date":
		return Data{Kind: DateOpen}, len(p) == 2 && p[1] == "open"
	case "proj":
		return parseProject(p)
	case "arch":
		if len(p) != 3 || p[1] != "tog" {
			return Data{}, false
		}
		i, ok := index(p[2])
		return Data{Kind: ArchiveToggle, Index: i}, ok
	case "stage":
		return parseStage(p)
	case "pct":
		return parsePercent(p)
	case "cal":
		if len(p) != 2 {
			return Data{}, false
		}
		t, err := time.Parse("2006-01", p[1])
		if err != nil {
			return Data{}, false
		}
		return Data{Kind: CalendarMonth, Year: t.Year(), Month: t.Month()}, true
	case "day":
		if len(p) != 2 {
			return Data{}, false
		}
		if _, err := time.Parse(DayLayout, p[1]); err != nil {
			return Data{}, false
		}
		return Data{Kind: DayPick, Day: p[1]}, true
	}
	return Data{}, false
}

func parseProject(p []string) (Data, bool) {
	if len(p) == 2 {
		switch p[1] {
		case "add":
			return Data{Kind: ProjectAdd}, true
		case "arch":
			return Data{Kind: ProjectArchive}, true
		case "finish":
			return Data{Kind: ProjectFinish}, true
		case "toggle_active":
			return Data{Kind: ProjectToggleActive}, true
		case "back":
			return Data{Kind: ProjectBack}, true
		}
		return Data{}, false
	}
	if len(p) == 3 && p[1] == "open" {
		i, ok := index(p[2])
		return Data{Kind: ProjectOpen, Index: i}, ok
	}
	return Data{}, false
}

func parseStage(p []string) (Data, bool) {
	switch {
	case len(p) == 3 && p[1] == "set" && p[2] == "todo":
		return Data{Kind: StageSetTodo}, true
	case len(p) == 3 && p[1] == "set" && p[2] == "notes":
		return Data{Kind: StageSetNotes}, true
	case len(p) == 2 && p[1] == "add_photo":
		return Data{Kind: StageAddPhoto}, true
	case len(p) == 3 && p[1] == "open":
		code, ok := stageCode(p[2])
		return Data{Kind: StageOpen, Stage: code}, ok
	case len(p) == 3 && p[1] == "save":
		code, ok := stageCode(p[2])
		return Data{Kind: StageSave, Stage: code}, ok
	case len(p) == 4 && p[1] == "set" && p[2] == "percent":
		code, ok := stageCode(p[3])
		return Data{Kind: StageSetPercent, Stage: code}, ok
	case len(p) == 4 && p[1] == "clear" && (p[2] == "todo" || p[2] == "notes"):
		code, ok := stageCode(p[3])
		return Data{Kind: StageClear, Field: p[2], Stage: code}, ok
	}
	return Data{}, false
}

func parsePercent(p []string) (Data, bool) {
	if len(p) == 2 && p[1] == "back" {
		return Data{Kind: PercentBack}, true
	}
	if len(p) != 3 {
		return Data{}, false
	}
	code, ok := stageCode(p[1])
	if !ok {
		return Data{}, false
	}
	if p[2] == "manual" {
		return Data{Kind: PercentSet, Stage: code, Manual: true}, true
	}
	pct, ok := ParsePercent(p[2])
	return Data{Kind: PercentSet, Stage: code, Percent: pct}, ok
}

// ParsePercent accepts one to three ASCII digits forming a value in 0..100
func ParsePercent(s string) (int, bool) {
	if len(s) < 1 || len(s) > 3 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil || v > 100 {
		return 0, false
	}
	return v, true
}

func stageCode(s string) (storage.StageCode, bool) {
	code := storage.StageCode(s)
	return code, code.Valid()
}

func index(s string) (int, bool) {
	if len(s) == 0 || len(s) > 4 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	return v, err == nil
}

// Encode renders d as a token. Encode(Parse(x)) == x for every valid token.
func Encode(d Data) string {
	switch d.Kind {
	case NavHome:
		return "nav:home"
	case ProjectAdd:
		return "proj:add"
	case ProjectArchive:
		return "proj:arch"
	case ArchiveToggle:
		return "arch:tog:" + strconv.Itoa(d.Index)
	case ProjectOpen:
		return "proj:open:" + strconv.Itoa(d.Index)
	case ProjectFinish:
		return "proj:finish"
	case ProjectToggleActive:
		return "proj:toggle_active"
	case ProjectBack:
		return "proj:back"
	case StageOpen:
		return "stage:open:" + string(d.Stage)
	case StageSetTodo:
		return "stage:set:todo"
	case StageSetNotes:
		return "stage:set:notes"
	case StageSetPercent:
		return "stage:set:percent:" + string(d.Stage)
	case StageAddPhoto:
		return "stage:add_photo"
	case StageClear:
		return "stage:clear:" + d.Field + ":" + string(d.Stage)
	case StageSave:
		return "stage:save:" + string(d.Stage)
	case PercentSet:
		if d.Manual {
			return "pct:" + string(d.Stage) + ":manual"
		}
		return "pct:" + string(d.Stage) + ":" + strconv.Itoa(d.Percent)
	case PercentBack:
		return "pct:back"
	case DateOpen:
		return "date:open"
	case CalendarMonth:
		return fmt.Sprintf("cal:%04d-%02d", d.Year, int(d.Month))
	case DayPick:
		return "day:" + d.Day
	}
	return "noop"
}
