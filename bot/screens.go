package bot

import (
	"context"
	"errors"
	"log"

	"github.com/looplab/fsm"

	"github.com/iabalyuk/etapy/session"
)

// Screens of the panel
const (
	screenHome     = "home"
	screenProject  = "project"
	screenStage    = "stage"
	screenPercent  = "percent"
	screenCalendar = "calendar"
	screenArchive  = "archive"
	screenFinished = "finished"
	screenHelp     = "help"
)

// Navigation events
const (
	evGoHome        = "go_home"
	evAddProject    = "add_project"
	evOpenProject   = "open_project"
	evBackToProject = "back_to_project"
	evOpenStage     = "open_stage"
	evBackToStage   = "back_to_stage"
	evOpenPercent   = "open_percent"
	evOpenCalendar  = "open_calendar"
	evOpenArchive   = "open_archive"
	evFinish        = "finish"
	evHelp          = "help"
)

var allScreens = []string{
	screenHome, screenProject, screenStage, screenPercent,
	screenCalendar, screenArchive, screenFinished, screenHelp,
}

var screenEvents = fsm.Events{
	{Name: evGoHome, Src: allScreens, Dst: screenHome},
	{Name: evHelp, Src: allScreens, Dst: screenHelp},
	{Name: evAddProject, Src: []string{screenHome}, Dst: screenHome},
	{Name: evOpenProject, Src: []string{screenHome}, Dst: screenProject},
	{Name: evBackToProject, Src: []string{screenProject, screenStage, screenPercent}, Dst: screenProject},
	{Name: evOpenStage, Src: []string{screenProject, screenStage, screenPercent}, Dst: screenStage},
	{Name: evBackToStage, Src: []string{screenStage, screenPercent}, Dst: screenStage},
	{Name: evOpenPercent, Src: []string{screenStage, screenPercent}, Dst: screenPercent},
	{Name: evOpenCalendar, Src: []string{screenHome, screenCalendar}, Dst: screenCalendar},
	{Name: evOpenArchive, Src: []string{screenHome, screenArchive}, Dst: screenArchive},
	{Name: evFinish, Src: []string{screenProject}, Dst: screenFinished},
}

// screenOf returns the screen the session was left on. Older sessions
// without a screen are placed by their selection.
func screenOf(sess session.Session) string {
	for _, s := range allScreens {
		if sess.Screen == s {
			return s
		}
	}
	switch {
	case sess.Project != "" && sess.Stage != "":
		return screenStage
	case sess.Project != "":
		return screenProject
	default:
		return screenHome
	}
}

// newScreens builds the screen machine positioned on the session's screen
func newScreens(sess session.Session, debug bool) *fsm.FSM {
	callbacks := fsm.Callbacks{}
	if debug {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			log.Printf("[screens] %s: %s -> %s", e.Event, e.Src, e.Dst)
		}
	}
	return fsm.NewFSM(screenOf(sess), screenEvents, callbacks)
}

// fire moves the machine with event. Staying on the same screen is not an
// error; false means the event is not allowed from the current screen.
func fire(ctx context.Context, m *fsm.FSM, event string) bool {
	err := m.Event(ctx, event)
	if err == nil {
		return true
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return true
	}
	log.Printf("[screens] %s not allowed on %s: %v", event, m.Current(), err)
	return false
}
