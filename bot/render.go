package bot

import (
	"errors"
	"log"
	"time"

	"github.com/iabalyuk/etapy/panel"
	"github.com/iabalyuk/etapy/storage"
)

// view renders the screen the turn ended on. Data that cannot be read falls
// back to a screen that can be shown.
func (r *Router) view(t *turn) panel.View {
	switch t.screens.Current() {
	case screenProject:
		stages, err := r.storage.ReadStages(t.sess.Project)
		if err != nil {
			return r.fallbackHome(t, "read project", err)
		}
		return panel.Project(t.sess, t.sess.Project, stages)

	case screenStage:
		rec, err := r.storage.ReadStage(t.sess.Project, storage.StageCode(t.sess.Stage))
		if err != nil {
			return r.fallbackHome(t, "read stage", err)
		}
		return panel.Stage(t.sess, t.sess.Project, rec)

	case screenPercent:
		code := storage.StageCode(t.sess.Stage)
		if !code.Valid() {
			return r.fallbackHome(t, "percent", storage.ErrUnknownStage)
		}
		return panel.Percent(code, t.problem)

	case screenCalendar:
		month, err := time.Parse("2006-01", t.sess.CalendarMonth)
		if err != nil {
			month = r.now()
		}
		return panel.Calendar(month.Year(), month.Month(), r.now())

	case screenArchive:
		projects, err := r.storage.ListProjects(false)
		if err != nil {
			log.Printf("[router] user %d: failed to list projects: %v", t.userID, err)
		}
		return panel.Archive(projects)

	case screenFinished:
		return panel.Finished(t.sess.Project)

	case screenHelp:
		return panel.Help()
	}
	return r.homeView(t)
}

func (r *Router) homeView(t *turn) panel.View {
	projects, err := r.storage.ListProjects(true)
	if err != nil {
		log.Printf("[router] user %d: failed to list projects: %v", t.userID, err)
	}
	return panel.Home(t.sess, projects)
}

// fallbackHome shows home when the selected project or stage cannot be read.
// The selection is only dropped when it no longer exists.
func (r *Router) fallbackHome(t *turn, op string, err error) panel.View {
	log.Printf("[router] user %d: %s failed: %v", t.userID, op, err)
	if errors.Is(err, storage.ErrUnknownProject) || errors.Is(err, storage.ErrUnknownStage) {
		t.sess.GoHome()
		t.screens.SetState(screenHome)
	}
	return r.homeView(t)
}
