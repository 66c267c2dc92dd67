package bot

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/looplab/fsm"

	"github.com/iabalyuk/etapy/callback"
	"github.com/iabalyuk/etapy/panel"
	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
)

const (
	cancelledText      = "Cancelled."
	percentFormatError = "Enter a whole number from 0 to 100."
	percentRangeError  = "The range is 0-100."
)

// sessionStore is the per-user session persistence
type sessionStore interface {
	Load(userID int64) session.Session
	Save(userID int64, sess session.Session) error
	Delete(userID int64) error
}

// Router turns updates into session transitions and panel renders
type Router struct {
	api      telegramAPI
	storage  storage.StorageInterface
	sessions sessionStore
	sticky   *Sticky
	locks    *userLocks
	now      func() time.Time
	debug    bool
}

// NewRouter creates a router. api should already be rate limited.
func NewRouter(api telegramAPI, store storage.StorageInterface, sessions sessionStore, debug bool) *Router {
	return &Router{
		api:      api,
		storage:  store,
		sessions: sessions,
		sticky:   NewSticky(api, debug),
		locks:    newUserLocks(),
		now:      time.Now,
		debug:    debug,
	}
}

// turn is the state of one update being handled
type turn struct {
	ctx     context.Context
	userID  int64
	chatID  int64
	editor  storage.Editor
	sess    session.Session
	screens *fsm.FSM

	problem string // error banner for the percent screen
	notice  string // callback answer text
	alert   bool
	render  bool
}

func (r *Router) newTurn(ctx context.Context, user *tgbotapi.User, chatID int64) *turn {
	sess := r.sessions.Load(user.ID)
	if sess.Date == "" {
		sess.Date = r.today()
	}
	return &turn{
		ctx:     ctx,
		userID:  user.ID,
		chatID:  chatID,
		editor:  editorFrom(user),
		sess:    sess,
		screens: newScreens(sess, r.debug),
	}
}

// goTo moves to the screen reached by event and schedules a render. An event
// that is not allowed from the current screen only re-renders it.
func (t *turn) goTo(event string) bool {
	t.render = true
	return fire(t.ctx, t.screens, event)
}

// show jumps to screen without validation. Pending input decides where typed
// text and photos land, whatever screen the panel was on.
func (t *turn) show(screen string) {
	t.screens.SetState(screen)
	t.render = true
}

// failSave records a storage failure on an explicit edit
func (t *turn) failSave(op string, err error) {
	log.Printf("[router] user %d: %s failed: %v", t.userID, op, err)
	t.notice = panel.SaveFailedAlert
	t.alert = true
}

// HandleUpdate routes one update. Updates of the same user are handled one at a time.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		unlock := r.locks.lock(update.Message.From.ID)
		defer unlock()
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		unlock := r.locks.lock(update.CallbackQuery.From.ID)
		defer unlock()
		r.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage handles commands, typed text and photos
func (r *Router) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	t := r.newTurn(ctx, message.From, message.Chat.ID)

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			r.handleStartCommand(t)
		case "help":
			t.goTo(evHelp)
		case "cancel":
			r.handleCancelCommand(t)
			return
		default:
			if r.debug {
				log.Printf("[router] user %d: unknown command /%s", t.userID, message.Command())
			}
			return
		}
		r.finish(t)
		return
	}

	switch {
	case len(message.Photo) > 0:
		if !r.handlePhoto(t, message) {
			return
		}
	case message.Text != "":
		text := strings.TrimSpace(message.Text)
		r.deleteMessage(t.chatID, message.MessageID)
		if !r.handleText(t, text) {
			return
		}
	default:
		return
	}
	r.finish(t)
}

// handleStartCommand resets the selection to a fresh home screen on today's date
func (r *Router) handleStartCommand(t *turn) {
	t.sess = session.Session{
		Date:           r.today(),
		PanelMessageID: t.sess.PanelMessageID,
	}
	t.show(screenHome)
}

// handleCancelCommand removes the panel and forgets the session
func (r *Router) handleCancelCommand(t *turn) {
	r.deleteMessage(t.chatID, t.sess.PanelMessageID)
	if err := r.sessions.Delete(t.userID); err != nil {
		log.Printf("[router] user %d: failed to delete session: %v", t.userID, err)
	}
	if _, err := r.api.Send(tgbotapi.NewMessage(t.chatID, cancelledText)); err != nil {
		log.Printf("[router] user %d: failed to confirm cancel: %v", t.userID, err)
	}
}

// handleText interprets typed text through the pending input. It returns
// false when the text is not expected and nothing changes.
func (r *Router) handleText(t *turn, text string) bool {
	pending := t.sess.Pending
	if pending == nil || pending.Kind != session.KindText {
		return false
	}

	if pending.Field == session.FieldProjectName {
		if text != "" {
			created, err := r.storage.AddProject(text)
			switch {
			case errors.Is(err, storage.ErrSheetConflict):
				log.Printf("[router] user %d: project %q rejected: %v", t.userID, text, err)
			case err != nil:
				log.Printf("[router] user %d: failed to add project %q: %v", t.userID, text, err)
			case created:
				log.Printf("[router] user %d added project %q", t.userID, text)
			}
		}
		t.sess.ClearPending()
		t.show(screenHome)
		return true
	}

	code := storage.StageCode(t.sess.Stage)
	if t.sess.Project == "" || !code.Valid() {
		t.sess.GoHome()
		t.show(screenHome)
		return true
	}

	var upd storage.StageUpdate
	switch pending.Field {
	case session.FieldTodo:
		upd.ToFinish = storage.StringPtr(text)
	case session.FieldNotes:
		upd.Notes = storage.StringPtr(text)
	case session.FieldPercent:
		pct, ok := callback.ParsePercent(text)
		if !ok {
			t.problem = percentFormatError
			if isDigits(text) {
				t.problem = percentRangeError
			}
			t.show(screenPercent)
			return true
		}
		upd.Percent = storage.IntPtr(pct)
	default:
		t.sess.ClearPending()
		t.show(screenStage)
		return true
	}

	if err := r.storage.UpdateStage(t.sess.Project, code, upd, t.editor); err != nil {
		log.Printf("[router] user %d: failed to save %s of %s/%s: %v", t.userID, pending.Field, t.sess.Project, code, err)
	}
	t.sess.ClearPending()
	t.show(screenStage)
	return true
}

// handlePhoto stores the largest size of a photo when one is expected
func (r *Router) handlePhoto(t *turn, message *tgbotapi.Message) bool {
	if t.sess.Pending == nil || t.sess.Pending.Kind != session.KindPhoto {
		return false
	}
	code := storage.StageCode(t.sess.Stage)
	if t.sess.Project == "" || !code.Valid() {
		t.sess.ClearPending()
		t.show(screenHome)
		return true
	}

	fileID := message.Photo[len(message.Photo)-1].FileID
	if err := r.storage.AppendPhoto(t.sess.Project, code, fileID, t.editor); err != nil {
		log.Printf("[router] user %d: failed to add photo to %s/%s: %v", t.userID, t.sess.Project, code, err)
	}
	r.deleteMessage(t.chatID, message.MessageID)
	t.sess.ClearPending()
	t.show(screenStage)
	return true
}

// handleCallbackQuery handles button presses. Every query is answered.
func (r *Router) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.From.ID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	t := r.newTurn(ctx, query.From, chatID)

	data, err := callback.Parse(query.Data)
	if err != nil {
		log.Printf("[router] user %d: %v", t.userID, err)
		t.render = true
	} else {
		r.dispatch(t, data)
	}

	r.answerCallbackQuery(query.ID, t.notice, t.alert)
	if t.render {
		r.finish(t)
	}
}

func (r *Router) dispatch(t *turn, d callback.Data) {
	switch d.Kind {
	case callback.Noop:
		return

	case callback.NavHome:
		t.sess.GoHome()
		t.goTo(evGoHome)

	case callback.ProjectAdd:
		if t.goTo(evAddProject) {
			t.sess.Pending = session.AwaitText(session.FieldProjectName)
		}

	case callback.ProjectArchive:
		if t.goTo(evOpenArchive) {
			t.sess.ClearPending()
		}

	case callback.ArchiveToggle:
		if !t.goTo(evOpenArchive) {
			return
		}
		projects, err := r.storage.ListProjects(false)
		if err != nil {
			t.failSave("list projects", err)
			return
		}
		if d.Index < len(projects) {
			p := projects[d.Index]
			if err := r.storage.SetProjectActive(p.Name, !p.Active); err != nil {
				t.failSave("toggle active", err)
			}
		}

	case callback.ProjectOpen:
		projects, err := r.storage.ListProjects(true)
		if err != nil || d.Index >= len(projects) {
			t.goTo(evGoHome)
			return
		}
		if t.goTo(evOpenProject) {
			t.sess.SelectProject(projects[d.Index].Name)
		}

	case callback.ProjectFinish:
		if t.sess.Project == "" {
			t.sess.GoHome()
			t.goTo(evGoHome)
			return
		}
		if !t.goTo(evFinish) {
			return
		}
		if err := r.storage.SetProjectFinished(t.sess.Project, true); err != nil {
			t.failSave("finish project", err)
			t.show(screenProject)
		}

	case callback.ProjectToggleActive:
		if t.sess.Project != "" {
			if err := r.toggleActive(t.sess.Project); err != nil {
				t.failSave("toggle active", err)
			}
		}
		// Selection stays; only the screen changes
		t.sess.ClearPending()
		t.goTo(evGoHome)

	case callback.ProjectBack:
		if t.goTo(evBackToProject) {
			t.sess.Stage = ""
			t.sess.ClearPending()
		}

	case callback.StageOpen:
		if t.sess.Project == "" {
			t.goTo(evGoHome)
			return
		}
		if t.goTo(evOpenStage) {
			t.sess.SelectStage(string(d.Stage))
		}

	case callback.StageSetTodo:
		r.awaitOnStage(t, session.AwaitText(session.FieldTodo))
	case callback.StageSetNotes:
		r.awaitOnStage(t, session.AwaitText(session.FieldNotes))
	case callback.StageAddPhoto:
		r.awaitOnStage(t, session.AwaitPhoto())

	case callback.StageSetPercent:
		if t.sess.Project == "" {
			t.goTo(evGoHome)
			return
		}
		if t.goTo(evOpenPercent) {
			t.sess.SelectStage(string(d.Stage))
		}

	case callback.StageClear:
		upd := storage.StageUpdate{ToFinish: storage.StringPtr("")}
		if d.Field == "notes" {
			upd = storage.StageUpdate{Notes: storage.StringPtr("")}
		}
		r.writeStage(t, d.Stage, upd, "Cleared ✅")

	case callback.StageSave:
		r.writeStage(t, d.Stage, storage.StageUpdate{}, "Saved ✅")

	case callback.PercentSet:
		if d.Manual {
			if t.sess.Project == "" {
				t.goTo(evGoHome)
				return
			}
			if t.goTo(evBackToStage) {
				t.sess.Stage = string(d.Stage)
				t.sess.Pending = session.AwaitText(session.FieldPercent)
			}
			return
		}
		r.writeStage(t, d.Stage, storage.StageUpdate{Percent: storage.IntPtr(d.Percent)}, "Percent set ✅")

	case callback.PercentBack:
		t.goTo(evBackToStage)

	case callback.DateOpen:
		if t.goTo(evOpenCalendar) {
			t.sess.CalendarMonth = r.now().Format("2006-01")
		}

	case callback.CalendarMonth:
		if t.goTo(evOpenCalendar) {
			t.sess.CalendarMonth = time.Date(d.Year, d.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
		}

	case callback.DayPick:
		t.sess.Date = d.Day
		t.sess.CalendarMonth = ""
		t.goTo(evGoHome)
	}
}

// awaitOnStage waits for text or a photo for the selected stage
func (r *Router) awaitOnStage(t *turn, pending *session.PendingInput) {
	if t.sess.Project == "" || !storage.StageCode(t.sess.Stage).Valid() {
		t.sess.GoHome()
		t.goTo(evGoHome)
		return
	}
	if t.goTo(evBackToStage) {
		t.sess.Pending = pending
	}
}

// writeStage applies an explicit edit to code of the selected project and
// shows that stage
func (r *Router) writeStage(t *turn, code storage.StageCode, upd storage.StageUpdate, done string) {
	if t.sess.Project == "" {
		t.sess.GoHome()
		t.goTo(evGoHome)
		return
	}
	if !t.goTo(evBackToStage) {
		return
	}
	t.sess.Stage = string(code)
	t.sess.ClearPending()
	if err := r.storage.UpdateStage(t.sess.Project, code, upd, t.editor); err != nil {
		t.failSave("update stage", err)
		return
	}
	t.notice = done
}

func (r *Router) toggleActive(name string) error {
	projects, err := r.storage.ListProjects(false)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p.Name == name {
			return r.storage.SetProjectActive(name, !p.Active)
		}
	}
	return storage.ErrUnknownProject
}

// finish persists the session, then brings the panel up to date. Nothing is
// shown until the session is saved.
func (r *Router) finish(t *turn) {
	view := r.view(t)
	t.sess.Screen = t.screens.Current()
	if err := r.sessions.Save(t.userID, t.sess); err != nil {
		log.Printf("[router] user %d: failed to save session: %v", t.userID, err)
		return
	}

	panelID, err := r.sticky.Reconcile(t.chatID, t.sess.PanelMessageID, view)
	if err != nil {
		log.Printf("[router] user %d: %v", t.userID, err)
	}
	if panelID == t.sess.PanelMessageID {
		return
	}
	t.sess.PanelMessageID = panelID
	if err := r.sessions.Save(t.userID, t.sess); err != nil {
		log.Printf("[router] user %d: failed to save panel id %d: %v", t.userID, panelID, err)
	}
}

func (r *Router) today() string {
	return r.now().Format(callback.DayLayout)
}

// isDigits reports whether s is a non-empty run of ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
