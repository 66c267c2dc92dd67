// Package panel renders the screens of the sticky panel. Every function is
// pure: the same inputs always give byte-identical text and keyboards, which
// lets the sticky controller treat a repeated render as "not modified".
package panel

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
)

// PreviewLimit is the longest outstanding-work preview shown on the project view
const PreviewLimit = 60

// Text shown when a storage write fails on an explicit edit
const SaveFailedAlert = "Could not save, try again."

// View is one rendered screen, sent with ParseMode HTML
type View struct {
	Text     string
	Keyboard tgbotapi.InlineKeyboardMarkup
}

var fieldLabels = map[session.Field]string{
	session.FieldProjectName: "Project name",
	session.FieldTodo:        "To finish",
	session.FieldNotes:       "Notes",
	session.FieldPercent:     "% complete",
	session.FieldPhoto:       "Photo",
}

// Home lists the active projects
func Home(sess session.Session, projects []storage.Project) View {
	var b strings.Builder
	writeBanner(&b, sess)
	fmt.Fprintf(&b, "🏗️ <b>Projects</b>  |  📅 %s\n", escape(sess.Date))
	if len(projects) == 0 {
		b.WriteString("\nNo projects yet. Add the first one 👇")
	}
	return View{Text: strings.TrimRight(b.String(), "\n"), Keyboard: homeKeyboard(sess, projects)}
}

// Project shows the stage summary and the open work of one project
func Project(sess session.Session, project string, stages []storage.StageRecord) View {
	var b strings.Builder
	writeBanner(&b, sess)
	fmt.Fprintf(&b, "🏗️ <b>%s</b>\n", escape(project))
	fmt.Fprintf(&b, "📊 Stage progress: %s\n\n", Summary(stages))
	b.WriteString("👇 Pick a stage. Open work:")
	for _, rec := range stages {
		todo := strings.TrimSpace(rec.ToFinish)
		if todo == "" {
			continue
		}
		pct := ""
		if rec.Percent != nil {
			pct = fmt.Sprintf(" (📊 %d%%)", *rec.Percent)
		}
		fmt.Fprintf(&b, "\n• %s%s: 🔧 %s", escape(rec.Code.Name()), pct, escape(Preview(todo)))
	}
	return View{Text: b.String(), Keyboard: projectKeyboard()}
}

// Stage shows every field of one stage record
func Stage(sess session.Session, project string, rec storage.StageRecord) View {
	var b strings.Builder
	writeBanner(&b, sess)
	fmt.Fprintf(&b, "🏗️ <b>%s</b>  →  %s\n\n", escape(project), escape(rec.Code.Name()))
	fmt.Fprintf(&b, "📊 %% complete: %s\n", percentText(rec.Percent))
	fmt.Fprintf(&b, "🔧 To finish:\n%s\n", orDash(rec.ToFinish))
	fmt.Fprintf(&b, "📝 Notes:\n%s\n", orDash(rec.Notes))
	fmt.Fprintf(&b, "🖼 Photos: %d\n", len(rec.Photos))
	fmt.Fprintf(&b, "⏱ Last change: %s  |  👤 %s\n\n", orDash(rec.LastUpdated), orDash(rec.LastEditor))
	b.WriteString("Choose an action below 👇")
	return View{Text: b.String(), Keyboard: stageKeyboard(sess, rec.Code)}
}

// Percent is the quick-set keyboard. A non-empty problem is shown as an error banner.
func Percent(code storage.StageCode, problem string) View {
	text := "📊 Set % complete for " + escape(code.Name()) + ":"
	if problem != "" {
		text = "⚠️ " + escape(problem) + "\n" + text
	}
	return View{Text: text, Keyboard: percentKeyboard(code)}
}

// Calendar is the informational date picker for year/month
func Calendar(year int, month time.Month, today time.Time) View {
	return View{
		Text:     "📅 Pick a date (informational):",
		Keyboard: calendarKeyboard(year, month, today),
	}
}

// Archive lists every project with its active flag
func Archive(projects []storage.Project) View {
	text := "🗄 <b>Archive / Active</b> (tap to toggle):"
	if len(projects) == 0 {
		text += "\nNo projects."
	}
	return View{Text: text, Keyboard: archiveKeyboard(projects)}
}

// Finished confirms that a project was marked finished
func Finished(project string) View {
	return View{
		Text:     fmt.Sprintf("🎉 <b>%s</b> marked as finished. 💪", escape(project)),
		Keyboard: backHomeKeyboard("↩️ Back"),
	}
}

// Help lists the commands and how the panel works
func Help() View {
	text := "🤖 <b>Help</b>\n" +
		"• /start opens the project list, adding and the archive.\n" +
		"• Project → Stage → edit fields. Changes are saved at once and show up in the panel.\n" +
		"• ○/● dots show that I am waiting for text or a photo.\n" +
		"• /cancel removes the panel and forgets your selection."
	return View{Text: text, Keyboard: backHomeKeyboard("↩️ Back")}
}

// Summary is the one-line percent overview, e.g. "1 50% | 2 - | … | Extra -"
func Summary(stages []storage.StageRecord) string {
	byCode := make(map[storage.StageCode]storage.StageRecord, len(stages))
	for _, rec := range stages {
		byCode[rec.Code] = rec
	}
	parts := make([]string, 0, len(storage.Stages))
	for _, def := range storage.Stages {
		parts = append(parts, def.Short+" "+percentText(byCode[def.Code].Percent))
	}
	return strings.Join(parts, " | ")
}

// Preview cuts s to PreviewLimit characters, ending with an ellipsis when cut
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLimit-3]) + "…"
}

func writeBanner(b *strings.Builder, sess session.Session) {
	if sess.Pending == nil {
		return
	}
	label, ok := fieldLabels[sess.Pending.Field]
	if !ok {
		label = string(sess.Pending.Field)
	}
	where := ""
	if sess.Project != "" {
		where = " (project: " + escape(sess.Project)
		if code := storage.StageCode(sess.Stage); code.Valid() {
			where += " | " + escape(code.Name())
		}
		where += ")"
	}
	fmt.Fprintf(b, "✍️ <b>Waiting for:</b> %s%s. Send it now.\n\n", label, where)
}

func percentText(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p) + "%"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return escape(s)
}

func escape(s string) string {
	return html.EscapeString(s)
}
