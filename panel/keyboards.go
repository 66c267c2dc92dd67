package panel

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iabalyuk/etapy/callback"
	"github.com/iabalyuk/etapy/session"
	"github.com/iabalyuk/etapy/storage"
)

// QuickPercents are the one-tap percent values
var QuickPercents = []int{0, 25, 50, 75, 90, 100}

var weekdays = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

func button(label string, d callback.Data) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, callback.Encode(d))
}

// mark prefixes a label with ● when on, ○ otherwise
func mark(label string, on bool) string {
	if on {
		return "● " + label
	}
	return "○ " + label
}

func homeKeyboard(sess session.Session, projects []storage.Project) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{button("📅 Date: "+sess.Date, callback.Data{Kind: callback.DateOpen})},
	}
	for i, p := range projects {
		label := "🏗️ " + p.Name
		if p.Finished {
			label = "✅ " + p.Name
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(label, callback.Data{Kind: callback.ProjectOpen, Index: i})))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button(mark("➕ Add project", sess.Awaiting(session.FieldProjectName)), callback.Data{Kind: callback.ProjectAdd})),
		tgbotapi.NewInlineKeyboardRow(button("🗄 Archive", callback.Data{Kind: callback.ProjectArchive})),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func projectKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, def := range storage.Stages {
		row = append(row, button(def.Name, callback.Data{Kind: callback.StageOpen, Stage: def.Code}))
		// Two stages per row
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			button("✅ Mark finished", callback.Data{Kind: callback.ProjectFinish}),
			button("📦 Archive/Restore", callback.Data{Kind: callback.ProjectToggleActive}),
		),
		tgbotapi.NewInlineKeyboardRow(button("↩️ Back", callback.Data{Kind: callback.NavHome})),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func stageKeyboard(sess session.Session, code storage.StageCode) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(mark("🔧 To finish", sess.Awaiting(session.FieldTodo)), callback.Data{Kind: callback.StageSetTodo}),
			button(mark("📝 Notes", sess.Awaiting(session.FieldNotes)), callback.Data{Kind: callback.StageSetNotes}),
		),
		tgbotapi.NewInlineKeyboardRow(
			button(mark("📊 % (0/25/50/75/90/100)", sess.Awaiting(session.FieldPercent)), callback.Data{Kind: callback.StageSetPercent, Stage: code}),
			button(mark("📸 Add photo", sess.Awaiting(session.FieldPhoto)), callback.Data{Kind: callback.StageAddPhoto}),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("🧹 Clear To finish", callback.Data{Kind: callback.StageClear, Field: "todo", Stage: code}),
			button("🧹 Clear Notes", callback.Data{Kind: callback.StageClear, Field: "notes", Stage: code}),
		),
		tgbotapi.NewInlineKeyboardRow(button("💾 Save changes", callback.Data{Kind: callback.StageSave, Stage: code})),
		tgbotapi.NewInlineKeyboardRow(button("↩️ Back", callback.Data{Kind: callback.ProjectBack})),
	)
}

func percentKeyboard(code storage.StageCode) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, pct := range QuickPercents {
		row = append(row, button(strconv.Itoa(pct)+"%", callback.Data{Kind: callback.PercentSet, Stage: code, Percent: pct}))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button("✍️ Type manually", callback.Data{Kind: callback.PercentSet, Stage: code, Manual: true})),
		tgbotapi.NewInlineKeyboardRow(button("↩️ Back", callback.Data{Kind: callback.PercentBack})),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func calendarKeyboard(year int, month time.Month, today time.Time) tgbotapi.InlineKeyboardMarkup {
	noop := callback.Data{Kind: callback.Noop}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysIn := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()

	rows := [][]tgbotapi.InlineKeyboardButton{
		{button(first.Format("January 2006"), noop)},
	}
	var header []tgbotapi.InlineKeyboardButton
	for _, wd := range weekdays {
		header = append(header, button(wd, noop))
	}
	rows = append(rows, header)

	// Monday first
	offset := (int(first.Weekday()) + 6) % 7
	var week []tgbotapi.InlineKeyboardButton
	for i := 0; i < offset; i++ {
		week = append(week, button(" ", noop))
	}
	for d := 1; d <= daysIn; d++ {
		day := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
		week = append(week, button(strconv.Itoa(d), callback.Data{Kind: callback.DayPick, Day: day.Format(callback.DayLayout)}))
		if len(week) == 7 {
			rows = append(rows, week)
			week = nil
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, button(" ", noop))
		}
		rows = append(rows, week)
	}

	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			button("« Previous", callback.Data{Kind: callback.CalendarMonth, Year: prev.Year(), Month: prev.Month()}),
			button("Today", callback.Data{Kind: callback.DayPick, Day: today.Format(callback.DayLayout)}),
			button("Next »", callback.Data{Kind: callback.CalendarMonth, Year: next.Year(), Month: next.Month()}),
		),
		tgbotapi.NewInlineKeyboardRow(button("↩️ Back", callback.Data{Kind: callback.NavHome})),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func archiveKeyboard(projects []storage.Project) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, p := range projects {
		state := "⚪️"
		if p.Active {
			state = "🟢"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(state+" "+p.Name, callback.Data{Kind: callback.ArchiveToggle, Index: i})))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("↩️ Back", callback.Data{Kind: callback.NavHome})))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func backHomeKeyboard(label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button(label, callback.Data{Kind: callback.NavHome})),
	)
}
