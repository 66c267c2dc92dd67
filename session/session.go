// Package session keeps the per-user panel state between Telegram updates.
package session

// Field names what a pending free-form message will populate
type Field string

const (
	FieldProjectName Field = "project_name"
	FieldTodo        Field = "todo"
	FieldNotes       Field = "notes"
	FieldPercent     Field = "percent"
	FieldPhoto       Field = "photo"
)

// InputKind is the kind of message a pending input expects
type InputKind string

const (
	KindText  InputKind = "text"
	KindPhoto InputKind = "photo"
)

// PendingInput describes the next free-form message the bot expects from a user
type PendingInput struct {
	Kind  InputKind `json:"kind"`
	Field Field     `json:"field"`
}

// AwaitText returns a pending input expecting text for field
func AwaitText(field Field) *PendingInput {
	return &PendingInput{Kind: KindText, Field: field}
}

// AwaitPhoto returns a pending input expecting a photo
func AwaitPhoto() *PendingInput {
	return &PendingInput{Kind: KindPhoto, Field: FieldPhoto}
}

// Session is the durable per-user record. The zero value is a fresh session.
type Session struct {
	Date           string        `json:"date,omitempty"` // DD.MM.YYYY
	Project        string        `json:"project,omitempty"`
	Stage          string        `json:"stage,omitempty"`
	Pending        *PendingInput `json:"pending_input,omitempty"`
	PanelMessageID int           `json:"panel_message_id,omitempty"`

	// Screen and CalendarMonth restore the screen machine between updates
	Screen        string `json:"screen,omitempty"`
	CalendarMonth string `json:"calendar_month,omitempty"` // YYYY-MM
}

// Awaiting reports whether the session waits for field
func (s Session) Awaiting(field Field) bool {
	return s.Pending != nil && s.Pending.Field == field
}

// ClearPending drops the pending input
func (s *Session) ClearPending() {
	s.Pending = nil
}

// SelectProject selects a project and forgets the stage and pending input
func (s *Session) SelectProject(name string) {
	s.Project = name
	s.Stage = ""
	s.Pending = nil
}

// SelectStage selects a stage of the current project
func (s *Session) SelectStage(code string) {
	s.Stage = code
	s.Pending = nil
}

// GoHome clears every selection except the date and the panel message
func (s *Session) GoHome() {
	s.Project = ""
	s.Stage = ""
	s.Pending = nil
}
