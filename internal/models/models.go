package models

import "time"

// Intent is a classified user goal. The set is closed: the dialogue engine
// dispatches over these values exhaustively, and anything it does not know
// collapses to IntentUnrecognized.
type Intent string

const (
	IntentTicketStatus    Intent = "ticket_status"
	IntentTicketCreate    Intent = "ticket_create"
	IntentPasswordReset   Intent = "password_reset"
	IntentKBSearch        Intent = "kb_search"
	IntentSoftwareRequest Intent = "software_request"
	IntentGreeting        Intent = "greeting"
	IntentGeneralQuestion Intent = "general_question"
	IntentCancel          Intent = "cancel"
	IntentUnrecognized    Intent = "unrecognized"
)

// Actionable reports whether the intent maps to a catalog action with slots,
// as opposed to a conversational or control intent.
func (i Intent) Actionable() bool {
	switch i {
	case IntentTicketStatus, IntentTicketCreate, IntentPasswordReset, IntentKBSearch, IntentSoftwareRequest:
		return true
	}
	return false
}

// Session is the per-thread conversation state. It exists only while an
// intent is open: ActiveIntent == "" implies Slots and PendingSlot are empty,
// and such a session is never persisted.
type Session struct {
	ThreadID     string            `json:"thread_id"`
	ActiveIntent Intent            `json:"active_intent"`
	Slots        map[string]string `json:"slots"`
	PendingSlot  string            `json:"pending_slot"`
	TurnCount    int               `json:"turn_count"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Classification is the intent gateway's verdict on one message.
type Classification struct {
	Intent     Intent            `json:"intent"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
}

// InboundMessage is one event delivered by the transport adapter. ThreadID
// scopes the conversation (channel + thread timestamp, or the DM channel).
type InboundMessage struct {
	ThreadID string
	SenderID string
	Text     string
	Direct   bool
}

// Reply is the engine's answer for one inbound message.
type Reply struct {
	Text string
}

// Ticket is an incident record as reported by the ticketing backend.
type Ticket struct {
	Number           string `json:"number"`
	State            string `json:"state"`
	ShortDescription string `json:"short_description"`
	Priority         string `json:"priority"`
	UpdatedAt        string `json:"sys_updated_on"`
}

// Article is a knowledge-base search hit.
type Article struct {
	Number  string `json:"number"`
	Title   string `json:"short_description"`
	Snippet string `json:"text"`
}
