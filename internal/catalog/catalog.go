package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/opsdesk/deskbot/internal/models"
	"github.com/opsdesk/deskbot/internal/servicenow"
)

// ErrUnrecognizedIntent is returned by Lookup for intents with no action.
// The dialogue engine turns it into a clarification reply; it is never fatal.
var ErrUnrecognizedIntent = errors.New("unrecognized intent")

// Gateway is the ticketing backend contract the handlers dispatch to.
// *servicenow.Client satisfies it.
type Gateway interface {
	GetTicket(ctx context.Context, number string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, req servicenow.CreateTicketRequest) (*models.Ticket, error)
	ResetPassword(ctx context.Context, username string) error
	SearchKnowledge(ctx context.Context, query string) ([]models.Article, error)
}

// SlotDefinition describes one piece of information an action requires.
// Validate normalizes and checks a candidate value; it returns the value to
// store and whether it was accepted.
type SlotDefinition struct {
	Name     string
	Prompt   string
	Reprompt string
	Validate func(raw string) (string, bool)
}

// Handler executes an action once every required slot is filled. The reply is
// user-facing; an error means the backend call failed and is also turned into
// a user-facing reply by the engine.
type Handler func(ctx context.Context, slots map[string]string, senderID string) (string, error)

// ActionDefinition binds an intent to its ordered required slots and handler.
// Slot order is fixed here and determines the prompting sequence.
type ActionDefinition struct {
	Intent  models.Intent
	Slots   []SlotDefinition
	Handler Handler
}

// Slot returns the definition for the named slot.
func (a *ActionDefinition) Slot(name string) (SlotDefinition, bool) {
	for _, s := range a.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotDefinition{}, false
}

// NextUnfilled returns the first required slot not present in filled, in
// definition order, or "" if all are filled.
func (a *ActionDefinition) NextUnfilled(filled map[string]string) string {
	for _, s := range a.Slots {
		if _, ok := filled[s.Name]; !ok {
			return s.Name
		}
	}
	return ""
}

// Catalog is the static intent→action table, built once at startup.
type Catalog struct {
	actions map[models.Intent]*ActionDefinition
}

func (c *Catalog) Lookup(intent models.Intent) (*ActionDefinition, error) {
	action, ok := c.actions[intent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedIntent, intent)
	}
	return action, nil
}

var (
	ticketIDPattern = regexp.MustCompile(`(?i)\b((?:INC|REQ|TASK|RITM)\d{5,})\b`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,}$`)
)

func validateTicketID(raw string) (string, bool) {
	if m := ticketIDPattern.FindString(raw); m != "" {
		return strings.ToUpper(m), true
	}
	return "", false
}

func validateSummary(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 5 {
		return "", false
	}
	return trimmed, true
}

func validateCategory(raw string) (string, bool) {
	category := strings.ToLower(strings.TrimSpace(raw))
	switch category {
	case "hardware", "software", "network", "access", "other":
		return category, true
	}
	return "", false
}

func validateUsername(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if usernamePattern.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}

func validateQuery(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 3 {
		return "", false
	}
	return trimmed, true
}

func validateSoftwareName(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 2 {
		return "", false
	}
	return trimmed, true
}

// New builds the catalog over the given backend gateway.
func New(gw Gateway) *Catalog {
	actions := map[models.Intent]*ActionDefinition{
		models.IntentTicketStatus: {
			Intent: models.IntentTicketStatus,
			Slots: []SlotDefinition{
				{
					Name:     "ticket_id",
					Prompt:   "I can check that for you. What's the ticket number (e.g. INC12345)?",
					Reprompt: "That doesn't look like a ticket number. Please give me a number like INC12345.",
					Validate: validateTicketID,
				},
			},
			Handler: func(ctx context.Context, slots map[string]string, senderID string) (string, error) {
				ticket, err := gw.GetTicket(ctx, slots["ticket_id"])
				if errors.Is(err, servicenow.ErrNotFound) {
					return fmt.Sprintf("I couldn't find ticket %s. Please check the number and try again.", slots["ticket_id"]), nil
				}
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Ticket %s:\nStatus: %s\nPriority: %s\nDescription: %s\nLast updated: %s",
					ticket.Number, ticket.State, ticket.Priority, ticket.ShortDescription, ticket.UpdatedAt), nil
			},
		},
		models.IntentTicketCreate: {
			Intent: models.IntentTicketCreate,
			Slots: []SlotDefinition{
				{
					Name:     "summary",
					Prompt:   "I'll open a ticket for you. Briefly, what's the issue?",
					Reprompt: "I need a bit more detail to file the ticket. Can you describe the issue in a few words?",
					Validate: validateSummary,
				},
				{
					Name:     "category",
					Prompt:   "What category fits best: hardware, software, network, or access?",
					Reprompt: "Please pick one of: hardware, software, network, access, or other.",
					Validate: validateCategory,
				},
			},
			Handler: func(ctx context.Context, slots map[string]string, senderID string) (string, error) {
				ticket, err := gw.CreateTicket(ctx, servicenow.CreateTicketRequest{
					Summary:   slots["summary"],
					Category:  slots["category"],
					CallerID:  senderID,
					DedupeKey: uuid.NewString(),
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Done! I've created ticket %s for you. The IT team will review it shortly.", ticket.Number), nil
			},
		},
		models.IntentPasswordReset: {
			Intent: models.IntentPasswordReset,
			Slots: []SlotDefinition{
				{
					Name:     "username",
					Prompt:   "I can start a password reset. What's your username or employee ID?",
					Reprompt: "That doesn't look like a valid username. It should be at least 3 characters, letters and digits only.",
					Validate: validateUsername,
				},
			},
			Handler: func(ctx context.Context, slots map[string]string, senderID string) (string, error) {
				if err := gw.ResetPassword(ctx, slots["username"]); err != nil {
					return "", err
				}
				return fmt.Sprintf("A temporary password for %s is on its way to your registered email. You'll be asked to change it on first login.", slots["username"]), nil
			},
		},
		models.IntentKBSearch: {
			Intent: models.IntentKBSearch,
			Slots: []SlotDefinition{
				{
					Name:     "query",
					Prompt:   "What IT question would you like me to look up?",
					Reprompt: "Could you give me a few more words to search for?",
					Validate: validateQuery,
				},
			},
			Handler: func(ctx context.Context, slots map[string]string, senderID string) (string, error) {
				articles, err := gw.SearchKnowledge(ctx, slots["query"])
				if err != nil {
					return "", err
				}
				if len(articles) == 0 {
					return fmt.Sprintf("I couldn't find any articles about %q. Try rephrasing, or open a ticket and the team will help.", slots["query"]), nil
				}
				var b strings.Builder
				b.WriteString("Here's what I found:\n")
				for _, a := range articles {
					fmt.Fprintf(&b, "• %s (%s)\n", a.Title, a.Number)
				}
				return b.String(), nil
			},
		},
		models.IntentSoftwareRequest: {
			Intent: models.IntentSoftwareRequest,
			Slots: []SlotDefinition{
				{
					Name:     "software_name",
					Prompt:   "Which software would you like to request?",
					Reprompt: "I didn't catch the software name. Which application do you need?",
					Validate: validateSoftwareName,
				},
			},
			Handler: func(ctx context.Context, slots map[string]string, senderID string) (string, error) {
				ticket, err := gw.CreateTicket(ctx, servicenow.CreateTicketRequest{
					Summary:   fmt.Sprintf("Software request: %s", slots["software_name"]),
					Category:  "software",
					CallerID:  senderID,
					DedupeKey: uuid.NewString(),
				})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("I've submitted a request for %s (ticket %s). IT will review it and contact you shortly.", slots["software_name"], ticket.Number), nil
			},
		},
	}

	return &Catalog{actions: actions}
}
