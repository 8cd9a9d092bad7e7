package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/opsdesk/deskbot/internal/models"
)

// Classifier maps raw message text to an intent with extracted entities and
// a confidence score in [0,1].
type Classifier interface {
	Classify(ctx context.Context, text string) models.Classification
}

var ticketNumberPattern = regexp.MustCompile(`(?i)\b(?:INC|REQ|TASK|RITM)\d{5,}\b`)

// RuleClassifier detects intents from keywords and patterns. It is the
// development classifier and the fallback when the GPT classifier fails.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (c *RuleClassifier) Classify(ctx context.Context, text string) models.Classification {
	lower := strings.ToLower(strings.TrimSpace(text))
	entities := map[string]string{}

	if ticket := ticketNumberPattern.FindString(text); ticket != "" {
		entities["ticket_id"] = strings.ToUpper(ticket)
	}

	switch {
	case isCancelPhrase(lower):
		return models.Classification{Intent: models.IntentCancel, Entities: entities, Confidence: 0.95}

	case entities["ticket_id"] != "" ||
		containsAny(lower, "ticket status", "status of ticket", "status of my ticket", "check ticket", "check my ticket"):
		return models.Classification{Intent: models.IntentTicketStatus, Entities: entities, Confidence: 0.9}

	case containsAny(lower, "reset password", "password reset", "reset my password", "forgot my password", "change my password"):
		return models.Classification{Intent: models.IntentPasswordReset, Entities: entities, Confidence: 0.9}

	case containsAny(lower, "create a ticket", "create ticket", "open a ticket", "new ticket", "raise a ticket", "report a problem", "report an issue", "submit a ticket"):
		return models.Classification{Intent: models.IntentTicketCreate, Entities: entities, Confidence: 0.85}

	case containsAny(lower, "request software", "software request", "install software", "need software", "license for"):
		return models.Classification{Intent: models.IntentSoftwareRequest, Entities: entities, Confidence: 0.8}

	case containsAny(lower, "knowledge base", "kb article", "find article", "how do i", "how to"):
		return models.Classification{Intent: models.IntentKBSearch, Entities: entities, Confidence: 0.75}

	case isGreeting(lower):
		return models.Classification{Intent: models.IntentGreeting, Entities: entities, Confidence: 0.9}

	case containsAny(lower, "help", "what can you do"):
		return models.Classification{Intent: models.IntentGeneralQuestion, Entities: entities, Confidence: 0.85}
	}

	return models.Classification{Intent: models.IntentUnrecognized, Entities: entities, Confidence: 0}
}

func isCancelPhrase(lower string) bool {
	switch lower {
	case "cancel", "stop", "quit", "never mind", "nevermind", "forget it", "abort":
		return true
	}
	return strings.HasPrefix(lower, "cancel ")
}

func isGreeting(lower string) bool {
	switch lower {
	case "hi", "hello", "hey", "good morning", "good afternoon", "good evening":
		return true
	}
	return false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
