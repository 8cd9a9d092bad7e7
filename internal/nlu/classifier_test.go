package nlu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsdesk/deskbot/internal/models"
	"github.com/opsdesk/deskbot/internal/nlu"
)

func TestRuleClassifierIntents(t *testing.T) {
	c := nlu.NewRuleClassifier()
	ctx := context.Background()

	tests := []struct {
		text   string
		intent models.Intent
	}{
		{"what's the ticket status for my request", models.IntentTicketStatus},
		{"check ticket please", models.IntentTicketStatus},
		{"I need to reset my password", models.IntentPasswordReset},
		{"forgot my password again", models.IntentPasswordReset},
		{"please create a ticket", models.IntentTicketCreate},
		{"I want to report a problem", models.IntentTicketCreate},
		{"can you install software for me", models.IntentSoftwareRequest},
		{"how do I connect to the vpn", models.IntentKBSearch},
		{"hello", models.IntentGreeting},
		{"cancel", models.IntentCancel},
		{"never mind", models.IntentCancel},
		{"what can you do", models.IntentGeneralQuestion},
		{"the coffee machine is out of beans", models.IntentUnrecognized},
	}

	for _, tt := range tests {
		got := c.Classify(ctx, tt.text)
		assert.Equal(t, tt.intent, got.Intent, "text: %q", tt.text)
	}
}

func TestRuleClassifierExtractsTicketNumber(t *testing.T) {
	c := nlu.NewRuleClassifier()

	got := c.Classify(context.Background(), "what's the status of inc12345?")

	assert.Equal(t, models.IntentTicketStatus, got.Intent)
	assert.Equal(t, "INC12345", got.Entities["ticket_id"])
	assert.GreaterOrEqual(t, got.Confidence, 0.7)
}

func TestRuleClassifierTicketNumberAloneImpliesStatus(t *testing.T) {
	c := nlu.NewRuleClassifier()

	got := c.Classify(context.Background(), "RITM0034567")

	assert.Equal(t, models.IntentTicketStatus, got.Intent)
	assert.Equal(t, "RITM0034567", got.Entities["ticket_id"])
}

func TestRuleClassifierUnrecognizedHasZeroConfidence(t *testing.T) {
	c := nlu.NewRuleClassifier()

	got := c.Classify(context.Background(), "lorem ipsum dolor")

	assert.Equal(t, models.IntentUnrecognized, got.Intent)
	assert.Equal(t, 0.0, got.Confidence)
}
