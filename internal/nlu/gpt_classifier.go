package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/models"
)

type gptVerdict struct {
	Intent     string            `json:"intent"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
}

// GPTClassifier classifies messages with a chat completion that returns a
// structured JSON verdict. On API or parse failure it falls back to the rule
// classifier, so classification never fails outright.
type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	fallback    *RuleClassifier
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		fallback:    NewRuleClassifier(),
		logger:      logger,
	}
}

func (c *GPTClassifier) Classify(ctx context.Context, text string) models.Classification {
	prompt := fmt.Sprintf(`You are the intent classifier for an IT helpdesk bot.
Classify the user message into exactly one of these intents:
- ticket_status: asking about an existing ticket (extract entity "ticket_id" if an INC/REQ/TASK/RITM number is present)
- ticket_create: reporting an issue or asking to open a ticket (extract "summary" and "category" if stated; category is one of hardware, software, network, access, other)
- password_reset: asking to reset or recover a password (extract "username" if stated)
- kb_search: asking a how-to or knowledge question (extract "query")
- software_request: asking for software to be installed or licensed (extract "software_name" if stated)
- greeting: a plain greeting
- general_question: asking what the bot can do
- cancel: asking to stop or abandon the current request
- unrecognized: none of the above

Return only a JSON object with this structure:
{"intent": "...", "entities": {"name": "value", ...}, "confidence": 0.0}

Message: %s`, text)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Warn("GPT classification failed, using rule fallback", zap.Error(err))
		return c.fallback.Classify(ctx, text)
	}

	var verdict gptVerdict
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		c.logger.Warn("Failed to parse GPT verdict, using rule fallback",
			zap.Error(err),
			zap.String("response", raw))
		return c.fallback.Classify(ctx, text)
	}

	intent := models.Intent(verdict.Intent)
	switch intent {
	case models.IntentTicketStatus, models.IntentTicketCreate, models.IntentPasswordReset,
		models.IntentKBSearch, models.IntentSoftwareRequest, models.IntentGreeting,
		models.IntentGeneralQuestion, models.IntentCancel:
	default:
		intent = models.IntentUnrecognized
	}

	entities := verdict.Entities
	if entities == nil {
		entities = map[string]string{}
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return models.Classification{
		Intent:     intent,
		Entities:   entities,
		Confidence: verdict.Confidence,
	}
}
