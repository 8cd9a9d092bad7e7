package dialogue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/catalog"
	"github.com/opsdesk/deskbot/internal/models"
	"github.com/opsdesk/deskbot/internal/nlu"
	"github.com/opsdesk/deskbot/internal/session"
)

const (
	replyGreeting = "Hello! I'm your IT support assistant. How can I help you today?"

	replyHelp = "I can check ticket status, help reset passwords, search knowledge base articles, " +
		"create support tickets, or request software. What would you like assistance with?"

	replyClarify = "I'm not sure I understand. I can check ticket status, reset passwords, search the " +
		"knowledge base, create support tickets, or request software. Could you rephrase your request?"

	replyCancelled = "I've cancelled the request. Is there anything else I can help with?"

	replyNothingToCancel = "There's nothing in progress to cancel. How can I help you?"

	replyHandoff = "I'm having trouble getting what I need here. Let me connect you to a human — " +
		"please reach out to the IT service desk and they'll take it from there."

	replyBackendDown = "Sorry, I couldn't complete that right now. Please try again in a little while."
)

// Config bounds the engine's behavior per conversation.
type Config struct {
	// ConfidenceThreshold is the minimum classifier confidence for a
	// classification to act on. Below it the engine asks for clarification.
	ConfidenceThreshold float64
	// MaxTurns bounds how many messages one active intent may consume
	// before the engine hands off to a human.
	MaxTurns int
	// SessionTTL is how long an in-progress conversation survives silence.
	SessionTTL time.Duration
	// ClassifyTimeout and BackendTimeout bound the two blocking calls so a
	// slow collaborator cannot hold the thread lock indefinitely.
	ClassifyTimeout time.Duration
	BackendTimeout  time.Duration
}

// Engine is the dialogue state machine. Each thread moves through
// IDLE → COLLECTING → EXECUTING → IDLE; cancellation, expiry, and the turn
// budget all short-circuit back to IDLE. All session reads and writes for a
// thread happen under that thread's lock.
type Engine struct {
	store      session.Store
	classifier nlu.Classifier
	catalog    *catalog.Catalog
	config     Config
	locks      *threadLocks
	logger     *zap.Logger
}

func NewEngine(store session.Store, classifier nlu.Classifier, cat *catalog.Catalog, config Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		classifier: classifier,
		catalog:    cat,
		config:     config,
		locks:      newThreadLocks(),
		logger:     logger,
	}
}

// HandleMessage advances the thread's conversation by one message and returns
// the reply to post. It never returns an error: every failure path ends in a
// user-visible reply.
func (e *Engine) HandleMessage(ctx context.Context, msg models.InboundMessage) models.Reply {
	release := e.locks.Acquire(msg.ThreadID)
	defer release()

	sess := e.loadSession(ctx, msg.ThreadID)

	if sess != nil && sess.ActiveIntent != "" && sess.PendingSlot != "" {
		return e.continueCollecting(ctx, msg, sess)
	}

	return e.handleIdle(ctx, msg)
}

// loadSession returns the active session for the thread, or nil when absent.
// Store failures are logged and treated as absent, degrading the bot to
// single-turn behavior rather than failing the message.
func (e *Engine) loadSession(ctx context.Context, threadID string) *models.Session {
	sess, found, err := e.store.Get(ctx, threadID)
	if err != nil {
		e.logger.Warn("Session load failed, treating thread as idle",
			zap.Error(err),
			zap.String("thread_id", threadID))
		return nil
	}
	if !found {
		return nil
	}
	return sess
}

func (e *Engine) handleIdle(ctx context.Context, msg models.InboundMessage) models.Reply {
	cls := e.classify(ctx, msg.Text)

	// Every idle verdict is gated on the threshold, conversational intents
	// included: a barely-confident greeting is a guess, not a greeting.
	if cls.Confidence < e.config.ConfidenceThreshold {
		return models.Reply{Text: replyClarify}
	}

	switch cls.Intent {
	case models.IntentGreeting:
		return models.Reply{Text: replyGreeting}
	case models.IntentGeneralQuestion:
		return models.Reply{Text: replyHelp}
	case models.IntentCancel:
		return models.Reply{Text: replyNothingToCancel}
	case models.IntentTicketStatus, models.IntentTicketCreate, models.IntentPasswordReset,
		models.IntentKBSearch, models.IntentSoftwareRequest:
		return e.startIntent(ctx, msg, cls)
	case models.IntentUnrecognized:
		return models.Reply{Text: replyClarify}
	}
	return models.Reply{Text: replyClarify}
}

// startIntent opens a fresh session for the classified intent, seeds slots
// from the classifier's entities, and either prompts for the first missing
// slot or executes immediately when everything arrived in one message.
func (e *Engine) startIntent(ctx context.Context, msg models.InboundMessage, cls models.Classification) models.Reply {
	action, err := e.catalog.Lookup(cls.Intent)
	if err != nil {
		e.logger.Warn("No action for classified intent",
			zap.Error(err),
			zap.String("intent", string(cls.Intent)))
		return models.Reply{Text: replyClarify}
	}

	slots := make(map[string]string)
	for name, raw := range cls.Entities {
		def, ok := action.Slot(name)
		if !ok {
			continue
		}
		if value, valid := def.Validate(raw); valid {
			slots[name] = value
		}
	}

	sess := &models.Session{
		ThreadID:     msg.ThreadID,
		ActiveIntent: cls.Intent,
		Slots:        slots,
		TurnCount:    1,
		UpdatedAt:    time.Now(),
	}

	pending := action.NextUnfilled(slots)
	if pending == "" {
		// Everything arrived in one message. The thread may hold a stale
		// session from an interrupted flow; execution clears it either way.
		return e.execute(ctx, msg, action, sess)
	}

	sess.PendingSlot = pending
	e.persist(ctx, sess)

	def, _ := action.Slot(pending)
	return models.Reply{Text: def.Prompt}
}

// continueCollecting handles a message while a slot is awaited. The pending
// slot's validator runs first so a bare answer like "hardware" lands even
// though it would classify poorly on its own; only when extraction fails is
// the text re-classified to catch cancellation or a new request mid-flow.
func (e *Engine) continueCollecting(ctx context.Context, msg models.InboundMessage, sess *models.Session) models.Reply {
	sess.TurnCount++
	if sess.TurnCount > e.config.MaxTurns {
		e.clear(ctx, msg.ThreadID)
		return models.Reply{Text: replyHandoff}
	}

	action, err := e.catalog.Lookup(sess.ActiveIntent)
	if err != nil {
		// A session referencing an unknown intent cannot make progress.
		e.logger.Error("Active session references unknown intent",
			zap.String("intent", string(sess.ActiveIntent)),
			zap.String("thread_id", msg.ThreadID))
		e.clear(ctx, msg.ThreadID)
		return models.Reply{Text: replyClarify}
	}

	def, ok := action.Slot(sess.PendingSlot)
	if !ok {
		e.clear(ctx, msg.ThreadID)
		return models.Reply{Text: replyClarify}
	}

	if value, valid := def.Validate(msg.Text); valid {
		if sess.Slots == nil {
			sess.Slots = make(map[string]string)
		}
		sess.Slots[sess.PendingSlot] = value
		return e.advance(ctx, msg, action, sess)
	}

	cls := e.classify(ctx, msg.Text)
	if cls.Confidence >= e.config.ConfidenceThreshold {
		switch {
		case cls.Intent == models.IntentCancel:
			e.clear(ctx, msg.ThreadID)
			return models.Reply{Text: replyCancelled}
		case cls.Intent.Actionable() && cls.Intent != sess.ActiveIntent:
			// A confident new request interrupts the current flow and
			// starts collecting for the new intent from scratch.
			return e.startIntent(ctx, msg, cls)
		}
	}

	e.persist(ctx, sess)
	return models.Reply{Text: def.Reprompt}
}

// advance moves a collecting session forward after a slot was filled: prompt
// for the next missing slot, or execute when none remain.
func (e *Engine) advance(ctx context.Context, msg models.InboundMessage, action *catalog.ActionDefinition, sess *models.Session) models.Reply {
	pending := action.NextUnfilled(sess.Slots)
	if pending == "" {
		return e.execute(ctx, msg, action, sess)
	}

	sess.PendingSlot = pending
	e.persist(ctx, sess)

	def, _ := action.Slot(pending)
	return models.Reply{Text: def.Prompt}
}

// execute dispatches the handler and clears the session unconditionally, so
// a handler failure can never leave a stale in-flight conversation behind.
// Mutating actions are not retried; the failure surfaces to the user.
func (e *Engine) execute(ctx context.Context, msg models.InboundMessage, action *catalog.ActionDefinition, sess *models.Session) models.Reply {
	callCtx, cancel := context.WithTimeout(ctx, e.config.BackendTimeout)
	defer cancel()

	text, err := action.Handler(callCtx, sess.Slots, msg.SenderID)

	e.clear(ctx, msg.ThreadID)

	if err != nil {
		e.logger.Error("Action handler failed",
			zap.Error(err),
			zap.String("intent", string(action.Intent)),
			zap.String("thread_id", msg.ThreadID))
		return models.Reply{Text: replyBackendDown}
	}
	return models.Reply{Text: text}
}

func (e *Engine) classify(ctx context.Context, text string) models.Classification {
	callCtx, cancel := context.WithTimeout(ctx, e.config.ClassifyTimeout)
	defer cancel()
	return e.classifier.Classify(callCtx, text)
}

func (e *Engine) persist(ctx context.Context, sess *models.Session) {
	sess.UpdatedAt = time.Now()
	if err := e.store.Put(ctx, sess.ThreadID, sess, e.config.SessionTTL); err != nil {
		e.logger.Warn("Session persist failed",
			zap.Error(err),
			zap.String("thread_id", sess.ThreadID))
	}
}

func (e *Engine) clear(ctx context.Context, threadID string) {
	if err := e.store.Delete(ctx, threadID); err != nil {
		e.logger.Warn("Session delete failed",
			zap.Error(err),
			zap.String("thread_id", threadID))
	}
}
