package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/dialogue"
	"github.com/opsdesk/deskbot/internal/models"
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// replyPoster delivers one reply into a channel, threaded when threadTS is
// set. *slackPoster is the production implementation; tests substitute a
// recording fake.
type replyPoster interface {
	PostReply(ctx context.Context, channel, threadTS, text string) error
}

type slackPoster struct {
	api *slack.Client
}

func (p *slackPoster) PostReply(ctx context.Context, channel, threadTS, text string) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}
	_, _, err := p.api.PostMessageContext(ctx, channel, options...)
	return err
}

// Bot is the Slack transport adapter. It receives events over Socket Mode,
// maps them to inbound messages for the dialogue engine, and posts the
// engine's reply back into the originating thread. It carries no
// conversation logic of its own.
type Bot struct {
	api    *slack.Client
	socket *socketmode.Client
	poster replyPoster
	engine *dialogue.Engine
	queue  *threadDispatcher
	logger *zap.Logger
}

func New(botToken, appToken string, engine *dialogue.Engine, logger *zap.Logger) (*Bot, error) {
	if !strings.HasPrefix(appToken, "xapp-") {
		return nil, fmt.Errorf("app token must start with xapp-")
	}

	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	if _, err := api.AuthTest(); err != nil {
		return nil, fmt.Errorf("slack auth failed: %w", err)
	}

	return &Bot{
		api:    api,
		socket: socketmode.New(api),
		poster: &slackPoster{api: api},
		engine: engine,
		queue:  newThreadDispatcher(),
		logger: logger,
	}, nil
}

// Start consumes Socket Mode events until the connection closes. Events are
// parsed in arrival order on the loop goroutine and then queued per thread:
// one thread handles and posts one message at a time, so replies within a
// thread keep arrival order, while distinct threads proceed concurrently.
func (b *Bot) Start(ctx context.Context) error {
	go func() {
		for evt := range b.socket.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				b.socket.Ack(*evt.Request)
				b.handleEvent(ctx, apiEvent)
			case socketmode.EventTypeConnectionError:
				b.logger.Warn("Socket mode connection error")
			}
		}
	}()

	return b.socket.RunContext(ctx)
}

func (b *Bot) handleEvent(ctx context.Context, event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		b.enqueue(ctx, models.InboundMessage{
			ThreadID: threadID(ev.Channel, ev.ThreadTimeStamp, ev.TimeStamp),
			SenderID: ev.User,
			Text:     stripMention(ev.Text),
			Direct:   false,
		}, ev.Channel, replyTimestamp(ev.ThreadTimeStamp, ev.TimeStamp))

	case *slackevents.MessageEvent:
		// Channel mentions already arrive as AppMentionEvent; only direct
		// messages are handled here. Bot and system messages are skipped.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		b.enqueue(ctx, models.InboundMessage{
			ThreadID: ev.Channel,
			SenderID: ev.User,
			Text:     ev.Text,
			Direct:   true,
		}, ev.Channel, "")
	}
}

func (b *Bot) enqueue(ctx context.Context, msg models.InboundMessage, channel, threadTS string) {
	b.queue.Dispatch(msg.ThreadID, func() {
		b.handleInbound(ctx, msg, channel, threadTS)
	})
}

func (b *Bot) handleInbound(ctx context.Context, msg models.InboundMessage, channel, threadTS string) {
	reply := b.engine.HandleMessage(ctx, msg)

	if err := b.poster.PostReply(ctx, channel, threadTS, reply.Text); err != nil {
		b.logger.Error("Failed to post reply",
			zap.Error(err),
			zap.String("channel", channel),
			zap.String("thread_id", msg.ThreadID))
	}
}

// threadID scopes one conversation: channel plus the root timestamp of the
// thread the message lives in. Replying with that timestamp keeps follow-ups
// in the same thread and therefore the same session.
func threadID(channel, threadTS, ts string) string {
	return channel + ":" + replyTimestamp(threadTS, ts)
}

func replyTimestamp(threadTS, ts string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}

func stripMention(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, "")), " ")
}
