package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdesk/deskbot/internal/catalog"
	"github.com/opsdesk/deskbot/internal/dialogue"
	"github.com/opsdesk/deskbot/internal/models"
	"github.com/opsdesk/deskbot/internal/nlu"
	"github.com/opsdesk/deskbot/internal/servicenow"
	"github.com/opsdesk/deskbot/internal/session"
)

func TestThreadIDUsesThreadRoot(t *testing.T) {
	// A reply inside a thread keeps the root timestamp, so every follow-up
	// maps to the same conversation.
	assert.Equal(t, "C42:111.000", threadID("C42", "111.000", "222.000"))

	// A fresh message roots a new thread on its own timestamp.
	assert.Equal(t, "C42:222.000", threadID("C42", "", "222.000"))
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "create a ticket", stripMention("<@U0BOT> create a ticket"))
	assert.Equal(t, "status of INC12345", stripMention("status of INC12345"))
	assert.Equal(t, "hello there", stripMention("<@U0BOT> hello <@U0USER> there"))
}

func TestThreadDispatcherKeepsSubmissionOrder(t *testing.T) {
	d := newThreadDispatcher()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		d.Dispatch("T1", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 20
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestThreadDispatcherThreadsDoNotBlockEachOther(t *testing.T) {
	d := newThreadDispatcher()

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	fastDone := make(chan struct{})

	d.Dispatch("slow", func() {
		close(slowStarted)
		<-release
	})

	<-slowStarted
	d.Dispatch("fast", func() { close(fastDone) })

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("work on a distinct thread was blocked by another thread's worker")
	}
	close(release)
}

type nullGateway struct{}

func (nullGateway) GetTicket(ctx context.Context, number string) (*models.Ticket, error) {
	return &models.Ticket{Number: number, State: "New"}, nil
}

func (nullGateway) CreateTicket(ctx context.Context, req servicenow.CreateTicketRequest) (*models.Ticket, error) {
	return &models.Ticket{Number: "INC90001", State: "New"}, nil
}

func (nullGateway) ResetPassword(ctx context.Context, username string) error { return nil }

func (nullGateway) SearchKnowledge(ctx context.Context, query string) ([]models.Article, error) {
	return nil, nil
}

// recordingPoster stalls the first delivery so an unserialized adapter would
// let the second reply overtake it.
type recordingPoster struct {
	mu    sync.Mutex
	stall time.Duration
	texts []string
	done  chan struct{}
}

func (p *recordingPoster) PostReply(ctx context.Context, channel, threadTS, text string) error {
	p.mu.Lock()
	stall := p.stall
	p.stall = 0
	p.mu.Unlock()

	time.Sleep(stall)

	p.mu.Lock()
	p.texts = append(p.texts, text)
	count := len(p.texts)
	p.mu.Unlock()

	if count == 2 {
		close(p.done)
	}
	return nil
}

func TestRepliesKeepArrivalOrderWithinThread(t *testing.T) {
	engine := dialogue.NewEngine(
		session.NewMemoryStore(),
		nlu.NewRuleClassifier(),
		catalog.New(nullGateway{}),
		dialogue.Config{
			ConfidenceThreshold: 0.7,
			MaxTurns:            8,
			SessionTTL:          time.Minute,
			ClassifyTimeout:     time.Second,
			BackendTimeout:      time.Second,
		},
		zap.NewNop(),
	)

	poster := &recordingPoster{stall: 50 * time.Millisecond, done: make(chan struct{})}
	b := &Bot{
		poster: poster,
		engine: engine,
		queue:  newThreadDispatcher(),
		logger: zap.NewNop(),
	}

	ctx := context.Background()

	// Two messages on one thread, enqueued in arrival order. The first
	// reply's delivery is slow; it must still land first.
	b.enqueue(ctx, models.InboundMessage{ThreadID: "C1:1.000", SenderID: "U1", Text: "hello"}, "C1", "1.000")
	b.enqueue(ctx, models.InboundMessage{ThreadID: "C1:1.000", SenderID: "U1", Text: "what can you do"}, "C1", "1.000")

	select {
	case <-poster.done:
	case <-time.After(2 * time.Second):
		t.Fatal("replies were not delivered")
	}

	poster.mu.Lock()
	defer poster.mu.Unlock()
	require.Len(t, poster.texts, 2)
	assert.Contains(t, poster.texts[0], "IT support assistant", "greeting reply must be delivered first")
	assert.Contains(t, poster.texts[1], "What would you like assistance with")
}
