package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/domain"
)

type captureSender struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg domain.EmailMessage) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var now = time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)

func TestSendEmail(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, Config{From: "bot@example.com", To: "me@example.com"}, fixedClock{now}, nil, discard())

	msg, err := svc.SendEmail(context.Background(), "Groceries", "Buy milk")
	require.NoError(t, err)
	assert.Len(t, msg.ID, 26)
	assert.Equal(t, "bot@example.com", msg.From)
	assert.Equal(t, "me@example.com", msg.To)
	assert.Equal(t, now, msg.SentAt)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, *msg, sender.sent[0])
	assert.Equal(t, "Email sent with subject 'Groceries' and body 'Buy milk'", Describe(msg))
}

func TestSendEmail_EmptyRejected(t *testing.T) {
	svc := NewService(&captureSender{}, Config{}, nil, nil, discard())
	_, err := svc.SendEmail(context.Background(), " ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.SendEmail(context.Background(), "", "body only")
	assert.NoError(t, err)
}

func TestSendEmail_SenderFailure(t *testing.T) {
	cause := errors.New("mailbox full")
	svc := NewService(&captureSender{err: cause}, Config{}, nil, nil, discard())

	_, err := svc.SendEmail(context.Background(), "s", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmailSend)
	assert.ErrorIs(t, err, cause)
}

func TestSendEmail_HourlyLimit(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, Config{MaxSendsPerHour: 2}, fixedClock{now}, nil, discard())
	ctx := context.Background()

	for range 2 {
		_, err := svc.SendEmail(ctx, "s", "b")
		require.NoError(t, err)
	}
	_, err := svc.SendEmail(ctx, "s", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLimitReached)
	assert.Equal(t, domain.CodeEmailLimit, domain.ErrorCodeOf(err))
	assert.Len(t, sender.sent, 2)
}
