package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// Mailer is satisfied by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends plain-text email over SMTP.
type EmailChannel struct {
	mailer Mailer
	from   string
}

func NewEmailChannel(mailer Mailer, from string) *EmailChannel {
	return &EmailChannel{mailer: mailer, from: from}
}

func (c *EmailChannel) Name() string { return "email" }

var ErrNoRecipient = errors.New("message has no recipient")

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return c.mailer.DialAndSend(m)
}

// SMSGateway sends a text message to a phone number.
type SMSGateway interface {
	SendSMS(ctx context.Context, to, text string) error
}

type SMSChannel struct {
	gateway SMSGateway
}

func NewSMSChannel(gateway SMSGateway) *SMSChannel {
	return &SMSChannel{gateway: gateway}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + ": " + msg.Body
	}
	return c.gateway.SendSMS(ctx, msg.Recipient, text)
}

// LogSMSGateway writes text messages to the log instead of sending them.
type LogSMSGateway struct {
	Logger *slog.Logger
}

func (g LogSMSGateway) SendSMS(ctx context.Context, to, text string) error {
	g.Logger.InfoContext(ctx, "sms", "to", to, "text", text)
	return nil
}

// InAppChannel keeps messages in per-recipient inboxes for the API to serve.
type InAppChannel struct {
	mu    sync.Mutex
	inbox map[string][]Message
	limit int
}

// NewInAppChannel keeps at most limit messages per recipient, dropping the oldest.
func NewInAppChannel(limit int) *InAppChannel {
	return &InAppChannel{inbox: make(map[string][]Message), limit: limit}
}

func (c *InAppChannel) Name() string { return "in_app" }

func (c *InAppChannel) Send(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrNoRecipient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	box := append(c.inbox[msg.Recipient], msg)
	if c.limit > 0 && len(box) > c.limit {
		box = box[len(box)-c.limit:]
	}
	c.inbox[msg.Recipient] = box
	return nil
}

// Inbox returns the recipient's messages, oldest first.
func (c *InAppChannel) Inbox(recipient string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message{}, c.inbox[recipient]...)
}

// LogChannel writes every message to the log.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, "notification",
		"kind", msg.Kind, "recipient", msg.Recipient, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// Throttled limits how fast the wrapped channel is called. Send waits for a token and
// gives up when ctx ends.
type Throttled struct {
	Channel
	limiter *rate.Limiter
}

func Throttle(ch Channel, limit rate.Limit, burst int) *Throttled {
	return &Throttled{Channel: ch, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Channel.Send(ctx, msg)
}
