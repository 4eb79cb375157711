package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"lostfound/internal/config"
)

// ContactMessage is what a logged-in user sends to the owner of a post.
type ContactMessage struct {
	PostID      string
	PostTitle   string
	OwnerName   string
	OwnerEmail  string
	SenderName  string
	SenderEmail string
	Body        string
	PostURL     string
}

func (m ContactMessage) Subject(siteName string) string {
	return fmt.Sprintf("[%s] Message about your post \"%s\"", siteName, m.PostTitle)
}

func (m ContactMessage) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", m.OwnerName)
	fmt.Fprintf(&b, "%s <%s> sent you a message about \"%s\":\n\n", m.SenderName, m.SenderEmail, m.PostTitle)
	b.WriteString(m.Body)
	b.WriteString("\n\nReply to this email to answer them directly.\n")
	if m.PostURL != "" {
		fmt.Fprintf(&b, "\nPost: %s\n", m.PostURL)
	}
	return b.String()
}

type Sender interface {
	SendContact(ctx context.Context, msg ContactMessage) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) LogSender {
	return LogSender{log: log.Named("notify")}
}

func (s LogSender) SendContact(_ context.Context, msg ContactMessage) error {
	s.log.Info("contact message",
		zap.String("post_id", msg.PostID),
		zap.String("to", msg.OwnerEmail),
		zap.String("reply_to", msg.SenderEmail),
		zap.Int("body_len", len(msg.Body)),
	)
	return nil
}

type SMTPSender struct {
	client   *mail.Client
	host     string
	opts     []mail.Option
	from     string
	siteName string
}

func NewSender(cfg config.Config, log *zap.Logger) (Sender, error) {
	if cfg.Notify.Sender != "smtp" {
		return NewLogSender(log), nil
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Notify.SMTPPort),
		mail.WithTLSPolicy(tlsPolicy(cfg.Notify.SMTPTLS)),
	}
	if cfg.Notify.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Notify.SMTPUsername),
			mail.WithPassword(cfg.Notify.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.Notify.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &SMTPSender{
		client:   client,
		host:     cfg.Notify.SMTPHost,
		opts:     opts,
		from:     cfg.Notify.From,
		siteName: cfg.SiteName,
	}, nil
}

func tlsPolicy(v string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// BuildMessage renders msg as a plain-text mail with Reply-To set to the
// sender so the owner can answer without the board seeing the reply.
func BuildMessage(from, siteName string, msg ContactMessage) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("set From address: %w", err)
	}
	if err := m.To(msg.OwnerEmail); err != nil {
		return nil, fmt.Errorf("set To address: %w", err)
	}
	if msg.SenderEmail != "" {
		if err := m.ReplyTo(msg.SenderEmail); err != nil {
			return nil, fmt.Errorf("set Reply-To address: %w", err)
		}
	}
	m.Subject(msg.Subject(siteName))
	m.SetBodyString(mail.TypeTextPlain, msg.Text())
	return m, nil
}

func (s *SMTPSender) SendContact(ctx context.Context, msg ContactMessage) error {
	m, err := BuildMessage(s.from, s.siteName, msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send contact email: %w", err)
	}
	return nil
}
