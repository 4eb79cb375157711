package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Prober is implemented by senders that can check their upstream without
// delivering anything.
type Prober interface {
	Probe(ctx context.Context) error
}

// Probe connects to the SMTP server, runs the greeting, TLS and auth steps the
// configured policy asks for, and quits. It uses its own client so it never
// interferes with a delivery in flight.
func (s *SMTPSender) Probe(ctx context.Context) error {
	client, err := mail.NewClient(s.host, s.opts...)
	if err != nil {
		return fmt.Errorf("create probe client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	return client.Close()
}
