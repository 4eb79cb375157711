package notify

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lostfound/internal/config"
)

func sampleMessage() ContactMessage {
	return ContactMessage{
		PostID:      "p1",
		PostTitle:   "Blue water bottle",
		OwnerName:   "Amy",
		OwnerEmail:  "amy@school.edu",
		SenderName:  "Ben",
		SenderEmail: "ben@school.edu",
		Body:        "I think I found it near the gym.",
		PostURL:     "https://lf.school.edu/posts/p1",
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	m, err := BuildMessage("lostfound@school.edu", "Lost & Found", sampleMessage())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	require.Contains(t, raw, "amy@school.edu")
	require.Contains(t, raw, "Reply-To:")
	require.Contains(t, raw, "ben@school.edu")
	require.Contains(t, raw, "near the gym")
	require.True(t, strings.Contains(raw, "Blue water bottle"))
	require.Contains(t, raw, "lostfound@school.edu")
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	msg := sampleMessage()
	msg.OwnerEmail = "not an address"
	_, err := BuildMessage("lostfound@school.edu", "Lost & Found", msg)
	require.Error(t, err)
}

func TestLogSenderIsDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, err := NewSender(config.Defaults(), zap.New(core))
	require.NoError(t, err)
	require.NoError(t, s.SendContact(context.Background(), sampleMessage()))
	require.Equal(t, 1, logs.FilterMessage("contact message").Len())
}

func TestSMTPSenderConstructs(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.Sender = "smtp"
	cfg.Notify.SMTPUsername = "mailer"
	cfg.Notify.SMTPPassword = "secret"
	s, err := NewSender(cfg, zap.NewNop())
	require.NoError(t, err)
	_, ok := s.(*SMTPSender)
	require.True(t, ok)
}

func TestSMTPProbeReportsUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.Defaults()
	cfg.Notify.Sender = "smtp"
	cfg.Notify.SMTPHost = "127.0.0.1"
	cfg.Notify.SMTPPort = port
	cfg.Notify.SMTPTLS = "none"
	s, err := NewSender(cfg, zap.NewNop())
	require.NoError(t, err)

	p, ok := s.(Prober)
	require.True(t, ok)
	require.Error(t, p.Probe(context.Background()))

	var ls Sender = NewLogSender(zap.NewNop())
	_, ok = ls.(Prober)
	require.False(t, ok)
}
