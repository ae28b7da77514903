package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmailProvider_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("log-only without smtp host", func(t *testing.T) {
		p := NewEmailProvider(SMTPConfig{}, zap.NewNop())
		p.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
			t.Fatal("sendMail must not be called in log-only mode")
			return nil
		}
		assert.Equal(t, "email", p.Name())
		require.NoError(t, p.Send(ctx, Payload{Subject: "hi", Destination: "ops@acme.io"}))
	})

	t.Run("sends through smtp", func(t *testing.T) {
		p := NewEmailProvider(SMTPConfig{Host: "smtp.acme.io", Port: 2525, Username: "u", Password: "p", From: "alerts@acme.io"}, zap.NewNop())

		var gotAddr, gotFrom string
		var gotTo []string
		var gotMsg []byte
		p.sendMail = func(_ context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			assert.NotNil(t, a)
			return nil
		}

		require.NoError(t, p.Send(ctx, Payload{Subject: "Rule X\r\nBcc: evil@x.io", Message: "body", Destination: "Ops <ops@acme.io>"}))
		assert.Equal(t, "smtp.acme.io:2525", gotAddr)
		assert.Equal(t, "alerts@acme.io", gotFrom)
		assert.Equal(t, []string{"ops@acme.io"}, gotTo)
		assert.Contains(t, string(gotMsg), "Subject: Rule X  Bcc: evil@x.io\r\n")
		assert.Contains(t, string(gotMsg), "\r\n\r\nbody")
	})

	t.Run("transport failure is retryable", func(t *testing.T) {
		p := NewEmailProvider(SMTPConfig{Host: "smtp.acme.io"}, zap.NewNop())
		p.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
			return errors.New("421 service not available")
		}

		err := p.Send(ctx, Payload{Destination: "ops@acme.io"})
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})

	t.Run("stalled server is cut off by the context deadline", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			// accept and never send the greeting
			if conn, err := ln.Accept(); err == nil {
				accepted <- conn
			}
		}()

		host, port, err := net.SplitHostPort(ln.Addr().String())
		require.NoError(t, err)
		portNum, err := strconv.Atoi(port)
		require.NoError(t, err)

		p := NewEmailProvider(SMTPConfig{Host: host, Port: portNum, From: "alerts@acme.io"}, zap.NewNop())
		sendCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		err = p.Send(sendCtx, Payload{Destination: "ops@acme.io"})
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, IsRetryable(err))

		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	})

	t.Run("invalid address is permanent", func(t *testing.T) {
		p := NewEmailProvider(SMTPConfig{}, zap.NewNop())
		err := p.Send(ctx, Payload{Destination: "not-an-email"})
		require.Error(t, err)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "INVALID_DESTINATION", provErr.Code)
		assert.False(t, provErr.Retryable)
	})
}

func TestTelegramProvider_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("posts to bot api", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottoken123/sendMessage", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body telegramMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "-100200300", body.ChatID)
			assert.Equal(t, "Alert\n\nsomething happened", body.Text)

			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		p := NewTelegramProvider(TelegramConfig{BotToken: "token123", BaseURL: server.URL}, zap.NewNop())
		require.NoError(t, p.Send(ctx, Payload{Subject: "Alert", Message: "something happened", Destination: "-100200300"}))
	})

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"ok":false,"description":"Too Many Requests"}`, true},
		{"server error", http.StatusBadGateway, ``, true},
		{"chat not found", http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`, false},
		{"ok false with 200", http.StatusOK, `{"ok":false,"description":"bot was blocked"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewTelegramProvider(TelegramConfig{BotToken: "t", BaseURL: server.URL}, zap.NewNop())
			err := p.Send(ctx, Payload{Message: "m", Destination: "@ops_team"})

			var provErr *ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.retryable, provErr.Retryable)
		})
	}

	t.Run("log-only without token", func(t *testing.T) {
		p := NewTelegramProvider(TelegramConfig{}, zap.NewNop())
		assert.Equal(t, "telegram", p.Name())
		require.NoError(t, p.Send(ctx, Payload{Message: "m", Destination: "12345"}))
	})

	t.Run("rejects malformed chat id", func(t *testing.T) {
		p := NewTelegramProvider(TelegramConfig{}, zap.NewNop())
		for _, dest := range []string{"", "ops", "@ab", "12a"} {
			assert.Error(t, p.Send(ctx, Payload{Destination: dest}), dest)
		}
	})
}

func TestWhatsAppProvider_Send(t *testing.T) {
	p := NewWhatsAppProvider(zap.NewNop())
	assert.Equal(t, "whatsapp", p.Name())

	valid := []string{"+5215512345678", "+14155550123"}
	for _, dest := range valid {
		assert.NoError(t, p.Send(context.Background(), Payload{Destination: dest}), dest)
	}

	invalid := []string{"", "5215512345678", "+0123456789", "+12", "+1415555012345678"}
	for _, dest := range invalid {
		err := p.Send(context.Background(), Payload{Destination: dest})
		assert.Error(t, err, dest)
		assert.False(t, IsRetryable(err))
	}
}
