package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/upb/signalops/models"
	"go.uber.org/zap"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// chat ids are integers (negative for groups) or public @usernames
var telegramChatPattern = regexp.MustCompile(`^(-?\d+|@[A-Za-z][A-Za-z0-9_]{4,31})$`)

// TelegramConfig holds the Bot API settings.
// An empty BotToken keeps the provider in log-only mode.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramProvider delivers notifications through the Telegram Bot API
type TelegramProvider struct {
	cfg        TelegramConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTelegramProvider creates a new Telegram provider
func NewTelegramProvider(cfg TelegramConfig, logger *zap.Logger) *TelegramProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TelegramProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(zap.String("provider", string(models.ChannelTelegram))),
	}
}

// Name returns the provider name
func (p *TelegramProvider) Name() string {
	return string(models.ChannelTelegram)
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the message to the destination chat
func (p *TelegramProvider) Send(ctx context.Context, payload Payload) error {
	if !telegramChatPattern.MatchString(payload.Destination) {
		return NewProviderError(p.Name(), "INVALID_DESTINATION", fmt.Sprintf("invalid chat id %q", payload.Destination), 0, false, nil)
	}

	text := payload.Message
	if payload.Subject != "" {
		text = payload.Subject + "\n\n" + payload.Message
	}

	if p.cfg.BotToken == "" {
		p.logger.Info("telegram (log-only)",
			zap.String("chat_id", payload.Destination),
			zap.String("message", payload.Message),
		)
		return nil
	}

	body, err := json.Marshal(telegramMessage{ChatID: payload.Destination, Text: text})
	if err != nil {
		return NewProviderError(p.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", p.cfg.BaseURL, p.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return NewProviderError(p.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return NewProviderError(p.Name(), "NETWORK_ERROR", "request failed", 0, true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(p.Name(), "READ_ERROR", "failed to read response", resp.StatusCode, true, err)
	}

	var result telegramResponse
	_ = json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK || !result.OK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		msg := result.Description
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return NewProviderError(p.Name(), "API_ERROR", msg, resp.StatusCode, retryable, nil)
	}

	p.logger.Debug("telegram message sent", zap.String("chat_id", payload.Destination))
	return nil
}
