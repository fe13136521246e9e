package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radiusdt/vector-gateway/internal/config"
	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier delivers operational alerts. Deliveries are best-effort:
// failures are logged and never surface to the request path.
type Notifier interface {
	Send(text string)
}

// TelegramNotifier posts alerts to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     *zap.Logger
	onFailure  func()
}

// NewTelegramNotifier creates a Telegram notifier. Returns a NopNotifier
// when the bot token or chat id is not configured.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zap.Logger, onFailure func()) Notifier {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		logger.Info("telegram alerts disabled: bot token or chat id not set")
		return NopNotifier{}
	}
	return &TelegramNotifier{
		apiBase:  defaultAPIBase,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		onFailure: onFailure,
	}
}

// Send delivers the message asynchronously. It returns immediately; the
// caller's request is never blocked or failed by alert delivery.
func (n *TelegramNotifier) Send(text string) {
	go n.send(text)
}

func (n *TelegramNotifier) send(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		n.fail("failed to marshal telegram payload", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.fail("failed to create telegram request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.fail("telegram send failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		n.logger.Warn("telegram non-200",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		if n.onFailure != nil {
			n.onFailure()
		}
	}
}

func (n *TelegramNotifier) fail(msg string, err error) {
	n.logger.Error(msg, zap.Error(err))
	if n.onFailure != nil {
		n.onFailure()
	}
}

// NopNotifier drops all alerts. Used when Telegram is not configured.
type NopNotifier struct{}

func (NopNotifier) Send(string) {}
