package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lancepay/lps/internal/config"
	"github.com/lancepay/lps/internal/logger"
)

// Event 通知事件
type Event struct {
	Kind      string                 `json:"kind"`
	InvoiceId int64                  `json:"invoice_id,omitempty"`
	Recipient string                 `json:"recipient,omitempty"` // 收件人邮箱
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// 通知事件类型
const (
	KindEscrowFunded     = "escrow_funded"
	KindEscrowReleased   = "escrow_released"
	KindEscrowDisputed   = "escrow_disputed"
	KindEscrowRefunded   = "escrow_refunded"
	KindEscrowResolved   = "escrow_resolved"
	KindPayoutCompleted  = "payout_completed"
	KindPayoutFailed     = "payout_failed"
	KindWalletLowBalance = "wallet_low_balance"
)

// Notifier 通知投递接口
//
// 投递是尽力而为：失败只记录，绝不影响结算结果。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier 仅写日志的默认实现
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Info("Notification %s: invoice=%d recipient=%s", event.Kind, event.InvoiceId, event.Recipient)
	return nil
}

// WebhookNotifier 把事件 POST 到配置的回调地址
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// FromConfig 按配置选择通知实现
func FromConfig(cfg config.NotifyConfig) Notifier {
	if cfg.WebhookURL != "" {
		return NewWebhookNotifier(cfg)
	}
	return LogNotifier{}
}

// Dispatch 异步投递，失败记录日志后回调 onFailure（若有）再丢弃
func Dispatch(n Notifier, event Event, onFailure ...func(error)) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Notify(ctx, event); err != nil {
			logger.Warn("Failed to deliver %s notification for invoice %d: %v", event.Kind, event.InvoiceId, err)
			for _, fn := range onFailure {
				fn(err)
			}
		}
	}()
}
