package notify

import (
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/model"
)

type closePayload struct {
	PositionID uint    `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Ratio      float64 `json:"ratio"`
	FillPrice  float64 `json:"fill_price"`
	Reason     string  `json:"reason"`
	ClosedAt   string  `json:"closed_at"`
}

// WebhookNotifier posts close events to an operator webhook. Delivery is
// best effort and runs off the close path.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier() *WebhookNotifier {
	config := GetConfig()

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &WebhookNotifier{client: client, url: config.WebhookURL}
}

func (n *WebhookNotifier) PositionClosed(position *model.Position, ratio, fillPrice float64, reason string) {
	if n.url == "" {
		return
	}

	payload := closePayload{
		PositionID: position.ID,
		Symbol:     position.Symbol,
		Side:       position.Side,
		Ratio:      ratio,
		FillPrice:  fillPrice,
		Reason:     reason,
		ClosedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	go func() {
		resp, err := n.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Post(n.url)
		if err != nil {
			logger.WithError(err).Warn("close webhook delivery failed")
			return
		}
		if resp.IsError() {
			logger.WithFields(map[string]interface{}{
				"status":      resp.StatusCode(),
				"position_id": position.ID,
			}).Warn("close webhook rejected")
		}
	}()
}
