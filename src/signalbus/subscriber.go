package signalbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/model"
)

type signalSink interface {
	SubmitSignal(ctx context.Context, signal *model.Signal) (uint, error)
}

type rejectionChecker func(err error) bool

// Subscriber consumes entry signals from a Redis Pub/Sub channel and feeds
// them into the engine. Malformed and rejected signals are logged and
// dropped; only infrastructure errors stop the loop.
type Subscriber struct {
	rdb         *redis.Client
	channel     string
	sink        signalSink
	isRejection rejectionChecker
}

func NewSubscriber(sink signalSink, isRejection rejectionChecker) (*Subscriber, error) {
	config := GetConfig()

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNAL_BUS_REDIS_URL: %w", err)
	}

	return &Subscriber{
		rdb:         redis.NewClient(opts),
		channel:     config.Channel,
		sink:        sink,
		isRejection: isRejection,
	}, nil
}

// Run blocks consuming signals until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	logger.WithField("channel", s.channel).Info("signal bus subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload []byte) {
	var signal model.Signal
	if err := json.Unmarshal(payload, &signal); err != nil {
		logger.WithError(err).Warn("dropping malformed signal payload")
		return
	}

	positionID, err := s.sink.SubmitSignal(ctx, &signal)
	if err != nil {
		if s.isRejection != nil && s.isRejection(err) {
			logger.WithFields(map[string]interface{}{
				"symbol":    signal.Symbol,
				"direction": signal.Direction,
			}).WithError(err).Info("signal rejected")
			return
		}
		logger.WithError(err).Error("failed to submit signal")
		return
	}

	logger.WithFields(map[string]interface{}{
		"position_id": positionID,
		"symbol":      signal.Symbol,
	}).Info("signal accepted from bus")
}
