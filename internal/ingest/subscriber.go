package ingest

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"assettracker/internal/redis"
)

// Subscriber reads telemetry from a Redis Pub/Sub channel
type Subscriber struct {
	client   *redis.Client
	channel  string
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewSubscriber(client *redis.Client, channel string, pipeline *Pipeline, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:   client,
		channel:  channel,
		pipeline: pipeline,
		logger:   logger.With("component", "ingest", "channel", channel),
	}
}

// Run consumes messages until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	ps, err := s.client.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	defer ps.Close()

	s.logger.Info("listening for telemetry")
	return s.consume(ctx, ps.Channel())
}

func (s *Subscriber) consume(ctx context.Context, msgs <-chan *goredis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := s.pipeline.HandleMessage(ctx, []byte(msg.Payload)); err != nil {
				s.logger.Warn("dropping telemetry message", "error", err)
			}
		}
	}
}
