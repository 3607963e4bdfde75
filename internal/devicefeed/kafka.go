package devicefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaTopic   = "device-telemetry"
	defaultPollTimeout  = 5 * time.Second
	defaultKafkaGroupID = "ecogrid-gateway"
)

type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// messageReader is the subset of *kafka.Reader the source needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes device telemetry from a Kafka topic. Every message is
// committed once handled, including malformed ones.
type KafkaSource struct {
	cfg    KafkaConfig
	reader messageReader
	logger *slog.Logger
}

func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultKafkaTopic
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		cfg.GroupID = defaultKafkaGroupID
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaSource(cfg, reader), nil
}

func newKafkaSource(cfg KafkaConfig, reader messageReader) *KafkaSource {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &KafkaSource{
		cfg:    cfg,
		reader: reader,
		logger: slog.With("component", "devicefeed", "source", "kafka", "topic", cfg.Topic),
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (s *KafkaSource) Run(ctx context.Context, sink Sink) error {
	s.logger.Info("[DeviceFeed] Kafka consumer started",
		"group", s.cfg.GroupID, "brokers", strings.Join(s.cfg.Brokers, ","))
	defer s.logger.Info("[DeviceFeed] Kafka consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			s.logger.Error("[DeviceFeed] Fetch failed", "error", err)
			continue
		}

		if ev, err := Decode(msg.Value); err != nil {
			sink.Malformed(msg.Value, err)
		} else {
			sink.Apply(ev)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		if err := s.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				s.logger.Error("[DeviceFeed] Commit failed", "offset", msg.Offset, "error", err)
			}
		}
		commitCancel()
	}
}

func (s *KafkaSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
