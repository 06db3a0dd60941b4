package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"

	"signal_bot/internal/models"
	signals "signal_bot/internal/modules/signals/service"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	PricePlaces  int
}

// KafkaSink публикует сигнал в топик, ключ: отпечаток сигнала.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	places  int
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, cfg), nil
}

func newKafkaSink(w messageWriter, cfg KafkaConfig) *KafkaSink {
	return &KafkaSink{writer: w, timeout: cfg.WriteTimeout, places: cfg.PricePlaces}
}

func (s *KafkaSink) Name() string { return "kafka" }

type signalMessage struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Strategy    string    `json:"strategy"`
	Direction   string    `json:"direction"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	RR          float64   `json:"risk_reward_ratio"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale,omitempty"`
	CandleTime  time.Time `json:"candle_time"`
	ValidatedAt time.Time `json:"validated_at"`
}

func (s *KafkaSink) Receive(ctx context.Context, sig models.ValidatedSignal) error {
	fp := signals.Fingerprint(sig.CandidateSignal, s.places)
	payload, err := sonic.Marshal(signalMessage{
		ID:          sig.ID,
		Fingerprint: fp,
		Symbol:      sig.Symbol,
		Timeframe:   sig.Timeframe,
		Strategy:    sig.Strategy,
		Direction:   string(sig.Direction),
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		RR:          sig.RR,
		Confidence:  sig.Confidence,
		Rationale:   sig.Rationale,
		CandleTime:  sig.CandleTime,
		ValidatedAt: sig.ValidatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fp),
		Value: payload,
		Time:  sig.ValidatedAt,
		Headers: []kafka.Header{
			{Key: "timeframe", Value: []byte(sig.Timeframe)},
			{Key: "strategy", Value: []byte(sig.Strategy)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
