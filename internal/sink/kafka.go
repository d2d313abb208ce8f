package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/rtspd/internal/log"
)

const (
	KafkaName = "kafka"

	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// KafkaOptions configures the Kafka sink.
type KafkaOptions struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 3
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes records as JSON, keyed by connection id so a connection's
// requests stay ordered within one partition.
type Kafka struct {
	writer messageWriter
	opts   KafkaOptions

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewKafka(options map[string]any) (*Kafka, error) {
	opts, err := parseKafkaOptions(options)
	if err != nil {
		return nil, err
	}

	wc := kafka.WriterConfig{
		Brokers:      opts.Brokers,
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    opts.BatchSize,
		BatchTimeout: opts.BatchTimeout,
		MaxAttempts:  opts.MaxAttempts,
	}
	switch opts.Compression {
	case "none", "":
	case "gzip":
		wc.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		wc.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		wc.CompressionCodec = compress.Lz4.Codec()
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":     opts.Brokers,
		"topic":       opts.Topic,
		"compression": opts.Compression,
	}).Info("kafka sink ready")

	return newKafkaWithWriter(kafka.NewWriter(wc), opts), nil
}

func newKafkaWithWriter(w messageWriter, opts KafkaOptions) *Kafka {
	return &Kafka{writer: w, opts: opts}
}

func parseKafkaOptions(options map[string]any) (KafkaOptions, error) {
	opts := KafkaOptions{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if options == nil {
		return opts, fmt.Errorf("kafka sink requires options")
	}
	if err := decodeOptions(options, &opts); err != nil {
		return opts, err
	}
	if len(opts.Brokers) == 0 {
		return opts, fmt.Errorf("brokers is required")
	}
	if opts.Topic == "" {
		return opts, fmt.Errorf("topic is required")
	}
	switch opts.Compression {
	case "none", "", "gzip", "snappy", "lz4":
	default:
		return opts, fmt.Errorf("invalid compression type: %s", opts.Compression)
	}
	return opts, nil
}

func (k *Kafka) Name() string { return KafkaName }

func (k *Kafka) Emit(ctx context.Context, rec Record) error {
	value, err := json.Marshal(rec)
	if err != nil {
		k.failed.Add(1)
		return fmt.Errorf("serialize record failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.Conn),
		Value: value,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "method", Value: []byte(rec.Method)},
			{Key: "cseq", Value: []byte(strconv.FormatUint(uint64(rec.CSeq), 10))},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.failed.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}
	k.sent.Add(1)
	return nil
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	err := k.writer.Close()
	log.GetLogger().WithFields(map[string]interface{}{
		"total_sent":   k.sent.Load(),
		"total_failed": k.failed.Load(),
	}).Info("kafka sink closed")
	return err
}
