package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// messageWriter is the part of *kafka.Writer the stream writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StreamWriter publishes every result as JSON to a Kafka topic, keyed by
// symbol so one symbol's results stay ordered within a partition.
type StreamWriter struct {
	config  *appconfig.Config
	results <-chan *models.Result
	writer  messageWriter
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewStreamWriter(cfg *appconfig.Config, results <-chan *models.Result) (*StreamWriter, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := newStreamWriter(cfg, results, &kafka.Writer{
		Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
		Topic:    cfg.Writer.Stream.Topic,
		Balancer: &kafka.Hash{},
	})
	w.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Writer.Stream.Topic,
	}).Debug("kafka writer initialized")
	return w, nil
}

func newStreamWriter(cfg *appconfig.Config, results <-chan *models.Result, mw messageWriter) *StreamWriter {
	return &StreamWriter{
		config:  cfg,
		results: results,
		writer:  mw,
		ctx:     context.Background(),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (sw *StreamWriter) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	sw.running = true
	sw.ctx = ctx
	sw.mu.Unlock()

	sw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	sw.wg.Add(1)
	go sw.run()
	return nil
}

func (sw *StreamWriter) run() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.ctx.Done():
			return
		case r, ok := <-sw.results:
			if !ok {
				return
			}
			if err := sw.write(sw.ctx, r); err != nil {
				sw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to write message")
			}
		}
	}
}

func (sw *StreamWriter) write(ctx context.Context, r *models.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Symbol),
		Value: data,
		Headers: []kafka.Header{
			{Key: "result_id", Value: []byte(r.ID.String())},
		},
	}
	if err := sw.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	sw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"result_id": r.ID.String(),
		"symbol":    r.Symbol,
		"rows":      len(r.Window),
	}).Debug("result written to kafka")
	return nil
}

func (sw *StreamWriter) Stop() {
	sw.mu.Lock()
	sw.running = false
	sw.mu.Unlock()

	sw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	sw.wg.Wait()
	if err := sw.writer.Close(); err != nil {
		sw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	sw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}
