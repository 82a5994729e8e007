package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// ErrNoResult is returned by Get when no result is stored for a symbol.
var ErrNoResult = errors.New("no result stored")

// LatestStore keeps the most recent result per symbol in Redis under
// KeyPrefix+symbol and announces each one on Channel.
type LatestStore struct {
	config  appconfig.LatestConfig
	client  *redis.Client
	results <-chan *models.Result
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewLatestStore(cfg *appconfig.Config, results <-chan *models.Result) (*LatestStore, error) {
	opt, err := redis.ParseURL(cfg.Storage.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	s := &LatestStore{
		config:  cfg.Writer.Latest,
		client:  redis.NewClient(opt),
		results: results,
		ctx:     context.Background(),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
	s.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"addr":       opt.Addr,
		"db":         opt.DB,
		"key_prefix": s.config.KeyPrefix,
		"channel":    s.config.Channel,
	}).Info("redis writer initialized")
	return s, nil
}

func (s *LatestStore) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("redis writer already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.WithComponent("redis_writer").WithError(err).Warn("redis not reachable yet")
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *LatestStore) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent("redis_writer").Info("stopping redis writer")
	s.wg.Wait()
	if err := s.client.Close(); err != nil {
		s.log.WithComponent("redis_writer").WithError(err).Warn("failed to close redis client")
	}
	s.log.WithComponent("redis_writer").Info("redis writer stopped")
}

func (s *LatestStore) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case r, ok := <-s.results:
			if !ok {
				return
			}
			if err := s.Put(s.ctx, r); err != nil {
				s.log.WithComponent("redis_writer").WithError(err).WithFields(logger.Fields{
					"symbol": r.Symbol,
				}).Warn("failed to store latest result")
			}
		}
	}
}

// Key is the Redis key holding the latest result for symbol.
func (s *LatestStore) Key(symbol string) string {
	return s.config.KeyPrefix + symbol
}

// Put stores r with the configured TTL and publishes it. Results without
// data do not replace a stored result that has data.
func (s *LatestStore) Put(ctx context.Context, r *models.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if r.Available() {
		if err := s.client.Set(ctx, s.Key(r.Symbol), payload, s.config.TTL).Err(); err != nil {
			return fmt.Errorf("set %s: %w", s.Key(r.Symbol), err)
		}
	} else if err := s.client.SetNX(ctx, s.Key(r.Symbol), payload, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("setnx %s: %w", s.Key(r.Symbol), err)
	}

	if s.config.Channel != "" {
		if err := s.client.Publish(ctx, s.config.Channel, payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", s.config.Channel, err)
		}
	}
	logger.IncrementLatestWrite(len(payload))
	return nil
}

// Get returns the stored result for symbol.
func (s *LatestStore) Get(ctx context.Context, symbol string) (*models.Result, error) {
	raw, err := s.client.Get(ctx, s.Key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.Key(symbol), err)
	}
	var r models.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Key(symbol), err)
	}
	return &r, nil
}
