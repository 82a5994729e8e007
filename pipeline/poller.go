package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"optionflow/config"
	"optionflow/internal/channel/results"
	"optionflow/logger"
	"optionflow/models"
)

// Runner produces one result per symbol; *Pipeline implements it.
type Runner interface {
	RunOnce(ctx context.Context, symbol string) *models.Result
}

// Poller runs a cycle for every configured symbol on a fixed, wall-clock
// aligned interval and publishes the results.
type Poller struct {
	config   config.PipelineConfig
	runner   Runner
	channels *results.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewPoller(cfg *config.Config, runner Runner, channels *results.Channels) *Poller {
	p := &Poller{
		config:   cfg.Pipeline,
		runner:   runner,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}

	p.log.WithComponent("poller").WithFields(logger.Fields{
		"symbols":  cfg.Pipeline.Symbols,
		"interval": cfg.Pipeline.Interval.String(),
		"workers":  cfg.Pipeline.Workers,
	}).Info("poller initialized")
	return p
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("poller interval must be positive, got %s", p.config.Interval)
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()

	p.log.WithComponent("poller").Info("poller started")
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("poller").Info("stopping poller")
	p.wg.Wait()
	p.log.WithComponent("poller").Info("poller stopped")
}

func (p *Poller) loop() {
	defer p.wg.Done()

	log := p.log.WithComponent("poller")
	interval := p.config.Interval

	start := time.Now()
	p.Cycle(p.ctx)
	nextTick := start.Truncate(interval).Add(interval)
	timer := time.NewTimer(time.Until(nextTick))
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			log.Info("poller stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			p.Cycle(p.ctx)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": interval.Milliseconds(),
				}).Warn("cycle took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

// Cycle runs every symbol once, at most Workers at a time, publishes each
// result and returns them in symbol order.
func (p *Poller) Cycle(ctx context.Context) []*models.Result {
	out := make([]*models.Result, len(p.config.Symbols))

	g := new(errgroup.Group)
	workers := p.config.Workers
	if workers <= 0 {
		workers = 3
	}
	g.SetLimit(workers)
	for i, symbol := range p.config.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			res := p.runner.RunOnce(ctx, symbol)
			out[i] = res
			if p.channels != nil {
				p.channels.Publish(ctx, res)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
