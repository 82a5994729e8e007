package results

import (
	"context"
	"sync"
	"time"

	"optionflow/logger"
	"optionflow/models"
)

// Sink names a consumer of pipeline results.
type Sink string

const (
	SinkArchive Sink = "archive"
	SinkLatest  Sink = "latest"
	SinkStream  Sink = "stream"
	SinkAPI     Sink = "api"
)

type ChannelStats struct {
	Sent    int64
	Dropped int64
}

// Channels fans results out to the enabled sinks. Sends never block: a full
// channel drops the result and counts it.
type Channels struct {
	channels map[Sink]chan *models.Result
	order    []Sink

	stats      map[Sink]*ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
	closeOnce  sync.Once
}

// NewChannels creates a buffered channel for each sink listed. Sends to a
// sink that was not listed are no-ops.
func NewChannels(bufferSize int, sinks ...Sink) *Channels {
	c := &Channels{
		channels: make(map[Sink]chan *models.Result, len(sinks)),
		stats:    make(map[Sink]*ChannelStats, len(sinks)),
		log:      logger.GetLogger(),
	}
	for _, s := range sinks {
		if _, dup := c.channels[s]; dup {
			continue
		}
		c.channels[s] = make(chan *models.Result, bufferSize)
		c.stats[s] = &ChannelStats{}
		c.order = append(c.order, s)
	}

	c.log.WithComponent("result_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
		"sinks":       c.order,
	}).Info("result channels initialized")
	return c
}

// Channel returns the receive side for s, or nil when s is not enabled.
func (c *Channels) Channel(s Sink) <-chan *models.Result {
	ch, ok := c.channels[s]
	if !ok {
		return nil
	}
	return ch
}

// Publish offers r to every enabled sink and reports whether any accepted it.
func (c *Channels) Publish(ctx context.Context, r *models.Result) bool {
	accepted := false
	for _, s := range c.order {
		if c.Send(ctx, s, r) {
			accepted = true
		}
	}
	return accepted
}

func (c *Channels) Send(ctx context.Context, s Sink, r *models.Result) bool {
	ch, ok := c.channels[s]
	if !ok {
		return false
	}
	select {
	case ch <- r:
		c.bump(s, func(st *ChannelStats) { st.Sent++ })
		logger.RecordChannelMessage(string(s)+"_results", len(r.Window))
		return true
	case <-ctx.Done():
		return false
	default:
		c.bump(s, func(st *ChannelStats) { st.Dropped++ })
		c.log.WithComponent("result_channels").WithFields(logger.Fields{
			"sink":   s,
			"symbol": r.Symbol,
		}).Warn("channel full, dropping result")
		return false
	}
}

func (c *Channels) bump(s Sink, f func(*ChannelStats)) {
	c.statsMutex.Lock()
	f(c.stats[s])
	c.statsMutex.Unlock()
}

// GetStats returns a copy of the per-sink counters.
func (c *Channels) GetStats() map[Sink]ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	out := make(map[Sink]ChannelStats, len(c.stats))
	for s, st := range c.stats {
		out[s] = *st
	}
	return out
}

// StartMetricsReporting logs channel statistics every interval until ctx ends.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logStats()
			}
		}
	}()
}

func (c *Channels) logStats() {
	stats := c.GetStats()
	fields := logger.Fields{}
	for _, s := range c.order {
		name := string(s)
		fields[name+"_sent"] = stats[s].Sent
		fields[name+"_dropped"] = stats[s].Dropped
		fields[name+"_len"] = len(c.channels[s])
		fields[name+"_cap"] = cap(c.channels[s])
	}
	c.log.WithComponent("result_channels").WithFields(fields).Info("channel statistics")
}

// Close closes the sink channels once; consumers drain what is buffered.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		for _, s := range c.order {
			close(c.channels[s])
		}
		c.log.WithComponent("result_channels").Info("result channels closed")
	})
}
