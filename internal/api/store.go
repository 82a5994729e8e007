package api

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"optionflow/logger"
	"optionflow/models"
)

// Store keeps the latest result per symbol in memory for the HTTP API.
type Store struct {
	results <-chan *models.Result
	metrics *Metrics

	latest   map[string]*models.Result
	latestMu sync.RWMutex

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

func NewStore(results <-chan *models.Result, metrics *Metrics) *Store {
	return &Store{
		results: results,
		metrics: metrics,
		latest:  make(map[string]*models.Result),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("api store already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Store) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.WithComponent("api_store").Info("api store stopped")
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case r, ok := <-s.results:
			if !ok {
				return
			}
			s.Put(r)
		}
	}
}

// Put records r. A result without data does not replace one with data.
func (s *Store) Put(r *models.Result) {
	if s.metrics != nil {
		s.metrics.Observe(r)
	}
	s.latestMu.Lock()
	defer s.latestMu.Unlock()
	if prev, ok := s.latest[r.Symbol]; ok && prev.Available() && !r.Available() {
		return
	}
	s.latest[r.Symbol] = r
}

func (s *Store) Get(symbol string) (*models.Result, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	r, ok := s.latest[symbol]
	return r, ok
}

// Symbols lists the symbols with a stored result, sorted.
func (s *Store) Symbols() []string {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	out := make([]string, 0, len(s.latest))
	for sym := range s.latest {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
