package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"optionflow/config"
	"optionflow/internal/symbols"
	"optionflow/logger"
	"optionflow/models"
	"optionflow/processor"
)

// Fetcher is the upstream the pipeline reads from; *nse.Client implements it.
type Fetcher interface {
	FetchOptionChain(ctx context.Context, symbol, expiry string) (*models.RawOptionChain, error)
	FetchQuoteDerivative(ctx context.Context, symbol string) (*models.RawQuoteDerivative, error)
}

// Pipeline turns upstream payloads into a Result for one symbol per call.
// It holds no state between calls.
type Pipeline struct {
	cfg     config.PipelineConfig
	fetcher Fetcher
	loc     *time.Location
	log     *logger.Log
	now     func() time.Time
}

func New(cfg *config.Config, fetcher Fetcher) (*Pipeline, error) {
	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Pipeline.Timezone, err)
	}
	return &Pipeline{
		cfg:     cfg.Pipeline,
		fetcher: fetcher,
		loc:     loc,
		log:     logger.GetLogger(),
		now:     time.Now,
	}, nil
}

// RunOnce fetches and analyses symbol. It never fails: upstream problems
// produce a Result whose Message explains why it carries no data.
func (p *Pipeline) RunOnce(ctx context.Context, symbol string) *models.Result {
	symbol = symbols.Normalize(symbol)
	start := p.now()
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"symbol": symbol})

	res := p.run(ctx, symbol, start, log)

	duration := time.Since(start)
	logger.IncrementCycle(res.Available())
	outcome := "ok"
	if !res.Available() {
		outcome = "unavailable"
		log.WithFields(logger.Fields{"reason": res.Message}).Warn("cycle produced no data")
	}
	p.log.LogMetric("pipeline", "cycle_"+outcome, 1, "counter", logger.Fields{"symbol": symbol})
	p.log.LogMetric("pipeline", "cycle_duration_ms", float64(duration.Milliseconds()), "duration_ms", logger.Fields{"symbol": symbol})
	logger.LogDataFlowEntry(log, "nse_api", "result", len(res.Window), "window_rows")
	return res
}

func (p *Pipeline) run(ctx context.Context, symbol string, start time.Time, log *logger.Entry) *models.Result {
	base, err := p.fetcher.FetchOptionChain(ctx, symbol, "")
	if err != nil {
		log.WithError(err).Warn("failed to fetch expiry list")
		return models.Unavailable(symbol, start, describe(err))
	}
	expiry := processor.NearestExpiry(base.Records.ExpiryDates, start, p.loc)

	var (
		chain  = base
		quotes *models.RawQuoteDerivative
	)
	g := new(errgroup.Group)
	g.SetLimit(p.workers())
	if expiry != "" {
		g.Go(func() error {
			filtered, err := p.fetcher.FetchOptionChain(ctx, symbol, expiry)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"expiry": expiry}).Warn("expiry chain fetch failed, using default chain")
				return nil
			}
			chain = filtered
			return nil
		})
	}
	g.Go(func() error {
		q, err := p.fetcher.FetchQuoteDerivative(ctx, symbol)
		if err != nil {
			log.WithError(err).Warn("quote derivative fetch failed, continuing without OHLC")
			return nil
		}
		quotes = q
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return models.Unavailable(symbol, start, describe(ctx.Err()))
	}
	return p.Build(symbol, expiry, chain, quotes, start)
}

func (p *Pipeline) workers() int {
	if p.cfg.Workers <= 0 {
		return 3
	}
	return p.cfg.Workers
}

// Build runs the pure stages over already-fetched payloads.
func (p *Pipeline) Build(symbol, expiry string, chain *models.RawOptionChain, quotes *models.RawQuoteDerivative, now time.Time) *models.Result {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"symbol": symbol, "expiry": expiry})

	if chain == nil {
		return models.Unavailable(symbol, now, "empty option chain")
	}
	rec := chain.Records
	underlying := rec.UnderlyingValue.Float()
	if underlying == 0 && quotes != nil {
		underlying = quotes.UnderlyingValue.Float()
	}

	fill := func(r *models.Result) *models.Result {
		r.Expiry = expiry
		if rec.ExpiryDates != nil {
			r.ExpiryDates = rec.ExpiryDates
		}
		r.Underlying = underlying
		r.Timestamp = rec.Timestamp
		r.MarketStatus = processor.MarketStatus(rec.Timestamp, p.loc)
		return r
	}

	table := processor.Normalize(chain, quotes, expiry)
	if len(table) == 0 {
		return fill(models.Unavailable(symbol, now, "empty option chain"))
	}
	if underlying <= 0 {
		return fill(models.Unavailable(symbol, now, "missing underlying value"))
	}

	res := fill(models.NewResult(symbol, now))

	window, err := processor.SelectWindow(table, underlying, p.cfg.Before, p.cfg.After)
	var mismatch *processor.WindowSizeMismatch
	if errors.As(err, &mismatch) {
		res.WindowWarning = mismatch.Error()
		log.WithFields(logger.Fields{"expected": mismatch.Expected, "got": mismatch.Got}).Warn("short window")
	}

	ranking := processor.RankHighVolume(window, p.cfg.TopVolume)

	res.Window = processor.Annotate(window)
	res.HighVolume = ranking
	res.Summary = processor.ComputeSummary(table, rec.Timestamp)
	res.MaxOI = processor.AnalyzeMaxOIPair(window)
	res.MaxValue = processor.AnalyzeMaxValuePair(window)
	res.LTPSimilarity = processor.CheckLTPSimilarity(window, rec.Timestamp, p.cfg.LTPTolerance)
	res.HighVolumeAnalysis = processor.AnalyzeHighVolume(ranking, expiry, p.cfg.RangeTop)
	res.Premium = p.premium(table, underlying, expiry, now)

	log.WithFields(logger.Fields{
		"rows":       len(table),
		"window":     len(window),
		"underlying": underlying,
		"pcr_oi":     res.Summary.PCROI.String(),
	}).Debug("result built")
	return res
}

func (p *Pipeline) premium(table models.OptionChainTable, underlying float64, expiry string, now time.Time) models.PremiumEstimate {
	idx := processor.FindATM(table, underlying)
	if idx < 0 {
		return models.PremiumEstimate{}
	}
	atm := table[idx]
	est := models.PremiumEstimate{Strike: atm.Strike, CallIV: atm.Call.IV, PutIV: atm.Put.IV}
	years, err := processor.YearsToExpiry(expiry, now, p.loc)
	if err != nil {
		return est
	}
	est.YearsToExpiry = years
	est.Call, est.Put = processor.TheoreticalPremiums(atm, underlying, years, p.cfg.RiskFreeRate)
	return est
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return err.Error()
}
