package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/api"
	"optionflow/internal/channel/results"
	"optionflow/logger"
	"optionflow/pipeline"
	"optionflow/reader/nse"
	"optionflow/writer"
)

// component is the Start/Stop lifecycle shared by the poller and sinks.
type component interface {
	Start(ctx context.Context) error
	Stop()
}

type namedComponent struct {
	name string
	component
}

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file (defaults to config/config.yml or the APP_ENV variant)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Optionflow.Name,
		"version":     cfg.Optionflow.Version,
		"environment": config.AppEnvironment(),
		"symbols":     cfg.Pipeline.Symbols,
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
		if !logger.CloudWatchEnabled() {
			log.Warn("cloudwatch metrics enabled in config but client unavailable, continuing without them")
		}
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	client, err := nse.NewClient(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create NSE client")
		os.Exit(1)
	}
	pipe, err := pipeline.New(cfg, client)
	if err != nil {
		log.WithError(err).Error("failed to create pipeline")
		os.Exit(1)
	}

	var sinks []results.Sink
	if cfg.Writer.Archive.Enabled {
		sinks = append(sinks, results.SinkArchive)
	}
	if cfg.Writer.Latest.Enabled {
		sinks = append(sinks, results.SinkLatest)
	}
	if cfg.Writer.Stream.Enabled {
		sinks = append(sinks, results.SinkStream)
	}
	if cfg.API.Enabled {
		sinks = append(sinks, results.SinkAPI)
	}
	channels := results.NewChannels(cfg.Channels.ResultBuffer, sinks...)
	channels.StartMetricsReporting(ctx, cfg.Logging.ReportInterval)

	var sinkComponents []namedComponent
	if cfg.Writer.Archive.Enabled {
		w, err := writer.NewArchiveWriter(cfg, channels.Channel(results.SinkArchive))
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
		sinkComponents = append(sinkComponents, namedComponent{"archive writer", w})
	}
	if cfg.Writer.Latest.Enabled {
		w, err := writer.NewLatestStore(cfg, channels.Channel(results.SinkLatest))
		if err != nil {
			log.WithError(err).Error("failed to create redis writer")
			os.Exit(1)
		}
		sinkComponents = append(sinkComponents, namedComponent{"redis writer", w})
	}
	if cfg.Writer.Stream.Enabled {
		w, err := writer.NewStreamWriter(cfg, channels.Channel(results.SinkStream))
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		sinkComponents = append(sinkComponents, namedComponent{"kafka writer", w})
	}

	var wg sync.WaitGroup
	if cfg.API.Enabled {
		metrics := api.NewMetrics()
		store := api.NewStore(channels.Channel(results.SinkAPI), metrics)
		sinkComponents = append(sinkComponents, namedComponent{"api store", store})

		server := api.NewServer(cfg, store, metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				log.WithError(err).Error("api server failed")
			}
		}()
	}

	for _, c := range sinkComponents {
		if err := c.Start(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"component": c.name}).Warn("component failed to start")
		}
	}

	poller := pipeline.NewPoller(cfg, pipe, channels)
	if err := poller.Start(ctx); err != nil {
		log.WithError(err).Error("poller failed to start")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		log.Info("stopping poller")
		poller.Stop()
		for _, c := range sinkComponents {
			log.Info("stopping " + c.name)
			c.Stop()
		}
		channels.Close()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("optionflow stopped")
}
