// Command optionchain runs one pipeline cycle per symbol and prints the
// results as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/logger"
	"optionflow/pipeline"
	"optionflow/reader/nse"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file")
	symbolList := flag.String("symbol", "", "Comma separated symbols, overriding pipeline.symbols")
	compact := flag.Bool("compact", false, "Print one JSON document per line")
	strict := flag.Bool("strict", false, "Exit with status 2 when any symbol has no data")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	// Logs go to stderr so stdout carries only results.
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, "stderr", 0); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *symbolList != "" {
		cfg.Pipeline.Symbols = nil
		for _, s := range strings.Split(*symbolList, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Pipeline.Symbols = append(cfg.Pipeline.Symbols, s)
			}
		}
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

	out := pipeline.NewPoller(cfg, pipe, nil).Cycle(context.Background())

	enc := json.NewEncoder(os.Stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	missing := 0
	for _, r := range out {
		if !r.Available() {
			missing++
		}
		if err := enc.Encode(r); err != nil {
			log.WithError(err).Error("failed to write result")
			os.Exit(1)
		}
	}
	if *strict && missing > 0 {
		os.Exit(2)
	}
}
