package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/pulsedao/pulse-indexer/db"
	"github.com/pulsedao/pulse-indexer/events"
	"github.com/pulsedao/pulse-indexer/indexer"
	"github.com/pulsedao/pulse-indexer/metrics"
	"github.com/pulsedao/pulse-indexer/stream"
	"github.com/pulsedao/pulse-indexer/types"
	"github.com/pulsedao/pulse-indexer/utils"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file, if empty string defaults will be used")
	flag.Parse()

	cfg := &types.Config{}
	err := utils.ReadConfig(cfg, *configPath)
	if err != nil {
		logrus.Fatalf("error reading config file: %v", err)
	}
	utils.Config = cfg
	logWriter, logger := utils.InitLogger()
	defer logWriter.Dispose()

	logger.WithFields(logrus.Fields{
		"config":  *configPath,
		"version": utils.BuildVersion,
		"release": utils.BuildRelease,
	}).Printf("starting")

	db.MustInitDB()
	err = db.ApplyEmbeddedDbSchema(-2)
	if err != nil {
		logger.Fatalf("error initializing db schema: %v", err)
	}

	if cfg.Metrics.Enabled {
		err = metrics.StartMetricsServer(logger.WithField("module", "metrics"), cfg.Metrics.Host, cfg.Metrics.Port)
		if err != nil {
			logger.Fatalf("error starting metrics server: %v", err)
		}
	}

	registry := events.NewRegistry()
	provider := stream.NewWsProvider(cfg.Provider.Url, cfg.Provider.AuthToken, cfg.Provider.ReadTimeout)

	eventIndexer, err := indexer.NewIndexer(provider, registry)
	if err != nil {
		logger.Fatalf("error initializing indexer: %v", err)
	}
	err = eventIndexer.Start()
	if err != nil {
		logger.Fatalf("error starting indexer: %v", err)
	}

	utils.WaitForCtrlC()
	logger.Println("exiting...")
	eventIndexer.Stop()
	db.MustCloseDB()
}
