// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/BoostyLabs/ordindex/internal/blocksource"
	"github.com/BoostyLabs/ordindex/internal/config"
	"github.com/BoostyLabs/ordindex/internal/index"
	"github.com/BoostyLabs/ordindex/internal/logging"
)

// process exit codes.
const (
	exitOK     = 0
	exitConfig = 1
	exitSchema = 2
	exitRPC    = 3
	exitFatal  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.GetLogger().Errorw("invalid configuration", "error", err)
		return exitConfig
	}

	logging.Configure(cfg.Logging.Level)
	log := logging.GetLogger()

	user, pass, err := cfg.Bitcoin.Credentials()
	if err != nil {
		log.Errorw("invalid bitcoin rpc credentials", "error", err)
		return exitConfig
	}

	client, err := blocksource.NewClient(cfg.Bitcoin.RPCURL, user, pass)
	if err != nil {
		log.Errorw("failed to reach the bitcoin node", "url", cfg.Bitcoin.RPCURL, "error", err)
		return exitRPC
	}
	defer client.Shutdown()

	idx, err := index.Open(cfg, client)
	if err != nil {
		if errors.Is(err, index.ErrSchemaMismatch) {
			log.Errorw("index schema mismatch", "path", cfg.IndexPath, "error", err)
			return exitSchema
		}

		log.Errorw("failed to open the index", "path", cfg.IndexPath, "error", err)
		return exitConfig
	}
	defer func() { _ = idx.Close() }()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Infow("shutdown requested, committing the current batch")
		idx.Shutdown()

		// a second signal escalates to immediate termination.
		<-signals
		log.Warnw("second shutdown signal, terminating")
		os.Exit(exitFatal)
	}()

	log.Infow("starting indexer",
		"network", cfg.Chain.String(),
		"index", cfg.IndexPath,
		"sats", cfg.Index.Sats,
		"runes", cfg.Index.Runes)

	if err = idx.Run(); err != nil {
		log.Errorw("indexer stopped", "error", err)
		return exitFatal
	}

	return exitOK
}
