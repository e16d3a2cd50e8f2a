package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tablekv/internal/config"
	"tablekv/internal/logger"
	"tablekv/internal/metric"
	"tablekv/internal/network"
	"tablekv/internal/service"
	"tablekv/internal/storage"
	"tablekv/internal/tlsutil"
	"tablekv/internal/types"
)

func main() {
	configPath := flag.String("config", "server.toml", "Path to the server config file")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		logger.Fatal("config: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel); err != nil {
		logger.Fatal("logger: %v", err)
	}
	defer logger.Sync()

	store, cleanup, err := openStore(cfg)
	if err != nil {
		logger.Fatal("storage: %v", err)
	}
	defer cleanup()

	opts, walCleanup, err := buildHooks(cfg, store)
	if err != nil {
		logger.Fatal("hooks: %v", err)
	}
	defer walCleanup()

	tlsConf, err := tlsutil.NewServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.ClientCAFile)
	if err != nil {
		logger.Fatal("tls: %v", err)
	}

	srv := network.NewServer(service.New(store, opts...), tlsConf)

	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			logger.Fatal("server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")
	srv.Close()
}

func openStore(cfg *config.ServerConfig) (storage.Storage, func(), error) {
	switch cfg.Storage.Engine {
	case config.EngineBadger:
		bs, err := storage.NewBadgerStore(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("badger engine at %s", cfg.Storage.Path)
		return bs, func() { bs.Close() }, nil
	default:
		logger.Info("in-memory engine")
		return storage.NewMemStore(), func() {}, nil
	}
}

// buildHooks assembles the pipeline hooks: WAL logging of mutating commands
// when configured, prometheus counters when a metrics address is set.
func buildHooks(cfg *config.ServerConfig, store storage.Storage) ([]service.Option, func(), error) {
	var opts []service.Option
	cleanup := func() {}

	if cfg.WALPath != "" {
		wal, err := storage.OpenWAL(cfg.WALPath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { wal.Close() }

		// the memory engine starts empty, so recover it from the log first
		if cfg.Storage.Engine == config.EngineMemory {
			if err := replay(wal, store); err != nil {
				wal.Close()
				return nil, nil, err
			}
		}

		opts = append(opts, service.OnReceived(func(req *types.CommandRequest) {
			switch req.Cmd.(type) {
			case *types.Hset, *types.Hmset, *types.Hdel, *types.Hmdel:
				if err := wal.Append(req); err != nil {
					logger.Error("wal append: %v", err)
				}
			}
		}))
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m := metric.New(reg)
		opts = append(opts,
			service.OnReceived(m.ReceivedHook()),
			service.OnAfterSend(m.SentHook()),
		)
		go metric.Serve(cfg.MetricsAddr, reg)
		logger.Info("metrics on %s", cfg.MetricsAddr)
	}

	return opts, cleanup, nil
}

func replay(wal *storage.WAL, store storage.Storage) error {
	requests, err := wal.Replay()
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return nil
	}
	svc := service.New(store)
	for _, req := range requests {
		rs := svc.Execute(req)
		for range rs.C {
		}
		rs.Close()
	}
	logger.Info("replayed %d commands from the WAL", len(requests))
	return nil
}
