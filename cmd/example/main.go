// Command example demonstrates a Manager driving an H2-kind pool end to
// end: configure, acquire, run the test query, release, and shut down
// cleanly on signal. Adapted from the teacher library's misc/example.go,
// which dialed a fixed set of hosts through a Service and printed the
// winning host on each request.
package main

import (
	"context"
	"database/sql/driver"
	"log"
	"os/signal"
	"syscall"
	"time"

	atlasdb "github.com/bubchi89/atlasdb"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()
	atlasdb.SetLogger(logger)

	cfg := &atlasdb.PoolConfig{
		ConnID:            "example",
		URL:               ":memory:",
		DBKind:            atlasdb.DBKindH2,
		MinConnections:    2,
		MaxConnections:    5,
		CheckoutTimeoutMS: 2000,
		MaxConnectionAgeS: 1800,
		MaxIdleTimeS:      300,
		ConnectTimeoutS:   5,
	}

	mgr, err := atlasdb.NewManager(cfg,
		atlasdb.WithLogger(logger),
		atlasdb.WithOnAcquireHook(func(conn driver.Conn) error {
			logger.Debug("new connection opened", zap.String("conn_id", cfg.ConnID))
			return nil
		}),
	)
	if err != nil {
		log.Fatalf("new manager: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.Init(ctx); err != nil {
		log.Fatalf("init: %v", err)
	}
	defer mgr.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			acquireOnce(ctx, mgr, logger)
		}
	}
}

func acquireOnce(ctx context.Context, mgr *atlasdb.Manager, logger *zap.Logger) {
	conn, err := mgr.Acquire(ctx)
	if err != nil {
		logger.Warn("acquire failed", zap.Error(err))
		return
	}
	defer func() {
		if err := mgr.Release(conn); err != nil {
			logger.Warn("release failed", zap.Error(err))
		}
	}()

	stats := mgr.Stats()
	logger.Info("acquired",
		zap.Int("busy", stats.Busy),
		zap.Int("idle", stats.Idle),
		zap.Int("total", stats.Total),
		zap.Float64("pressure", mgr.Pressure()),
	)
}
