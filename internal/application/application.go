package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/internal/compression"
	"github.com/preisanalytics/redis-semaphore/internal/compute"
	"github.com/preisanalytics/redis-semaphore/internal/config"
	"github.com/preisanalytics/redis-semaphore/internal/delivery/tcp"
	"github.com/preisanalytics/redis-semaphore/internal/service"
	"github.com/preisanalytics/redis-semaphore/internal/storage/snapshot"
	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/sizeutil"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
)

// Application wires the configured store daemon together and runs it.
type Application struct {
	cfg *config.Config
}

// New - creates and returns a new instance of Application.
func New(cfg *config.Config) *Application {
	return &Application{
		cfg: cfg,
	}
}

// Start - initializes logger, store, snapshotting and the TCP server, then
// serves until ctx is done.
func (a *Application) Start(ctx context.Context) error {
	if a.cfg.Network == nil {
		return errors.New("missing network configuration")
	}

	if lcfg := a.cfg.Logging; lcfg != nil {
		logger.InitLogger(lcfg.Level, lcfg.Output)
	}

	st := memory.New()

	var snapDone chan struct{}
	if scfg := a.cfg.Snapshot; scfg != nil && scfg.Path != "" {
		snapshotter, err := snapshot.New(st, scfg.Path,
			compression.CompressionType(scfg.Compression))
		if err != nil {
			return fmt.Errorf("initialize snapshotter failed: %w", err)
		}

		if err := snapshotter.Load(); err != nil {
			return fmt.Errorf("restore snapshot failed: %w", err)
		}

		snapDone = make(chan struct{})
		go func() {
			defer close(snapDone)
			snapshotter.Run(ctx, scfg.Interval)
		}()
	}

	var rootUser, rootPass string
	if a.cfg.Root != nil {
		rootUser, rootPass = a.cfg.Root.Username, a.cfg.Root.Password
	}

	svc, err := service.New(compute.NewParser(), st, rootUser, rootPass)
	if err != nil {
		return fmt.Errorf("initialize service failed: %w", err)
	}

	tcpServerOpts := make([]tcp.ServerOption, 0)
	if timeout := a.cfg.Network.IdleTimeout; timeout != 0 {
		logger.Debug("set tcp idle timeout", zap.Stringer("idle_timeout", timeout))
		tcpServerOpts = append(tcpServerOpts, tcp.WithServerIdleTimeout(timeout))
	}

	if mcons := a.cfg.Network.MaxConnections; mcons != 0 {
		logger.Debug("set tcp max connections", zap.Int("max_connections", int(mcons)))
		tcpServerOpts = append(tcpServerOpts, tcp.WithServerMaxConnectionsNumber(mcons))
	}

	if msize := a.cfg.Network.MaxMessageSize; msize != "" {
		size, err := sizeutil.ParseSize(msize)
		if err != nil {
			logger.Error("parse max message size failed", zap.Error(err))
			return err
		}

		logger.Debug("set max_message_size bytes", zap.Int("max_message_size", size))
		tcpServerOpts = append(tcpServerOpts, tcp.WithServerBufferSize(uint(size)))
	}

	server, err := tcp.NewServer(a.cfg.Network.Address, tcpServerOpts...)
	if err != nil {
		return fmt.Errorf("init tcp server failed: %w", err)
	}

	err = server.Start(ctx, func() tcp.Handler {
		sess := new(service.Session)
		return func(ctx context.Context, request []byte) []byte {
			return []byte(svc.HandleQuery(ctx, sess, string(request)))
		}
	})

	if snapDone != nil {
		// Wait for the final snapshot before reporting shutdown.
		<-snapDone
	}

	return err
}
