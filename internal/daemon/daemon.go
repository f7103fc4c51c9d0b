// Package daemon wires the dispatch core (config, dispatcher, pipeline,
// federation) into a long-running process exposing the apiv1 control
// plane, the way the teacher's internal/daemon wires JobManager/db/web into
// a process exposing the generated DaemonService (internal/daemon/daemon.go).
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/dispatch"
	"github.com/dispatchd/dispatchd/internal/driver"
	"github.com/dispatchd/dispatchd/internal/events"
	"github.com/dispatchd/dispatchd/internal/federation"
	"github.com/dispatchd/dispatchd/internal/hooks"
	"github.com/dispatchd/dispatchd/internal/logging"
	"github.com/dispatchd/dispatchd/internal/pipeline"
	"github.com/dispatchd/dispatchd/internal/record"
	"github.com/dispatchd/dispatchd/pkg/imaging"
)

// Daemon is the main process coordinator: it owns the event bus, the
// dispatcher's worker pool, the pipeline, every federation driver, and the
// control-plane server.
type Daemon struct {
	cfg      *Config
	settings *config.Config

	bus        *events.Bus
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	server     *Server
	pidFile    *PIDFile

	federationDrivers []*federation.Driver

	log *logging.Logger
	wg  sync.WaitGroup
}

// New constructs a Daemon from process config, loaded settings, and the
// caller-supplied image session (the metadata/storage collaborator, out of
// the dispatch core's own scope per pkg/imaging's doc comment).
func New(cfg *Config, settings *config.Config, session imaging.Session) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	bus := events.NewBus(1000)
	dispatcher := dispatch.New(dispatch.Config{
		MaxInitAttempts: settings.MaxInitAttempts,
		Events:          bus,
	})
	registry := hooks.NewRegistry()
	pl := pipeline.New(pipeline.Config{
		AcquireTimeout: settings.PerRequestTimeout(),
		BackendTimeout: settings.MaxTimeout(),
	}, dispatcher, registry, bus)

	localLoopID := settings.LocalLoopID
	if localLoopID == "" {
		localLoopID = uuid.NewString()
	}

	d := &Daemon{
		cfg:        cfg,
		settings:   settings,
		bus:        bus,
		dispatcher: dispatcher,
		pipeline:   pl,
		pidFile:    NewPIDFile(cfg.PIDFile),
		log:        logging.New(logging.ParseLevel(settings.LogLevel)),
	}

	for i, w := range settings.Workers {
		id := fmt.Sprintf("worker-%d", i)
		rec := record.New(id, w.DriverType, true)
		drv := driver.NewHTTPDriver(driver.HTTPConfig{BaseURL: w.Address})
		dispatcher.Add(rec, drv)
	}

	for i, peer := range settings.Federation {
		recID := fmt.Sprintf("federation-%d", i)
		rec := record.New(recID, "federation", true)
		fd := federation.New(federation.Config{
			Address:     peer.Address,
			AllowIdle:   peer.AllowIdle,
			OverQueue:   peer.OverQueue,
			LocalLoopID: localLoopID,
		}, recID, dispatcher, bus)
		dispatcher.Add(rec, fd)
		d.federationDrivers = append(d.federationDrivers, fd)
	}

	grpcImpl := NewGRPCServer(dispatcher, pl, bus, session, cfg.Version)
	d.server = NewServer(cfg.SocketPath, grpcImpl)

	return d, nil
}

// Start acquires the PID file, launches the dispatcher's init-retry loop and
// every federation driver's idle monitor, and blocks serving the control
// plane until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.pidFile.Acquire(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatcher.Run(runCtx)
	}()

	for _, fd := range d.federationDrivers {
		d.wg.Add(1)
		go func(fd *federation.Driver) {
			defer d.wg.Done()
			fd.RunIdleMonitor(runCtx)
		}(fd)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- d.server.Start()
	}()

	select {
	case <-ctx.Done():
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := d.server.Stop(stopCtx); err != nil {
			d.log.Errorf("daemon: error stopping server: %v", err)
		}
		cancel()
		d.wg.Wait()
		if err := d.pidFile.Release(); err != nil {
			d.log.Errorf("daemon: error releasing PID file: %v", err)
		}
		return ctx.Err()
	case err := <-serveErr:
		cancel()
		d.wg.Wait()
		if relErr := d.pidFile.Release(); relErr != nil {
			d.log.Errorf("daemon: error releasing PID file: %v", relErr)
		}
		return err
	}
}

// Dispatcher exposes the underlying Dispatcher, for callers embedding the
// daemon in a larger process (e.g. a test harness).
func (d *Daemon) Dispatcher() *dispatch.Dispatcher { return d.dispatcher }

// Bus exposes the underlying event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Server exposes the control-plane server.
func (d *Daemon) Server() *Server { return d.server }
