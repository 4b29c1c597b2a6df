package engine

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/llmrc/llmrc/internal/config"
	"github.com/llmrc/llmrc/internal/logger"
	"github.com/llmrc/llmrc/internal/metrics"
	"github.com/llmrc/llmrc/internal/server"
)

// Lifecycle errors, one per engine operation that can fail.
var (
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrInitFailed         = errors.New("engine initialization failed")
)

const listenHost = "0.0.0.0"

// Engine owns the request server's lifecycle and runs the foreground
// supervisory loop. The shutdown flag is the only state mutated from more
// than one goroutine: the supervisory loop sets it on interrupt and the
// server's accept loop observes it. Once set it is never cleared for the
// lifetime of the instance.
type Engine struct {
	cfg config.Engine

	srv        *server.Server
	serverDone chan struct{}

	shutdown *atomic.Bool

	deviceIDs []int

	tick time.Duration
}

// New creates an engine with a fresh shutdown flag. The configuration
// snapshot is immutable for the engine's lifetime.
func New(cfg config.Engine) *Engine {
	return &Engine{
		cfg:      cfg,
		shutdown: &atomic.Bool{},
		tick:     time.Second,
	}
}

// ShutdownFlag exposes the cooperative cancellation flag shared with the
// request server.
func (e *Engine) ShutdownFlag() *atomic.Bool {
	return e.shutdown
}

// SetDeviceTable records the device-ID mapping reported in metadata.
func (e *Engine) SetDeviceTable(ids []int) {
	e.deviceIDs = ids
}

// Addr returns the listening address of the request server, or nil when no
// server is active.
func (e *Engine) Addr() net.Addr {
	if e.srv == nil {
		return nil
	}
	return e.srv.Addr()
}

// Init binds a request server and starts its accept loop on a background
// goroutine. Calling Init twice without Release fails fast instead of
// leaking the prior server handle.
func (e *Engine) Init() error {
	if e.srv != nil {
		return ErrAlreadyInitialized
	}

	logger.Log.Info("starting engine initialization", "port", e.cfg.Common.APIPort)

	srv := server.New(listenHost, e.cfg.Common.APIPort, e.shutdown)
	if err := srv.Bind(); err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(); err != nil {
			logger.Log.Error("API server error", "error", err)
		}
	}()

	e.srv = srv
	e.serverDone = done
	logger.Log.Info("engine initialization complete")
	return nil
}

// OnHardStop forwards a hard-stop replacement to the request server. Only
// meaningful between Init and Run; used by tests to intercept process exit.
func (e *Engine) OnHardStop(fn func()) {
	if e.srv != nil {
		e.srv.OnHardStop(fn)
	}
}

// Run drives the supervisory loop: each iteration waits for either an
// external interrupt or the next tick. An interrupt sets the shutdown flag
// and exits; a tick with the flag already set exits; otherwise one metadata
// payload is emitted. On exit the request server is stopped and its
// goroutine awaited.
func (e *Engine) Run() error {
	if e.srv == nil {
		return ErrNotInitialized
	}

	logger.Log.Info("engine is now running, press Ctrl+C to terminate")
	metrics.RecordEngineUp(true)
	defer metrics.RecordEngineUp(false)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-sig:
			logger.Log.Info("interrupt signal received, exiting loop")
			e.shutdown.Store(true)
			break loop
		case <-ticker.C:
			if e.shutdown.Load() {
				break loop
			}
			metrics.RecordTick()
			e.sendMetadata()
		}
	}

	logger.Log.Info("gracefully exiting engine loop, performing cleanup")
	e.Release()
	return nil
}

// Release stops the request server if present and clears the handle. Safe
// to call from any state, any number of times. The CLI defers it so
// teardown happens even on early error paths.
func (e *Engine) Release() error {
	if e.srv != nil {
		e.srv.Stop()
		if e.serverDone != nil {
			<-e.serverDone
		}
		e.srv = nil
		e.serverDone = nil
		logger.Log.Info("engine resources released")
	}
	return nil
}

// Close makes Engine usable with a deferred io.Closer-style call.
func (e *Engine) Close() error {
	return e.Release()
}
