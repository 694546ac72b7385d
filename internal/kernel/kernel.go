package kernel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/config"
)

// Kernel is the composition root: it owns the event bus, the service
// registry, and every background task not owned by the agent registry.
type Kernel struct {
	Config   *config.Config
	Bus      *bus.Bus
	Registry *Registry

	logger *slog.Logger

	mu      sync.Mutex
	running bool
	nextID  uint64
	cancels map[uint64]context.CancelFunc
	wg      sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New wires an empty kernel around the given config. A nil logger
// falls back to slog.Default.
func New(cfg *config.Config, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kernel{
		Config:   cfg,
		Bus:      bus.New(logger),
		Registry: NewRegistry(),
		logger:   logger,
		cancels:  make(map[uint64]context.CancelFunc),
	}
}

// Start marks the kernel running and emits system:start. Double start
// is a no-op.
func (k *Kernel) Start(ctx context.Context) {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.baseCtx, k.baseCancel = context.WithCancel(context.Background())
	k.mu.Unlock()

	k.Bus.Emit(ctx, bus.NewEvent(bus.EventSystemStart, "kernel", nil))
	k.logger.Info("kernel started")
}

// Running reports whether the kernel has been started and not stopped.
func (k *Kernel) Running() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.running
}

// Spawn runs fn on a tracked background goroutine. The context is
// cancelled when the kernel stops; the task auto-removes itself on
// completion. Spawning on a stopped kernel runs nothing.
func (k *Kernel) Spawn(name string, fn func(ctx context.Context)) {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		k.logger.Warn("spawn on stopped kernel", "task", name)
		return
	}
	k.nextID++
	id := k.nextID
	ctx, cancel := context.WithCancel(k.baseCtx)
	k.cancels[id] = cancel
	k.wg.Add(1)
	k.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				k.logger.Error("background task panicked", "task", name, "panic", r)
			}
			k.mu.Lock()
			delete(k.cancels, id)
			k.mu.Unlock()
			cancel()
			k.wg.Done()
		}()
		fn(ctx)
	}()
}

// Stop cancels every tracked task, waits for them with a bounded
// grace period, and emits system:stop. Double stop is a no-op.
func (k *Kernel) Stop(ctx context.Context) {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	cancel := k.baseCancel
	k.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		k.logger.Warn("background tasks did not stop in time")
	}

	k.Bus.Emit(ctx, bus.NewEvent(bus.EventSystemStop, "kernel", nil))
	k.logger.Info("kernel stopped")
}
