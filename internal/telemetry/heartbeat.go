package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultHeartbeatInterval is used when the configured interval is zero.
const DefaultHeartbeatInterval = 20 * time.Second

// Heartbeat periodically records a "heartbeat" span event and an info log
// so long generation runs stay visible in traces and logs.
type Heartbeat struct {
	interval time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	beats    int
	mu       sync.Mutex
}

// StartHeartbeat begins beating until ctx ends or Stop is called.
func StartHeartbeat(ctx context.Context, interval time.Duration, logger *zap.Logger) *Heartbeat {
	return startHeartbeat(ctx, interval, logger, otel.Tracer("github.com/v-sekai/jsonforge/telemetry"))
}

func startHeartbeat(ctx context.Context, interval time.Duration, logger *zap.Logger, tracer trace.Tracer) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Heartbeat{
		interval: interval,
		logger:   logger.With(zap.String("component", "heartbeat")),
		tracer:   tracer,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop(ctx)
	return h
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)
	started := h.now()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			uptime := h.now().Sub(started)
			_, span := h.tracer.Start(ctx, "heartbeat")
			span.AddEvent("heartbeat", trace.WithAttributes(
				attribute.Int64("uptime_ms", uptime.Milliseconds()),
				attribute.Int("goroutines", runtime.NumGoroutine()),
			))
			span.End()

			h.mu.Lock()
			h.beats++
			h.mu.Unlock()
			h.logger.Info("heartbeat", zap.Duration("uptime", uptime))
		}
	}
}

// Beats returns how many heartbeats fired.
func (h *Heartbeat) Beats() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}

// Stop ends the heartbeat and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
