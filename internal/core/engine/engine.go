// Package engine runs the polling loop: it checks each watch target for a new
// item, forwards unseen items to the notification sink and raises admin alerts
// for identities that upstream has blocked.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/feed"
	"github.com/feedwatch/feedwatch/internal/metrics"
	"github.com/feedwatch/feedwatch/internal/notify"
	"github.com/feedwatch/feedwatch/internal/observability"
)

// Defaults applied to zero Config values.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultBatchSize    = 5
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = time.Second
	DefaultItemTTL      = time.Hour

	alertTimeout  = 30 * time.Second
	itemKeyPrefix = "item:"
)

// TargetStore lists watch targets and records the newest item per target.
type TargetStore interface {
	ListTargets(ctx context.Context) ([]core.WatchTarget, error)
	UpdateLastSeen(ctx context.Context, handle, itemID string) error
}

// ClientSource hands out an authenticated client for the next request.
type ClientSource interface {
	NextClient(ctx context.Context) (feed.Client, error)
}

// SessionRefresher re-validates the pooled sessions.
type SessionRefresher interface {
	RefreshSessions(ctx context.Context)
}

// Config wires the engine's collaborators.
type Config struct {
	PollInterval    time.Duration
	RefreshInterval time.Duration
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	ItemTTL         time.Duration

	Targets     TargetStore
	Credentials ClientSource
	Refresher   SessionRefresher
	Cache       core.KeyValueStore
	Sink        notify.Sink
	// AlertSink receives admin alerts. Sink is used when nil.
	AlertSink  notify.Sink
	Formatter  notify.Formatter
	Classifier Classifier

	// OnRefresh runs after each completed session refresh.
	OnRefresh func(ctx context.Context)

	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger observability.Logger
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	TotalChecks  int64         `json:"total_checks"`
	NewItems     int64         `json:"new_items"`
	Errors       int64         `json:"errors"`
	LastError    string        `json:"last_error,omitempty"`
	Cycles       int64         `json:"cycles"`
	SkippedTicks int64         `json:"skipped_ticks"`
	StartTime    time.Time     `json:"start_time"`
	Uptime       time.Duration `json:"uptime"`
}

// Engine polls watch targets on a fixed interval.
type Engine struct {
	cfg    Config
	logger observability.Logger

	cycling    atomic.Bool
	refreshing atomic.Bool

	mu    sync.Mutex
	stats Stats

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Targets == nil:
		return nil, errors.New("engine requires a target store")
	case cfg.Credentials == nil:
		return nil, errors.New("engine requires a client source")
	case cfg.Cache == nil:
		return nil, errors.New("engine requires a key-value store")
	case cfg.Sink == nil:
		return nil, errors.New("engine requires a notification sink")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ItemTTL <= 0 {
		cfg.ItemTTL = DefaultItemTTL
	}
	if cfg.AlertSink == nil {
		cfg.AlertSink = cfg.Sink
	}
	if cfg.Classifier == nil {
		cfg.Classifier = MessageClassifier{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	e := &Engine{cfg: cfg, logger: observability.OrNop(cfg.Logger)}
	e.stats.StartTime = e.now()
	return e, nil
}

// Start launches the scheduling loop. Calls after the first are no-ops.
func (e *Engine) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel

		e.mu.Lock()
		e.stats.StartTime = e.now()
		e.mu.Unlock()

		e.logger.Info("Polling engine started",
			zap.Duration("poll_interval", e.cfg.PollInterval),
			zap.Duration("refresh_interval", e.cfg.RefreshInterval),
			zap.Int("batch_size", e.cfg.BatchSize))

		e.wg.Add(1)
		go e.loop(loopCtx)
	})
}

// Stop halts both timers and waits for in-flight cycles, refreshes and
// alerts to finish. It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info("Polling engine stopped")
	})
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()

	var refresh <-chan time.Time
	if e.cfg.Refresher != nil && e.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(e.cfg.RefreshInterval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.RunCycle(work)
			}()
		case <-refresh:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.RefreshSessions(work)
			}()
		}
	}
}

// RunCycle checks every target once. It returns false without doing anything
// when a previous cycle is still running.
func (e *Engine) RunCycle(ctx context.Context) bool {
	if !e.cycling.CompareAndSwap(false, true) {
		e.mu.Lock()
		e.stats.SkippedTicks++
		e.mu.Unlock()
		metrics.RecordSkippedTick()
		return false
	}
	defer e.cycling.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	targets, err := e.cfg.Targets.ListTargets(ctx)
	if err != nil {
		e.logger.Error("Failed to list watch targets", zap.Error(err))
		e.recordError(fmt.Errorf("list targets: %w", err), ClassUnknown)
		return true
	}
	snapshot := append([]core.WatchTarget(nil), targets...)

	for start := 0; start < len(snapshot); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(snapshot))

		var wg sync.WaitGroup
		for _, target := range snapshot[start:end] {
			wg.Add(1)
			go func(target core.WatchTarget) {
				defer wg.Done()
				e.checkTarget(ctx, target)
			}(target)
		}
		wg.Wait()
	}

	e.mu.Lock()
	e.stats.Cycles++
	e.mu.Unlock()
	metrics.RecordCycle(time.Since(started), len(snapshot))
	return true
}

// RefreshSessions runs one session sweep unless one is already running.
func (e *Engine) RefreshSessions(ctx context.Context) bool {
	if e.cfg.Refresher == nil {
		return false
	}
	if !e.refreshing.CompareAndSwap(false, true) {
		e.logger.Debug("Session refresh already running")
		return false
	}
	defer e.refreshing.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	e.cfg.Refresher.RefreshSessions(ctx)
	if e.cfg.OnRefresh != nil {
		e.cfg.OnRefresh(ctx)
	}
	return true
}

// checkTarget runs one check with rate-limit retries and records the outcome.
func (e *Engine) checkTarget(ctx context.Context, target core.WatchTarget) {
	for attempt := 1; ; attempt++ {
		err := e.check(ctx, target)
		if err == nil {
			return
		}

		class := e.cfg.Classifier.Classify(err)
		if class == ClassRateLimited && attempt <= e.cfg.MaxRetries {
			delay := time.Duration(attempt) * e.cfg.RetryDelay
			metrics.RecordRetry()
			e.logger.Warn("Rate limited, retrying",
				zap.String("handle", target.Handle),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if sleepErr := e.cfg.Sleep(ctx, delay); sleepErr != nil {
				e.recordError(sleepErr, ClassUnknown)
				return
			}
			continue
		}

		e.logger.Error("Check failed",
			zap.String("handle", target.Handle),
			zap.String("class", class.String()),
			zap.Int("attempts", attempt),
			zap.Error(err))
		e.recordError(err, class)
		if class == ClassBlocked || e.signalsBlocked(err) {
			e.alert(ctx, target.Handle, err)
		}
		return
	}
}

func (e *Engine) signalsBlocked(err error) bool {
	detector, ok := e.cfg.Classifier.(BlockDetector)
	return ok && detector.Blocked(err)
}

func (e *Engine) check(ctx context.Context, target core.WatchTarget) error {
	client, err := e.cfg.Credentials.NextClient(ctx)
	if err != nil {
		return err
	}

	item, err := client.LatestItem(ctx, target.Handle)
	if err != nil {
		return fmt.Errorf("fetch latest item for %s: %w", target.Handle, err)
	}

	e.mu.Lock()
	e.stats.TotalChecks++
	e.mu.Unlock()
	metrics.RecordCheck()

	if item == nil || item.ID == "" || item.ID == target.LastSeenItemID {
		return nil
	}

	key := itemKeyPrefix + item.ID
	if _, seen, err := e.cfg.Cache.Get(ctx, key); err != nil {
		return fmt.Errorf("read dedup key: %w", err)
	} else if seen {
		return nil
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	claimed, err := e.cfg.Cache.SetIfAbsent(ctx, key, string(payload), e.cfg.ItemTTL)
	if err != nil {
		return fmt.Errorf("claim dedup key: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := e.cfg.Targets.UpdateLastSeen(ctx, target.Handle, item.ID); err != nil {
		return err
	}

	if err := e.cfg.Sink.Send(ctx, e.cfg.Formatter.Item(target.Handle, item)); err != nil {
		metrics.RecordNotificationFailure("item")
		return fmt.Errorf("send notification for %s: %w", target.Handle, err)
	}

	e.mu.Lock()
	e.stats.NewItems++
	e.mu.Unlock()
	metrics.RecordNewItem()

	e.logger.Info("New item",
		zap.String("handle", target.Handle),
		zap.String("item_id", item.ID))
	return nil
}

// alert dispatches an admin alert without holding up the batch.
func (e *Engine) alert(ctx context.Context, handle string, cause error) {
	alertID := uuid.NewString()
	notification := e.cfg.Formatter.Alert(handle, cause)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()

		err := e.cfg.AlertSink.Send(sendCtx, notification)
		metrics.RecordAlert(err == nil)
		if err != nil {
			e.logger.Error("Failed to send admin alert",
				zap.String("alert_id", alertID),
				zap.String("handle", handle),
				zap.Error(err))
			return
		}
		e.logger.Info("Admin alert sent",
			zap.String("alert_id", alertID),
			zap.String("handle", handle))
	}()
}

func (e *Engine) recordError(err error, class Class) {
	e.mu.Lock()
	e.stats.Errors++
	e.stats.LastError = err.Error()
	e.mu.Unlock()
	metrics.RecordPollError(class.String())
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	if !stats.StartTime.IsZero() {
		stats.Uptime = e.now().Sub(stats.StartTime)
	}
	return stats
}

func (e *Engine) now() time.Time {
	if e.cfg.Clock != nil {
		return e.cfg.Clock()
	}
	return time.Now().UTC()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
