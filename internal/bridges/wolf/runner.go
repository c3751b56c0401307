package wolf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/wolf-bridge/internal/audit"
	"github.com/nerrad567/wolf-bridge/internal/device"
	"github.com/nerrad567/wolf-bridge/internal/smartset"
)

const defaultCycleTimeout = 2 * time.Minute

// StatusSink receives every status snapshot. *influxdb.Client satisfies it.
type StatusSink interface {
	WriteStatus(status device.Status)
}

// SnapshotStore keeps the latest catalog and status for readers outside
// the driver goroutine.
type SnapshotStore interface {
	SetParameters(parameters []device.Parameter)
	SetStatus(status device.Status)
}

// RunnerOptions holds configuration for creating a runner.
type RunnerOptions struct {
	// API is the SmartSet API. Required.
	API smartset.API

	// Bridge is the MQTT bridge. Required; a bridge without a client
	// disables publishing and interval mode.
	Bridge *Bridge

	// Cache stores the system context between runs. Optional.
	Cache *device.ContextCache

	// Out receives one JSON status per cycle. Defaults to os.Stdout.
	Out io.Writer

	// Journal records every write. Optional.
	Journal audit.Repository

	// History receives every status. Optional.
	History StatusSink

	// Snapshots receives the catalog and every status. Optional.
	Snapshots SnapshotStore

	// CycleTimeout bounds one fetch/build/publish cycle and one write.
	// Defaults to 2 minutes.
	CycleTimeout time.Duration

	// Logger is optional structured logger.
	Logger Logger

	// Now returns the snapshot time. Defaults to time.Now.
	Now func() time.Time
}

// Runner drives the device: it discovers the system, runs refresh cycles
// and executes writes. All device API calls happen on the goroutine that
// calls Run, Cycle or Write; those methods must not be called concurrently.
type Runner struct {
	api       smartset.API
	bridge    *Bridge
	cache     *device.ContextCache
	out       io.Writer
	journal   audit.Repository
	history   StatusSink
	snapshots SnapshotStore
	timeout   time.Duration
	logger    Logger
	now       func() time.Time

	sc *device.SystemContext
}

// NewRunner creates a runner. It does not contact the device.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.API == nil {
		return nil, errors.New("wolf: runner requires an API")
	}
	if opts.Bridge == nil {
		return nil, errors.New("wolf: runner requires a bridge")
	}

	r := &Runner{
		api:       opts.API,
		bridge:    opts.Bridge,
		cache:     opts.Cache,
		out:       opts.Out,
		journal:   opts.Journal,
		history:   opts.History,
		snapshots: opts.Snapshots,
		timeout:   opts.CycleTimeout,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.timeout <= 0 {
		r.timeout = defaultCycleTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Discover loads the system context from the cache or the API.
func (r *Runner) Discover(ctx context.Context) (*device.SystemContext, error) {
	sc, err := device.Discover(ctx, r.api, r.cache)
	if err != nil {
		return nil, fmt.Errorf("discovering system: %w", err)
	}
	device.LogParameters(r.logger, sc.Parameters)

	r.sc = sc
	if r.snapshots != nil {
		r.snapshots.SetParameters(sc.Parameters)
	}
	return sc, nil
}

func (r *Runner) systemContext(ctx context.Context) (*device.SystemContext, device.System, error) {
	if r.sc == nil {
		if _, err := r.Discover(ctx); err != nil {
			return nil, device.System{}, err
		}
	}
	primary, err := r.sc.Primary()
	if err != nil {
		return nil, device.System{}, err
	}
	return r.sc, primary, nil
}

// Write sets parameter name to value. An unknown name is logged and
// skipped without contacting the device.
func (r *Runner) Write(ctx context.Context, name string, value any, source string) error {
	sc, primary, err := r.systemContext(ctx)
	if err != nil {
		return err
	}

	entry := &audit.WriteEntry{Name: name, Value: FormatValue(value), Source: source}

	param, err := device.Resolve(sc.Parameters, name)
	if err != nil {
		r.logWarn("parameter not found, skipping write", "name", name, "source", source)
		entry.Outcome = audit.OutcomeSkipped
		r.record(ctx, entry)
		return nil
	}

	bundleID := param.BundleID
	if bundleID == 0 {
		bundleID = smartset.DefaultBundleID
	}
	entry.ValueID, entry.BundleID = param.ValueID, bundleID

	err = r.api.WriteValue(ctx, primary.Gateway, primary.ID, bundleID, smartset.ValueWrite{
		ValueID: param.ValueID,
		State:   entry.Value,
	})
	if err != nil {
		entry.Outcome, entry.Error = audit.OutcomeFailed, err.Error()
		r.record(ctx, entry)
		return fmt.Errorf("writing %s: %w", name, err)
	}

	entry.Outcome = audit.OutcomeOK
	r.record(ctx, entry)
	r.logInfo("parameter written", "name", name, "value", entry.Value, "source", source)
	return nil
}

func (r *Runner) record(ctx context.Context, entry *audit.WriteEntry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Create(ctx, entry); err != nil {
		r.logWarn("failed to record write", "name", entry.Name, "error", err)
	}
}

// Cycle fetches the current values, builds the status, publishes it when
// a broker is configured and prints it to Out.
func (r *Runner) Cycle(ctx context.Context) (device.Status, error) {
	sc, primary, err := r.systemContext(ctx)
	if err != nil {
		return device.Status{}, err
	}

	values, err := r.api.FetchValues(ctx, primary.Gateway, primary.ID, sc.Parameters)
	if err != nil {
		return device.Status{}, fmt.Errorf("fetching values: %w", err)
	}
	device.LogValues(r.logger, values)

	status := device.BuildStatus(sc.Parameters, values, r.now())
	if len(status.Skipped) > 0 {
		r.logDebug("values without a catalog entry", "value_ids", status.Skipped)
	}

	if r.snapshots != nil {
		r.snapshots.SetStatus(status)
	}
	if r.history != nil {
		r.history.WriteStatus(status)
	}

	if r.bridge.HasClient() {
		if err := r.bridge.PublishStatus(status); err != nil {
			return status, fmt.Errorf("publishing status: %w", err)
		}
	}

	enc := json.NewEncoder(r.out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(status); err != nil {
		return status, fmt.Errorf("printing status: %w", err)
	}
	return status, nil
}

// Run runs the refresh loop.
//
// With a nil interval it runs one cycle and returns its error. Otherwise
// it starts the command listener and runs a cycle every interval, serving
// set requests in between; cycle errors are logged and the loop goes on.
// An interval <= 0 stops after the first cycle. Run returns nil when ctx
// ends; a cycle in flight is finished first.
func (r *Runner) Run(ctx context.Context, interval *time.Duration) error {
	if interval == nil {
		_, err := r.runCycle(ctx)
		return err
	}
	if !r.bridge.HasClient() {
		return ErrIntervalNeedsMQTT
	}

	writes := make(chan WriteRequest)
	if err := r.bridge.StartCommandListener(ctx, writes); err != nil {
		// The listener subscribes on the next successful connect.
		r.logWarn("command listener not connected", "error", err)
	}
	defer r.bridge.Stop()

	r.logInfo("refresh loop started", "interval", interval.String())
	for {
		if _, err := r.runCycle(ctx); err != nil {
			r.logError("refresh cycle failed", err)
		}
		if *interval <= 0 {
			return nil
		}
		if !r.wait(ctx, *interval, writes) {
			r.logInfo("refresh loop stopped")
			return nil
		}
	}
}

// wait serves write requests until d has passed. It reports false when
// ctx ends first.
func (r *Runner) wait(ctx context.Context, d time.Duration, writes <-chan WriteRequest) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case req := <-writes:
			req.Result <- r.runWrite(ctx, req)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) (device.Status, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	return r.Cycle(cctx)
}

func (r *Runner) runWrite(ctx context.Context, req WriteRequest) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	return r.Write(wctx, req.Name, req.Value, req.Source)
}

func (r *Runner) logInfo(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Runner) logWarn(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, keysAndValues...)
	}
}

func (r *Runner) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}

func (r *Runner) logDebug(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, keysAndValues...)
	}
}
