// Package plugin adapts the host callback surface to the ingestion
// pipeline. Callbacks only normalize, filter and enqueue; all I/O happens
// on the pipeline's writer goroutine.
package plugin

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/filter"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/metrics"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/pipeline"
	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

// Name is reported to the host.
const Name = "FusionEnginePlugin"

// dropLogEvery limits drop warnings to the first drop and every Nth one
// after it.
const dropLogEvery = 10000

// runtime is everything built once per activation.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	closeLog  func() error
	filter    *filter.Filter
	pipeline  *pipeline.Pipeline
	metricSrv *metrics.Server
}

// Plugin implements geyser.Plugin. The zero value is ready to use.
type Plugin struct {
	once    sync.Once
	rt      atomic.Pointer[runtime]
	initErr error

	unloadOnce sync.Once
	dropped    atomic.Uint64
}

var _ geyser.Plugin = (*Plugin)(nil)

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string {
	return Name
}

// OnLoad reads the configuration at configFile and starts the pipeline.
// When a data callback already started the pipeline from defaults,
// configFile is ignored.
func (p *Plugin) OnLoad(configFile string) error {
	ran := false
	p.once.Do(func() {
		ran = true
		p.init(configFile)
	})
	if p.initErr != nil {
		return p.initErr
	}
	if !ran {
		p.rt.Load().logger.Warn("pipeline already started with defaults; configuration ignored",
			logging.Path(configFile))
	}
	return nil
}

// active returns the activation state, starting it from defaults if no
// OnLoad happened yet.
func (p *Plugin) active() (*runtime, error) {
	p.once.Do(func() {
		p.init("")
	})
	return p.rt.Load(), p.initErr
}

func (p *Plugin) init(configFile string) {
	rt, err := start(configFile)
	if err != nil {
		p.initErr = err
		return
	}
	p.rt.Store(rt)
}

func start(configFile string) (*runtime, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, geyser.NewError(geyser.ErrConfigFileOpen, err)
		}
		return nil, geyser.NewError(geyser.ErrConfigFileRead, err)
	}

	out, closeLog, err := logging.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return nil, geyser.NewError(geyser.ErrCustom, err)
	}
	logger := logging.NewWithWriter(out, logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("fusion-engine"))

	rt := &runtime{cfg: cfg, logger: logger, closeLog: closeLog}
	fail := func(kind geyser.ErrorKind, err error) (*runtime, error) {
		logger.Error("plugin setup failed", logging.Error(err))
		rt.shutdownMetrics()
		_ = closeLog()
		return nil, geyser.NewError(kind, err)
	}

	rt.filter, err = filter.New(cfg.Filter)
	if err != nil {
		return fail(geyser.ErrConfigFileRead, err)
	}

	if cfg.Metrics.ListenAddr != "" {
		rt.metricSrv, err = metrics.Serve(cfg.Metrics.ListenAddr, logger)
		if err != nil {
			return fail(geyser.ErrCustom, err)
		}
	}

	rt.pipeline, err = pipeline.New(context.Background(), cfg, logger)
	if err != nil {
		return fail(geyser.ErrCustom, err)
	}

	logger.Info("plugin loaded",
		logging.Path(configFile),
		logging.RunID(rt.pipeline.RunID()))
	return rt, nil
}

func (rt *runtime) shutdownMetrics() {
	if rt.metricSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	if err := rt.metricSrv.Shutdown(ctx); err != nil {
		rt.logger.Warn("metrics listener shutdown failed", logging.Error(err))
	}
}

// OnUnload drains the queue for at most shutdown_timeout and releases
// every backend.
func (p *Plugin) OnUnload() {
	p.unloadOnce.Do(func() {
		rt := p.rt.Load()
		if rt == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
		defer cancel()

		if err := rt.pipeline.Close(ctx); err != nil {
			rt.logger.Error("pipeline shutdown failed", logging.Error(err))
		}
		rt.shutdownMetrics()

		stats := rt.pipeline.Stats()
		rt.logger.Info("plugin unloaded",
			logging.RunID(stats.RunID),
			logging.Dropped(p.dropped.Load()))
		_ = rt.closeLog()
	})
}

func (p *Plugin) UpdateAccount(account geyser.AccountInfoVersions, slot uint64, isStartup bool) error {
	if nilAccount(account) {
		return geyser.NewError(geyser.ErrUpdateAccount, errors.New("nil account update"))
	}
	rt, err := p.active()
	if err != nil {
		return err
	}

	ev := event.FromAccountUpdate(slot, isStartup, account)
	metrics.EventsReceived.WithLabelValues(string(event.KindAccount)).Inc()
	if !rt.filter.Account(ev) {
		metrics.EventsFiltered.WithLabelValues(string(event.KindAccount)).Inc()
		return nil
	}
	p.submit(rt, ev)
	return nil
}

func (p *Plugin) NotifyTransaction(transaction geyser.TransactionInfoVersions, slot uint64) error {
	if nilTransaction(transaction) {
		return geyser.NewError(geyser.ErrCustom, errors.New("nil transaction update"))
	}
	rt, err := p.active()
	if err != nil {
		return err
	}

	ev := event.FromTransactionUpdate(slot, transaction)
	metrics.EventsReceived.WithLabelValues(string(event.KindTransaction)).Inc()
	if !rt.filter.Transaction(ev) {
		metrics.EventsFiltered.WithLabelValues(string(event.KindTransaction)).Inc()
		return nil
	}
	p.submit(rt, ev)
	return nil
}

// submit never reports a failure to the host: the event is already
// counted as dropped by the pipeline.
func (p *Plugin) submit(rt *runtime, ev event.Event) {
	err := rt.pipeline.Submit(ev)
	if err == nil {
		return
	}
	n := p.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		rt.logger.Warn("event dropped",
			logging.Kind(string(ev.Kind())),
			logging.Slot(ev.AtSlot()),
			logging.Dropped(n),
			logging.Error(err))
	}
}

func (p *Plugin) NotifyBlockMetadata(geyser.BlockInfoVersions) error {
	return nil
}

func (p *Plugin) UpdateSlotStatus(uint64, *uint64, geyser.SlotStatus) error {
	return nil
}

func (p *Plugin) NotifyEndOfStartup() error {
	if rt := p.rt.Load(); rt != nil {
		rt.logger.Info("host finished startup replay")
	}
	return nil
}

func (p *Plugin) AccountDataNotificationsEnabled() bool {
	return true
}

func (p *Plugin) TransactionNotificationsEnabled() bool {
	return true
}

// Dropped returns how many events were not accepted by the pipeline.
func (p *Plugin) Dropped() uint64 {
	return p.dropped.Load()
}

// Stats reports the pipeline state; ok is false before the first start.
func (p *Plugin) Stats() (stats pipeline.Stats, ok bool) {
	rt := p.rt.Load()
	if rt == nil {
		return pipeline.Stats{}, false
	}
	return rt.pipeline.Stats(), true
}

func nilAccount(a geyser.AccountInfoVersions) bool {
	switch v := a.(type) {
	case nil:
		return true
	case *geyser.ReplicaAccountInfoV1:
		return v == nil
	case *geyser.ReplicaAccountInfoV2:
		return v == nil
	}
	return false
}

func nilTransaction(t geyser.TransactionInfoVersions) bool {
	switch v := t.(type) {
	case nil:
		return true
	case *geyser.ReplicaTransactionInfoV1:
		return v == nil
	case *geyser.ReplicaTransactionInfoV2:
		return v == nil
	}
	return false
}
