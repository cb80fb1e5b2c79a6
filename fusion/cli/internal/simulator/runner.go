// Package simulator drives a geyser plugin with generated account and
// transaction updates, standing in for a validator.
package simulator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/fusion-engine/fusion/pkg/geyser"
)

// Config describes one simulation run.
type Config struct {
	Accounts     int
	Transactions int
	// Producers is the number of goroutines calling the plugin at once,
	// standing in for host threads.
	Producers int
	// Startup marks the first Startup accounts as snapshot replay.
	Startup int
	// SlotSize is how many updates share one slot.
	SlotSize  int
	StartSlot uint64
	Seed      int64
}

// Result reports what was handed to the plugin.
type Result struct {
	Accounts       uint64        `json:"accounts" yaml:"accounts"`
	Transactions   uint64        `json:"transactions" yaml:"transactions"`
	CallbackErrors uint64        `json:"callback_errors" yaml:"callback_errors"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
}

// Rate returns callbacks per second.
func (r Result) Rate() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Accounts+r.Transactions) / r.Duration.Seconds()
}

// Run calls p from cfg.Producers goroutines until every update is sent or
// ctx is cancelled. Update i goes to producer i mod Producers, so each
// producer sends its share in index order. The first callback error is
// returned after all producers stop.
func Run(ctx context.Context, p geyser.Plugin, cfg Config) (Result, error) {
	if cfg.Producers <= 0 {
		cfg.Producers = 1
	}
	if cfg.SlotSize <= 0 {
		cfg.SlotSize = 100
	}
	gen := NewGenerator(cfg.Seed)

	var (
		res      Result
		accounts atomic.Uint64
		txs      atomic.Uint64
		failures atomic.Uint64
		errOnce  sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	record := func(err error) {
		failures.Add(1)
		errOnce.Do(func() { firstErr = err })
	}

	start := time.Now()
	for w := 0; w < cfg.Producers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			total := cfg.Accounts + cfg.Transactions
			for i := w; i < total; i += cfg.Producers {
				if ctx.Err() != nil {
					return
				}
				slot := cfg.StartSlot + uint64(i/cfg.SlotSize)
				if i < cfg.Accounts {
					if err := p.UpdateAccount(gen.Account(i < cfg.Startup), slot, i < cfg.Startup); err != nil {
						record(err)
						continue
					}
					accounts.Add(1)
					continue
				}
				if err := p.NotifyTransaction(gen.Transaction(), slot); err != nil {
					record(err)
					continue
				}
				txs.Add(1)
			}
		}(w)
	}
	wg.Wait()

	res.Duration = time.Since(start)
	res.Accounts = accounts.Load()
	res.Transactions = txs.Load()
	res.CallbackErrors = failures.Load()

	if err := ctx.Err(); err != nil {
		return res, errors.Join(err, firstErr)
	}
	return res, firstErr
}
