// Package filter decides which notifications are worth persisting.
package filter

import (
	"fmt"

	"github.com/telhawk-systems/fusion-engine/fusion/internal/config"
	"github.com/telhawk-systems/fusion-engine/fusion/internal/event"
)

// Wildcard in an allow-list admits every key.
const Wildcard = "*"

// Filter is an immutable predicate over events. Safe for concurrent use.
type Filter struct {
	accounts     *allowList
	owners       *allowList
	skipStartup  bool
	includeVotes bool
}

// allowList is a set of raw key bytes, or every key when all is set. A nil
// *allowList means the list was not configured.
type allowList struct {
	all  bool
	keys map[string]struct{}
}

func (a *allowList) admits(key event.Pubkey) bool {
	if a.all {
		return true
	}
	_, ok := a.keys[string(key)]
	return ok
}

func newAllowList(field string, keys []string) (*allowList, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	list := &allowList{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k == Wildcard {
			list.all = true
			continue
		}
		pk, err := event.ParsePubkey(k)
		if err != nil {
			return nil, fmt.Errorf("filter.%s: %w", field, err)
		}
		if len(pk) == 0 {
			return nil, fmt.Errorf("filter.%s: empty key", field)
		}
		list.keys[string(pk)] = struct{}{}
	}
	return list, nil
}

// New builds a Filter from configuration. Invalid base58 keys are errors.
func New(cfg config.FilterConfig) (*Filter, error) {
	accounts, err := newAllowList("accounts", cfg.Accounts)
	if err != nil {
		return nil, err
	}
	owners, err := newAllowList("owners", cfg.Owners)
	if err != nil {
		return nil, err
	}
	return &Filter{
		accounts:     accounts,
		owners:       owners,
		skipStartup:  cfg.SkipStartup,
		includeVotes: cfg.IncludeVotes,
	}, nil
}

// All returns a filter that admits every event.
func All() *Filter {
	return &Filter{includeVotes: true}
}

// Account reports whether ev should be persisted. With both allow-lists
// set, an account matching either list is admitted.
func (f *Filter) Account(ev *event.AccountEvent) bool {
	if f.skipStartup && ev.IsStartup {
		return false
	}
	switch {
	case f.accounts == nil && f.owners == nil:
		return true
	case f.accounts == nil:
		return f.owners.admits(ev.Owner)
	case f.owners == nil:
		return f.accounts.admits(ev.Pubkey)
	default:
		return f.accounts.admits(ev.Pubkey) || f.owners.admits(ev.Owner)
	}
}

// Transaction reports whether ev should be persisted.
func (f *Filter) Transaction(ev *event.TransactionEvent) bool {
	return f.includeVotes || !ev.IsVote
}

// Event dispatches to Account or Transaction.
func (f *Filter) Event(ev event.Event) bool {
	switch e := ev.(type) {
	case *event.AccountEvent:
		return f.Account(e)
	case *event.TransactionEvent:
		return f.Transaction(e)
	default:
		return false
	}
}
