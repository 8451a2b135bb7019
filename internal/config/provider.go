package config

import (
	"sync/atomic"
)

// Provider hands out the current configuration snapshot. Values are read at
// call time, so a reload through Update takes effect on the next call.
type Provider struct {
	current atomic.Pointer[Config]
}

// NewProvider creates a Provider seeded with cfg. A nil cfg uses DefaultConfig.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.Update(cfg)
	return p
}

// Update swaps in a new configuration snapshot.
func (p *Provider) Update(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p.current.Store(cfg)
}

// Current returns the active configuration snapshot. Callers must not modify it.
func (p *Provider) Current() *Config {
	return p.current.Load()
}

// QueryHistoryResultMaxRows returns query_history.result_max_rows.
func (p *Provider) QueryHistoryResultMaxRows() int {
	return p.Current().QueryHistory.ResultMaxRows
}

// QueryHistoryRetentionDays returns query_history.retention_time_in_days.
func (p *Provider) QueryHistoryRetentionDays() int {
	return p.Current().QueryHistory.RetentionTimeInDays
}
