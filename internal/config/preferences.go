package config

import (
	"context"
	"sync"

	"github.com/cadehq/cadence/internal/core/domain"
)

// Preferences is a PreferenceSource backed by the config defaults plus
// per-user overrides pushed in by the preference collaborator. Reads go to
// the live map so a changed preference takes effect on the next
// materialization, never retroactively on existing scheduled instants.
type Preferences struct {
	mu        sync.RWMutex
	defaultTZ string
	retention int
	userTZ    map[domain.UserID]string
	userRet   map[domain.UserID]int
}

func NewPreferences(conf *Config) *Preferences {
	return &Preferences{
		defaultTZ: conf.Timezone,
		retention: conf.RetentionDays,
		userTZ:    make(map[domain.UserID]string),
		userRet:   make(map[domain.UserID]int),
	}
}

func (p *Preferences) Timezone(_ context.Context, user domain.UserID) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if tz, ok := p.userTZ[user]; ok {
		return tz, nil
	}
	return p.defaultTZ, nil
}

func (p *Preferences) RetentionDays(_ context.Context, user domain.UserID) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.userRet[user]; ok {
		return d, nil
	}
	return p.retention, nil
}

// SetTimezone records a user's timezone preference.
func (p *Preferences) SetTimezone(user domain.UserID, tz string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userTZ[user] = tz
}

// SetRetentionDays records a user's retention preference.
func (p *Preferences) SetRetentionDays(user domain.UserID, days int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userRet[user] = days
}
