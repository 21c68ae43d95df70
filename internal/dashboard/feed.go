// Package dashboard serves the staff view: a cached appointment feed that
// push events invalidate, calendar layouts over it, queue stats and staff
// actions.
package dashboard

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/notify"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Feed load origins reported to the observer.
const (
	LoadFromCache   = "cache"
	LoadFromBackend = "backend"
	LoadFailed      = "error"
)

const feedKey = "staff"

// AppointmentLister is the backend call behind the feed.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]appointments.Record, error)
}

// FeedObserver is told where each feed load was served from.
type FeedObserver interface {
	ObserveFeedLoad(origin string)
}

// Feed is the staff appointment list. Concurrent misses share one backend
// call; Invalidate makes the next Load go to the backend.
type Feed struct {
	source   AppointmentLister
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
	gen      atomic.Uint64
	observer FeedObserver
	logger   *logging.Logger
}

// NewFeed creates a feed. A nil cache falls back to an in-memory one; a
// zero ttl keeps the list until it is invalidated.
func NewFeed(source AppointmentLister, cache Cache, ttl time.Duration, observer FeedObserver, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Default()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Feed{
		source:   source,
		cache:    cache,
		ttl:      ttl,
		observer: observer,
		logger:   logger.Component("dashboard.feed"),
	}
}

// Load returns the appointment list, from cache when fresh. Cache errors
// are logged and fall through to the backend.
func (f *Feed) Load(ctx context.Context) ([]appointments.Record, error) {
	records, ok, err := f.cache.Get(ctx, feedKey)
	if err != nil {
		f.logger.Warn("feed cache read failed", "error", err)
	}
	if ok {
		f.observe(LoadFromCache)
		return records, nil
	}

	v, err, _ := f.group.Do(feedKey, func() (any, error) {
		gen := f.gen.Load()
		records, err := f.source.ListAppointments(ctx)
		if err != nil {
			return nil, err
		}
		// An invalidation during the fetch means this list may already be
		// stale; serve it but do not cache it.
		if f.gen.Load() == gen {
			if err := f.cache.Set(ctx, feedKey, records, f.ttl); err != nil {
				f.logger.Warn("feed cache write failed", "error", err)
			}
		}
		return records, nil
	})
	if err != nil {
		f.observe(LoadFailed)
		return nil, err
	}
	f.observe(LoadFromBackend)
	return cloneRecords(v.([]appointments.Record)), nil
}

// Invalidate drops the cached list.
func (f *Feed) Invalidate(ctx context.Context) {
	f.gen.Add(1)
	f.group.Forget(feedKey)
	if err := f.cache.Delete(ctx, feedKey); err != nil {
		f.logger.Warn("feed cache invalidate failed", "error", err)
	}
}

// Generation counts invalidations so far.
func (f *Feed) Generation() uint64 {
	return f.gen.Load()
}

// Attach subscribes the feed to bus so appointment events invalidate it.
func (f *Feed) Attach(bus *notify.Bus) (detach func()) {
	return bus.Subscribe(func(evt notify.Event) {
		if !evt.Invalidates() {
			return
		}
		f.logger.Debug("invalidating feed", "event", evt.Type, "source", evt.Source)
		f.Invalidate(context.Background())
	})
}

func (f *Feed) observe(origin string) {
	if f.observer != nil {
		f.observer.ObserveFeedLoad(origin)
	}
}
