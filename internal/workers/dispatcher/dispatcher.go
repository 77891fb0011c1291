// Package dispatcher fires each subscription's weekly scan at its
// configured local weekday and hour.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/metrics"
	"mentionscan/internal/ports"
)

// DefaultSchedule runs the dispatch pass at the top of every UTC hour.
const DefaultSchedule = "0 * * * *"

// Schedule used when a subscription's stored day or hour is out of range.
const (
	DefaultDay  = int(time.Monday)
	DefaultHour = 9
)

type Dispatcher struct {
	subs    ports.SubscriptionRepository
	bus     ports.EventBus
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     logger.Logger
}

func New(subs ports.SubscriptionRepository, bus ports.EventBus, clock clockwork.Clock, m *metrics.Metrics, log logger.Logger) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{subs: subs, bus: bus, clock: clock, metrics: m, log: log}
}

// Due reports whether sub is scheduled for the local hour containing now.
// An unknown timezone keeps the subscriber's day and hour but evaluates them
// in UTC, rather than switching to the Monday 09:00 default (see the
// "Invalid or empty subscription timezone" decision in DESIGN.md). An
// out-of-range day or hour falls back to Monday 09:00. The returned tzErr is
// for logging only.
func Due(sub domain.DomainSubscription, now time.Time) (due bool, tzErr error) {
	loc := time.UTC
	if tz, err := time.LoadLocation(sub.ScanTimezone); err == nil && sub.ScanTimezone != "" {
		loc = tz
	} else {
		tzErr = fmt.Errorf("invalid timezone %q", sub.ScanTimezone)
	}
	day, hour := sub.ScanScheduleDay, sub.ScanScheduleHour
	if day < 0 || day > 6 || hour < 0 || hour > 23 {
		day, hour = DefaultDay, DefaultHour
	}
	local := now.In(loc)
	return int(local.Weekday()) == day && local.Hour() == hour, tzErr
}

// Tick runs one dispatch pass and returns how many scans it requested.
// Each subscription fires at most once per UTC hour however often Tick runs.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	now := d.clock.Now().UTC()
	slot := now.Truncate(time.Hour)

	subs, err := d.subs.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	sent := 0
	for _, sub := range subs {
		log := d.log.With(logger.String("subscription_id", sub.ID), logger.String("domain", sub.Domain))
		due, tzErr := Due(sub, now)
		if tzErr != nil {
			log.Warn("invalid schedule timezone, using UTC", logger.Error(tzErr))
		}
		if !due {
			continue
		}

		claimed, err := d.subs.ClaimDispatchSlot(ctx, sub.ID, slot)
		if err != nil {
			log.Error("claim dispatch slot", logger.Error(err))
			d.metrics.Dispatched("error")
			continue
		}
		if !claimed {
			d.metrics.Dispatched("duplicate")
			continue
		}

		subID := sub.ID
		err = d.bus.Send(ctx, ports.EventScanRequested, ports.ScanRequest{
			Domain:               sub.Domain,
			LeadID:               sub.LeadID,
			DomainSubscriptionID: &subID,
		})
		if err != nil {
			log.Error("send scan request", logger.Error(err))
			d.metrics.Dispatched("error")
			continue
		}
		d.metrics.Dispatched("sent")
		sent++
	}
	d.log.Info("dispatch pass finished", logger.Int("subscriptions", len(subs)), logger.Int("sent", sent))
	return sent, nil
}

// Start schedules Tick on spec (DefaultSchedule when empty) in UTC and
// returns the running cron; Stop it on shutdown.
func (d *Dispatcher) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(spec, func() {
		if _, err := d.Tick(ctx); err != nil {
			d.log.Error("dispatch pass failed", logger.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
