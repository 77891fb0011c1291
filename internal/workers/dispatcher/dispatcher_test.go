package dispatcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/adapters/memory"
	"mentionscan/internal/domain"
	"mentionscan/internal/events"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/scanner"
	"mentionscan/internal/workers/dispatcher"
)

type recordingBus struct {
	sent []ports.ScanRequest
	err  error
}

func (b *recordingBus) Send(_ context.Context, _ string, payload any) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, payload.(ports.ScanRequest))
	return nil
}

func sydneyMonday9() domain.DomainSubscription {
	return domain.DomainSubscription{
		ID: "sub-syd", LeadID: "lead-1", Domain: "acme.com.au",
		Status: domain.SubscriptionActive, ScanScheduleDay: 1, ScanScheduleHour: 9, ScanTimezone: "Australia/Sydney",
	}
}

func TestDue_SydneyMondayNine(t *testing.T) {
	sub := sydneyMonday9()
	// 2026-03-01 is a Sunday. Sydney is UTC+11 (daylight time) until April.
	tests := []struct {
		utc  time.Time
		want bool
	}{
		{time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), true},   // Mon 09:00 AEDT
		{time.Date(2026, 3, 1, 22, 59, 59, 0, time.UTC), true}, // Mon 09:59 AEDT
		{time.Date(2026, 3, 1, 21, 59, 0, 0, time.UTC), false}, // Mon 08:59
		{time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC), false},  // Mon 10:00
		{time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), false},   // Monday 09:00 UTC is 20:00 in Sydney
		{time.Date(2026, 3, 8, 22, 30, 0, 0, time.UTC), true},  // following week
		{time.Date(2026, 6, 7, 23, 0, 0, 0, time.UTC), true},   // winter, UTC+10
		{time.Date(2026, 6, 7, 22, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		due, err := dispatcher.Due(sub, tt.utc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, due, tt.utc.String())
	}
}

func TestDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	sub := sydneyMonday9()
	sub.ScanTimezone = "Not/AZone"

	due, err := dispatcher.Due(sub, time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.True(t, due)

	sub.ScanScheduleDay, sub.ScanScheduleHour = 9, 42
	sub.ScanTimezone = "UTC"
	due, err = dispatcher.Due(sub, time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.True(t, due, "out of range schedule uses Monday 09:00")
}

func TestTick_FiresOncePerHour(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutSubscription(sydneyMonday9())
	store.PutSubscription(domain.DomainSubscription{ID: "sub-other", Status: domain.SubscriptionActive, ScanScheduleDay: 3, ScanScheduleHour: 9, ScanTimezone: "Australia/Sydney"})
	store.PutSubscription(domain.DomainSubscription{ID: "sub-cancelled", Status: domain.SubscriptionCanceled, ScanScheduleDay: 1, ScanScheduleHour: 9, ScanTimezone: "Australia/Sydney"})
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 22, 5, 0, 0, time.UTC))
	bus := &recordingBus{}
	d := dispatcher.New(store, bus, clock, nil, nil)

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, "acme.com.au", bus.sent[0].Domain)
	require.NotNil(t, bus.sent[0].DomainSubscriptionID)
	assert.Equal(t, "sub-syd", *bus.sent[0].DomainSubscriptionID)

	clock.Advance(40 * time.Minute)
	n, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "retry within the same UTC hour")

	clock.Advance(time.Hour)
	n, _ = d.Tick(ctx)
	assert.Zero(t, n, "next hour is 10:00 local")

	clock.Advance(7*24*time.Hour - time.Hour)
	n, _ = d.Tick(ctx)
	assert.Equal(t, 1, n, "fires again the next week")
}

func TestTick_BadRecordDoesNotBlockPass(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutSubscription(domain.DomainSubscription{ID: "a-bad", Status: domain.SubscriptionActive, ScanScheduleDay: 0, ScanScheduleHour: 0, ScanTimezone: "Bogus/Zone"})
	store.PutSubscription(sydneyMonday9())
	bus := &recordingBus{}
	d := dispatcher.New(store, bus, clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)), nil, nil)

	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTick_SendFailureIsCounted(t *testing.T) {
	store := memory.New()
	store.PutSubscription(sydneyMonday9())
	bus := &recordingBus{err: errors.New("bus closed")}
	d := dispatcher.New(store, bus, clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)), nil, nil)

	n, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTick_InFlightScanIsNotDuplicated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutSubscription(sydneyMonday9())
	svc := scanner.New(store, store, store, nil, nil)
	bus := events.New(nil, nil)
	defer bus.Close()
	bus.Subscribe(ports.EventScanRequested, svc.HandleScanRequested)

	subID := "sub-syd"
	running, err := svc.Enqueue(ctx, ports.ScanRequest{Domain: "acme.com.au", LeadID: "lead-1", DomainSubscriptionID: &subID})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, running, domain.ScanQuerying, 45))

	d := dispatcher.New(store, bus, clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)), nil, nil)
	n, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	bus.Wait()

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, running, runs[0].ID)
}
