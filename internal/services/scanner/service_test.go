package scanner_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/adapters/memory"
	"mentionscan/internal/domain"
	"mentionscan/internal/events"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/scanner"
)

type sentEvent struct {
	name    string
	payload any
}

type recordingBus struct{ sent []sentEvent }

func (b *recordingBus) Send(_ context.Context, name string, payload any) error {
	b.sent = append(b.sent, sentEvent{name, payload})
	return nil
}

func newService(t *testing.T) (*scanner.Service, *memory.Store, *recordingBus) {
	t.Helper()
	store := memory.New()
	bus := &recordingBus{}
	return scanner.New(store, store, store, bus, nil), store, bus
}

func strp(s string) *string { return &s }

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"example.com":                     "example.com",
		"https://www.Example.com/about?x": "example.com",
		"shop.acme.com.au":                "acme.com.au",
		"  http://blog.example.co.uk/  ":  "example.co.uk",
	}
	for in, want := range tests {
		got, err := scanner.NormalizeDomain(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "localhost", "https://"} {
		_, err := scanner.NormalizeDomain(bad)
		assert.ErrorIs(t, err, scanner.ErrInvalidDomain, bad)
	}
}

func TestEnqueue_RejectsSecondInFlightScanForSubscription(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	req := ports.ScanRequest{Domain: "example.com", LeadID: "lead-1", DomainSubscriptionID: strp("sub-x")}

	first, err := svc.Enqueue(ctx, req)
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, first, domain.ScanQuerying, 45))

	second, err := svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, scanner.ErrScanInFlight)
	assert.Equal(t, first, second)
	assert.Len(t, store.Runs(), 1)

	require.NoError(t, store.Complete(ctx, first, 50))
	third, err := svc.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestEnqueue_LeadAndSubscriptionKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	_, err := svc.Enqueue(ctx, ports.ScanRequest{Domain: "example.com", LeadID: "lead-1"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, ports.ScanRequest{Domain: "example.com", LeadID: "lead-1", DomainSubscriptionID: strp("sub-1")})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, ports.ScanRequest{Domain: "example.com", LeadID: "lead-1"})
	assert.ErrorIs(t, err, scanner.ErrScanInFlight)
	assert.Len(t, store.Runs(), 2)
}

func TestHandleScanRequested_InFlightIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	req := ports.ScanRequest{Domain: "example.com", LeadID: "lead-1", DomainSubscriptionID: strp("sub-x")}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	ev := events.Event{Name: ports.EventScanRequested, Payload: raw}

	require.NoError(t, svc.HandleScanRequested(ctx, ev))
	require.NoError(t, svc.HandleScanRequested(ctx, ev))

	assert.Len(t, store.Runs(), 1)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	id, err := svc.Enqueue(ctx, ports.ScanRequest{Domain: "example.com", LeadID: "lead-1"})
	require.NoError(t, err)

	v, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPending, v.Status)
	assert.NotEmpty(t, v.Message)

	_, err = svc.Status(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.Fail(ctx, id, "We couldn't read enough of your website to run a scan."))
	v, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "We couldn't read enough of your website to run a scan.", v.ErrorMessage)
}

func TestView_QueryingInterpolates(t *testing.T) {
	run := domain.ScanRun{Status: domain.ScanQuerying, QueriesTotal: 20}
	start := scanner.View(run)

	run.QueriesDone = 10
	half := scanner.View(run)

	run.QueriesDone = 20
	end := scanner.View(run)

	assert.Equal(t, 45, start.Progress)
	assert.Equal(t, 70, half.Progress)
	assert.Equal(t, 95, end.Progress)
	assert.Greater(t, start.EtaSeconds, half.EtaSeconds)
	assert.Equal(t, 5, end.EtaSeconds)
}

func TestView_EveryStatusHasMessage(t *testing.T) {
	for _, st := range []domain.ScanStatus{
		domain.ScanPending, domain.ScanCrawling, domain.ScanAnalyzing, domain.ScanGenerating,
		domain.ScanQuerying, domain.ScanComplete, domain.ScanFailed,
	} {
		v := scanner.View(domain.ScanRun{Status: st})
		assert.NotEmpty(t, v.Message, st)
		assert.GreaterOrEqual(t, v.Progress, 0)
		assert.LessOrEqual(t, v.Progress, 100)
	}
	failed := scanner.View(domain.ScanRun{Status: domain.ScanFailed, Progress: 25})
	assert.Equal(t, scanner.GenericFailure, failed.ErrorMessage)
	assert.Equal(t, 25, failed.Progress)
}

func TestUpdateSchedule(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	store.PutSubscription(domain.DomainSubscription{ID: "sub-1", Status: domain.SubscriptionActive})

	require.NoError(t, svc.UpdateSchedule(ctx, "sub-1", 1, 9, "Australia/Sydney"))
	sub, err := store.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.ScanScheduleDay)
	assert.Equal(t, 9, sub.ScanScheduleHour)
	assert.Equal(t, "Australia/Sydney", sub.ScanTimezone)

	assert.ErrorIs(t, svc.UpdateSchedule(ctx, "sub-1", 7, 9, "UTC"), scanner.ErrInvalidSchedule)
	assert.ErrorIs(t, svc.UpdateSchedule(ctx, "sub-1", 1, 24, "UTC"), scanner.ErrInvalidSchedule)
	assert.ErrorIs(t, svc.UpdateSchedule(ctx, "sub-1", 1, 9, "Mars/Olympus"), scanner.ErrInvalidSchedule)
	assert.ErrorIs(t, svc.UpdateSchedule(ctx, "missing", 1, 9, "UTC"), ports.ErrNotFound)
}

func TestRequestEnrichment(t *testing.T) {
	ctx := context.Background()
	svc, store, bus := newService(t)
	id, err := svc.Enqueue(ctx, ports.ScanRequest{Domain: "example.com", LeadID: "lead-1"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RequestEnrichment(ctx, id), scanner.ErrNotComplete)

	require.NoError(t, store.Complete(ctx, id, 40))
	require.NoError(t, svc.RequestEnrichment(ctx, id))
	require.Len(t, bus.sent, 1)
	assert.Equal(t, ports.EventScanEnrich, bus.sent[0].name)
	assert.Equal(t, ports.EnrichRequest{ScanRunID: id}, bus.sent[0].payload)
}
