package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tobyrouse/divfolio/internal/common"
	"github.com/tobyrouse/divfolio/internal/models"
)

type mockBroker struct {
	mu        sync.Mutex
	positions []models.RawPosition
	meta      []models.InstrumentMeta
	err       error
}

func (m *mockBroker) GetOpenPositions(_ context.Context) ([]models.RawPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.positions, nil
}

func (m *mockBroker) GetInstrumentMetadata(_ context.Context) ([]models.InstrumentMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.meta, nil
}

func (m *mockBroker) RequestExport(_ context.Context, _, _ time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockBroker) GetExportStatus(_ context.Context, _ int64) (*models.ExportStatus, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBroker) DownloadExport(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBroker) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// mockAssembler builds a distinct, internally consistent portfolio per call.
// Every position of call n carries value n, so a reader that observes mixed
// values has seen a torn snapshot.
type mockAssembler struct {
	calls atomic.Int64
	gate  chan struct{}
}

func (m *mockAssembler) Assemble(ctx context.Context, raw []models.RawPosition, _ []models.InstrumentMeta) (*models.Portfolio, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	n := m.calls.Add(1)
	positions := make([]models.Position, 0, len(raw))
	for _, r := range raw {
		positions = append(positions, models.Position{Ticker: r.Ticker, Value: float64(n)})
	}
	pf := &models.Portfolio{Positions: positions, TotalValue: float64(n) * float64(len(positions))}
	return pf, nil
}

type mockCurrency struct {
	mu   sync.Mutex
	base string
}

func (m *mockCurrency) RefreshRates(_ context.Context) error { return nil }
func (m *mockCurrency) ConversionFactor(_ context.Context, _, _ string) (float64, error) {
	return 1, nil
}
func (m *mockCurrency) ConversionFactorAllowStale(_ context.Context, _, _ string) (float64, error) {
	return 1, nil
}

func (m *mockCurrency) Base() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.base
}

func (m *mockCurrency) SetBase(base string) {
	m.mu.Lock()
	m.base = base
	m.mu.Unlock()
}

func newTestScheduler(broker *mockBroker, assembler *mockAssembler, currency *mockCurrency, settings common.Settings) *Scheduler {
	store := common.NewSettingsStore(settings)
	return New(broker, assembler, currency, store, common.NewSilentLogger())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunPublishesStartupCycle(t *testing.T) {
	broker := &mockBroker{positions: []models.RawPosition{{Ticker: "AAPL_US_EQ", Quantity: 1}}}
	assembler := &mockAssembler{}
	sched := newTestScheduler(broker, assembler, &mockCurrency{}, common.Settings{ReferenceCurrency: "GBP"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	waitFor(t, time.Second, func() bool { return sched.Snapshot().UpdateCount == 1 },
		"startup cycle never published")

	snap := sched.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].Ticker != "AAPL_US_EQ" {
		t.Errorf("unexpected snapshot positions: %+v", snap.Positions)
	}
	if snap.CycleID == "" {
		t.Error("published snapshot has no cycle ID")
	}
}

func TestZeroIntervalWaitsForTriggers(t *testing.T) {
	broker := &mockBroker{positions: []models.RawPosition{{Ticker: "T", Quantity: 1}}}
	assembler := &mockAssembler{}
	sched := newTestScheduler(broker, assembler, &mockCurrency{}, common.Settings{ReferenceCurrency: "GBP", RefreshInterval: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	waitFor(t, time.Second, func() bool { return assembler.calls.Load() == 1 },
		"startup cycle never ran")

	// No timer with a zero interval, so nothing else runs unprompted
	time.Sleep(50 * time.Millisecond)
	if got := assembler.calls.Load(); got != 1 {
		t.Fatalf("cycles without trigger = %d, want 1", got)
	}

	sched.TriggerRefresh()
	waitFor(t, time.Second, func() bool { return assembler.calls.Load() == 2 },
		"trigger never ran a cycle")
}

func TestTriggerCoalescing(t *testing.T) {
	broker := &mockBroker{positions: []models.RawPosition{{Ticker: "T", Quantity: 1}}}
	assembler := &mockAssembler{gate: make(chan struct{})}
	sched := newTestScheduler(broker, assembler, &mockCurrency{}, common.Settings{ReferenceCurrency: "GBP", RefreshInterval: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	// Startup cycle is parked inside Assemble; every trigger sent now lands in
	// the capacity-one channel and collapses into a single extra cycle
	for i := 0; i < 5; i++ {
		sched.TriggerRefresh()
	}
	assembler.gate <- struct{}{} // release the startup cycle
	assembler.gate <- struct{}{} // release the coalesced cycle

	waitFor(t, time.Second, func() bool { return assembler.calls.Load() == 2 },
		"coalesced cycle never ran")

	// Nothing else is queued
	select {
	case assembler.gate <- struct{}{}:
		t.Fatal("more than one cycle queued for five triggers")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailedCyclePreservesSnapshot(t *testing.T) {
	broker := &mockBroker{positions: []models.RawPosition{{Ticker: "T", Quantity: 1}}}
	assembler := &mockAssembler{}
	sched := newTestScheduler(broker, assembler, &mockCurrency{}, common.Settings{ReferenceCurrency: "GBP", RefreshInterval: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	waitFor(t, time.Second, func() bool { return sched.Snapshot().UpdateCount == 1 },
		"startup cycle never published")
	before := sched.Snapshot()

	broker.setErr(errors.New("connection refused"))
	sched.TriggerRefresh()

	// Give the failing cycle time to run, then verify nothing changed
	time.Sleep(50 * time.Millisecond)
	after := sched.Snapshot()
	if after.UpdateCount != before.UpdateCount {
		t.Errorf("update count advanced across a failed cycle: %d -> %d", before.UpdateCount, after.UpdateCount)
	}
	if len(after.Positions) != len(before.Positions) {
		t.Errorf("positions changed across a failed cycle")
	}

	// Recovery picks up where the counter left off
	broker.setErr(nil)
	sched.TriggerRefresh()
	waitFor(t, time.Second, func() bool { return sched.Snapshot().UpdateCount == 2 },
		"recovery cycle never published")
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	raw := []models.RawPosition{
		{Ticker: "A", Quantity: 1},
		{Ticker: "B", Quantity: 1},
		{Ticker: "C", Quantity: 1},
	}
	broker := &mockBroker{positions: raw}
	assembler := &mockAssembler{}
	sched := newTestScheduler(broker, assembler, &mockCurrency{}, common.Settings{ReferenceCurrency: "GBP", RefreshInterval: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	waitFor(t, time.Second, func() bool { return sched.Snapshot().UpdateCount == 1 },
		"startup cycle never published")

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := sched.Snapshot()
				if len(snap.Positions) == 0 {
					continue
				}
				// All positions of one snapshot carry the same per-cycle value
				want := snap.Positions[0].Value
				for _, p := range snap.Positions {
					if p.Value != want {
						t.Errorf("torn snapshot: mixed values %v and %v", want, p.Value)
						return
					}
				}
				if snap.TotalValue != want*float64(len(snap.Positions)) {
					t.Errorf("torn snapshot: total %v inconsistent with positions", snap.TotalValue)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		sched.TriggerRefresh()
		time.Sleep(time.Millisecond)
	}
	close(done)
	wg.Wait()
}

func TestCycleAppliesCurrentSettings(t *testing.T) {
	broker := &mockBroker{positions: []models.RawPosition{{Ticker: "T", Quantity: 1}}}
	assembler := &mockAssembler{}
	currency := &mockCurrency{}
	store := common.NewSettingsStore(common.Settings{ReferenceCurrency: "GBP", RefreshInterval: 0})
	sched := New(broker, assembler, currency, store, common.NewSilentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	waitFor(t, time.Second, func() bool { return currency.Base() == "GBP" },
		"startup cycle never applied the reference currency")

	next := store.Current()
	next.ReferenceCurrency = "EUR"
	store.Update(next)
	sched.TriggerRefresh()

	waitFor(t, time.Second, func() bool { return currency.Base() == "EUR" },
		"settings change not applied by the next cycle")
}
