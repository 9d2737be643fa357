package panel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/endervision20/availability-bot/availability"
)

type fakePublisher struct {
	mu        sync.Mutex
	nextID    int
	created   []availability.Panel
	channels  []string
	updates   []availability.Panel
	refs      []availability.PanelRef
	createErr error
	updateErr error
	// delay is how long each UpdatePanel takes.
	delay time.Duration
}

func (f *fakePublisher) CreatePanel(ctx context.Context, channelID string, p availability.Panel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	f.created = append(f.created, p)
	f.channels = append(f.channels, channelID)
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakePublisher) UpdatePanel(ctx context.Context, ref availability.PanelRef, p availability.Panel) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, p)
	f.refs = append(f.refs, ref)
	return nil
}

func (f *fakePublisher) setUpdateErr(err error) {
	f.mu.Lock()
	f.updateErr = err
	f.mu.Unlock()
}

func (f *fakePublisher) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakePublisher) lastUpdate() availability.Panel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return availability.Panel{}
	}
	return f.updates[len(f.updates)-1]
}

type memRefs struct {
	mu      sync.Mutex
	ref     availability.PanelRef
	saved   int
	saveErr error
}

func (m *memRefs) LoadRef(ctx context.Context) (availability.PanelRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ref, nil
}

func (m *memRefs) SaveRef(ctx context.Context, ref availability.PanelRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ref = ref
	m.saved++
	return nil
}

// failingPersister accepts writes until fail is set.
type failingPersister struct {
	mu   sync.Mutex
	fail bool
}

func (p *failingPersister) Load(ctx context.Context) (map[string]availability.Entry, error) {
	return nil, nil
}

func (p *failingPersister) Save(ctx context.Context, entries map[string]availability.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fmt.Errorf("disk full")
	}
	return nil
}

type harness struct {
	clk   *clock.Mock
	store *availability.Store
	refs  *memRefs
	pub   *fakePublisher
	rec   *Reconciler
	svc   *Service
}

func newHarness(t *testing.T, p availability.Persister, interval time.Duration) *harness {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0))
	h := &harness{
		clk:   clk,
		store: availability.NewStore(p, clk),
		refs:  &memRefs{},
		pub:   &fakePublisher{},
	}
	h.rec = NewReconciler(h.store, h.refs, h.pub, Options{Interval: interval, Clock: clk})
	h.svc = NewService(h.store, h.rec)
	if err := h.rec.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return h
}

// start runs the dispatcher until the test ends and waits until it serves.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.rec.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := h.rec.Do(waitCtx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("dispatcher not serving: %v", err)
	}
}

// waitBody waits until the last pushed panel body satisfies cond.
func (h *harness) waitBody(t *testing.T, what string, cond func(body string) bool) {
	t.Helper()
	waitFor(t, what, func() bool { return cond(h.pub.lastUpdate().Body) })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
