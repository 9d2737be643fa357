package availability

import (
	"context"
	"errors"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// recordingPersister keeps every saved snapshot and can be told to fail.
type recordingPersister struct {
	initial map[string]Entry
	saves   []map[string]Entry
	fail    error
}

func (p *recordingPersister) Load(ctx context.Context) (map[string]Entry, error) {
	return maps.Clone(p.initial), nil
}

func (p *recordingPersister) Save(ctx context.Context, entries map[string]Entry) error {
	if p.fail != nil {
		return p.fail
	}
	p.saves = append(p.saves, entries)
	return nil
}

func newTestStore(t *testing.T, at int64) (*Store, *recordingPersister, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(at, 0))
	p := &recordingPersister{}
	return NewStore(p, clk), p, clk
}

func TestSetComputesExpiry(t *testing.T) {
	s, p, _ := newTestStore(t, 1000)
	e, err := s.Set(context.Background(), "u1", "chess", 30)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := Entry{Activity: "chess", ExpiresAt: 2800}
	if e != want {
		t.Fatalf("Set returned %+v, want %+v", e, want)
	}
	if got, ok := s.Get("u1"); !ok || got != want {
		t.Fatalf("Get = %+v,%v want %+v", got, ok, want)
	}
	if len(p.saves) != 1 {
		t.Fatalf("expected 1 persisted write, got %d", len(p.saves))
	}
	if p.saves[0]["u1"] != want {
		t.Errorf("persisted %+v, want %+v", p.saves[0]["u1"], want)
	}

	var got []Active
	for a := range s.AllActive(1000) {
		got = append(got, a)
	}
	if len(got) != 1 || got[0].Remaining != 1800 {
		t.Fatalf("AllActive = %+v, want one entry with 1800s remaining", got)
	}
	if FormatRemaining(got[0].Remaining) != "30 minutes" {
		t.Errorf("formatted remaining = %q", FormatRemaining(got[0].Remaining))
	}
}

func TestSetOverwritesPriorEntry(t *testing.T) {
	s, _, clk := newTestStore(t, 0)
	ctx := context.Background()
	if _, err := s.Set(ctx, "u1", "chess", 10); err != nil {
		t.Fatal(err)
	}
	clk.Add(time.Minute)
	e, err := s.Set(ctx, "u1", "go", 5)
	if err != nil {
		t.Fatal(err)
	}
	if e.Activity != "go" || e.ExpiresAt != 60+300 {
		t.Fatalf("overwrite produced %+v", e)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestInvalidDurationLeavesStoreUnchanged(t *testing.T) {
	s, p, _ := newTestStore(t, 0)
	ctx := context.Background()
	if _, err := s.Set(ctx, "u1", "chess", 10); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Get("u1")

	for _, minutes := range []int{0, -1, -600, MaxDurationMinutes + 1} {
		if _, err := s.Set(ctx, "u2", "chess", minutes); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Set(%d) err = %v, want ErrInvalidDuration", minutes, err)
		}
		if _, err := s.UpdateDuration(ctx, "u1", minutes); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("UpdateDuration(%d) err = %v, want ErrInvalidDuration", minutes, err)
		}
	}
	if _, ok := s.Get("u2"); ok {
		t.Error("u2 should not exist after rejected Set")
	}
	if after, _ := s.Get("u1"); after != before {
		t.Errorf("u1 changed: %+v -> %+v", before, after)
	}
	if len(p.saves) != 1 {
		t.Errorf("rejected operations persisted: %d writes", len(p.saves))
	}
}

func TestValidation(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	ctx := context.Background()

	if _, err := s.Set(ctx, "", "chess", 5); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Set empty user err = %v", err)
	}
	if _, err := s.Set(ctx, "u1", "   ", 5); !errors.Is(err, ErrInvalidActivity) {
		t.Errorf("Set blank activity err = %v", err)
	}
	if _, err := s.UpdateActivity(ctx, "u1", "go"); !errors.Is(err, ErrNoActiveEntry) {
		t.Errorf("UpdateActivity absent err = %v", err)
	}
	if _, err := s.UpdateDuration(ctx, "u1", 5); !errors.Is(err, ErrNoActiveEntry) {
		t.Errorf("UpdateDuration absent err = %v", err)
	}
	if _, err := s.Remove(ctx, ""); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Remove empty user err = %v", err)
	}
}

func TestActivityValidation(t *testing.T) {
	tests := []struct {
		name     string
		activity string
		wantErr  bool
	}{
		{"blank", "   ", true},
		{"at limit", strings.Repeat("a", MaxActivityLength), false},
		{"multibyte at limit", strings.Repeat("é", MaxActivityLength), false},
		{"over limit", strings.Repeat("a", MaxActivityLength+1), true},
		{"padding kept as supplied", "  chess ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, p, _ := newTestStore(t, 0)
			ctx := context.Background()
			e, err := s.Set(ctx, "u1", tt.activity, 5)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidActivity) {
					t.Fatalf("Set err = %v, want ErrInvalidActivity", err)
				}
				if len(p.saves) != 0 {
					t.Errorf("rejected Set persisted %d writes", len(p.saves))
				}
			} else {
				if err != nil {
					t.Fatalf("Set: %v", err)
				}
				if e.Activity != tt.activity {
					t.Errorf("stored activity %q, want %q", e.Activity, tt.activity)
				}
			}

			if _, err := s.Set(ctx, "u2", "chess", 5); err != nil {
				t.Fatal(err)
			}
			_, err = s.UpdateActivity(ctx, "u2", tt.activity)
			if tt.wantErr != (err != nil) {
				t.Fatalf("UpdateActivity err = %v, wantErr %v", err, tt.wantErr)
			}
			got, _ := s.Get("u2")
			want := tt.activity
			if tt.wantErr {
				want = "chess"
			}
			if got.Activity != want {
				t.Errorf("u2 activity = %q, want %q", got.Activity, want)
			}
		})
	}
}

func TestUpdateActivityKeepsExpiry(t *testing.T) {
	s, _, clk := newTestStore(t, 0)
	ctx := context.Background()
	orig, _ := s.Set(ctx, "u1", "chess", 10)
	clk.Add(3 * time.Minute)
	e, err := s.UpdateActivity(ctx, "u1", "Go")
	if err != nil {
		t.Fatal(err)
	}
	if e.Activity != "Go" || e.ExpiresAt != orig.ExpiresAt {
		t.Fatalf("UpdateActivity = %+v, want activity Go and expiry %d", e, orig.ExpiresAt)
	}
}

func TestUpdateDurationRecomputesFromNow(t *testing.T) {
	s, _, clk := newTestStore(t, 0)
	ctx := context.Background()
	if _, err := s.Set(ctx, "u1", "chess", 10); err != nil {
		t.Fatal(err)
	}
	clk.Add(4 * time.Minute)
	e, err := s.UpdateDuration(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if e.ExpiresAt != 240+600 {
		t.Fatalf("ExpiresAt = %d, want %d", e.ExpiresAt, 240+600)
	}
	if e.Activity != "chess" {
		t.Errorf("activity changed to %q", e.Activity)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, p, _ := newTestStore(t, 0)
	ctx := context.Background()
	if _, err := s.Set(ctx, "u1", "chess", 10); err != nil {
		t.Fatal(err)
	}
	removed, err := s.Remove(ctx, "u1")
	if err != nil || !removed {
		t.Fatalf("first Remove = %v, %v", removed, err)
	}
	removed, err = s.Remove(ctx, "u1")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v; want false, nil", removed, err)
	}
	if len(p.saves) != 2 {
		t.Errorf("expected 2 writes (set + one remove), got %d", len(p.saves))
	}
}

func TestSweepExpired(t *testing.T) {
	s, p, _ := newTestStore(t, 0)
	ctx := context.Background()
	if _, err := s.Set(ctx, "u1", "go", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(ctx, "u2", "chess", 2); err != nil {
		t.Fatal(err)
	}
	keep, _ := s.Get("u2")
	writes := len(p.saves)

	changed, err := s.SweepExpired(ctx, 59)
	if err != nil || changed {
		t.Fatalf("early sweep = %v, %v; want false", changed, err)
	}
	if len(p.saves) != writes {
		t.Error("no-op sweep persisted")
	}

	changed, err = s.SweepExpired(ctx, 61)
	if err != nil || !changed {
		t.Fatalf("sweep at 61 = %v, %v; want true", changed, err)
	}
	if _, ok := s.Get("u1"); ok {
		t.Error("u1 should have been swept")
	}
	if got, ok := s.Get("u2"); !ok || got != keep {
		t.Errorf("u2 = %+v,%v want %+v", got, ok, keep)
	}
	if len(p.saves) != writes+1 {
		t.Errorf("sweep writes = %d, want 1", len(p.saves)-writes)
	}
	if s.LastSweep() != 61 {
		t.Errorf("LastSweep = %d", s.LastSweep())
	}

	// expiresAt == now counts as expired
	changed, _ = s.SweepExpired(ctx, 120)
	if !changed || s.Len() != 0 {
		t.Errorf("boundary sweep changed=%v len=%d", changed, s.Len())
	}
}

func TestAllActiveDoesNotMutate(t *testing.T) {
	s, p, _ := newTestStore(t, 0)
	ctx := context.Background()
	_, _ = s.Set(ctx, "u1", "go", 1)
	_, _ = s.Set(ctx, "u2", "go", 5)
	writes := len(p.saves)

	n := 0
	for a := range s.AllActive(120) {
		if a.UserID != "u2" || a.Remaining != 180 {
			t.Errorf("unexpected active entry %+v", a)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("AllActive yielded %d entries, want 1", n)
	}
	if s.Len() != 2 || len(p.saves) != writes {
		t.Error("AllActive mutated the store")
	}
}

func TestAllActiveStopsEarly(t *testing.T) {
	s, _, _ := newTestStore(t, 0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = s.Set(ctx, id, "go", 5)
	}
	n := 0
	for range s.AllActive(0) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times after break", n)
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	s, p, _ := newTestStore(t, 0)
	ctx := context.Background()
	orig, _ := s.Set(ctx, "u1", "chess", 10)
	p.fail = errors.New("disk full")

	if _, err := s.Set(ctx, "u2", "go", 5); !errors.Is(err, ErrPersistence) {
		t.Errorf("Set err = %v, want ErrPersistence", err)
	}
	if _, ok := s.Get("u2"); ok {
		t.Error("failed Set left u2 in memory")
	}
	if _, err := s.Set(ctx, "u1", "go", 5); err == nil {
		t.Error("expected overwrite to fail")
	}
	if _, err := s.UpdateActivity(ctx, "u1", "go"); err == nil {
		t.Error("expected UpdateActivity to fail")
	}
	if _, err := s.UpdateDuration(ctx, "u1", 50); err == nil {
		t.Error("expected UpdateDuration to fail")
	}
	if removed, err := s.Remove(ctx, "u1"); err == nil || removed {
		t.Errorf("Remove = %v, %v; want failure", removed, err)
	}
	if got, _ := s.Get("u1"); got != orig {
		t.Errorf("u1 = %+v after failed writes, want %+v", got, orig)
	}

	// Sweep keeps the removal even when the write fails.
	changed, err := s.SweepExpired(ctx, 10_000)
	if !changed || !errors.Is(err, ErrPersistence) {
		t.Errorf("sweep = %v, %v", changed, err)
	}
	if s.Len() != 0 {
		t.Error("expired entry resurrected after failed sweep write")
	}
}

func TestLoad(t *testing.T) {
	p := &recordingPersister{initial: map[string]Entry{"u1": {Activity: "chess", ExpiresAt: 99}}}
	s := NewStore(p, clock.NewMock())
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e, ok := s.Get("u1"); !ok || e.ExpiresAt != 99 {
		t.Fatalf("loaded entry = %+v,%v", e, ok)
	}
}

func TestNilPersisterIsMemoryOnly(t *testing.T) {
	s := NewStore(nil, clock.NewMock())
	ctx := context.Background()
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(ctx, "u1", "chess", 1); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}
