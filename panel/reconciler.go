package panel

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/endervision20/availability-bot/availability"
	"github.com/endervision20/availability-bot/telemetry"
)

// DefaultInterval is the sweep tick period.
const DefaultInterval = 60 * time.Second

// Publisher draws the panel on the chat platform.
type Publisher interface {
	// CreatePanel posts a new panel message and returns its ID.
	CreatePanel(ctx context.Context, channelID string, p availability.Panel) (string, error)
	// UpdatePanel edits the existing panel message in place.
	UpdatePanel(ctx context.Context, ref availability.PanelRef, p availability.Panel) error
}

// State of the panel message.
type State int

const (
	Uninitialized State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "uninitialized"
}

// Options tune a Reconciler. Zero values pick the defaults.
type Options struct {
	// Interval between sweep ticks (default 60s).
	Interval time.Duration
	// EditRate limits panel edits per second; 0 disables pacing.
	EditRate float64
	// EditBurst is the limiter burst (default 5).
	EditBurst int
	// GuildID, when set, overrides the deployment scope of the stored reference.
	GuildID string
	// Clock drives the ticker (default wall clock).
	Clock clock.Clock
}

type event struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// push is a rendered panel waiting to be sent to ref.
type push struct {
	ref   availability.PanelRef
	panel availability.Panel
	corr  string
}

// Reconciler keeps the panel message in sync with the store.
type Reconciler struct {
	store    *availability.Store
	refs     availability.RefStore
	pub      Publisher
	clock    clock.Clock
	interval time.Duration
	limiter  *rate.Limiter
	guildID  string
	events   chan event
	kick     chan struct{}

	// pushMu is held for the whole of every UpdatePanel call, so edits
	// reach the platform in the order they were rendered.
	pushMu sync.Mutex

	mu            sync.Mutex
	ref           availability.PanelRef
	state         State
	lastPushed    *availability.Panel
	pending       *push
	inFlight      *push
	lastReconcile int64
	lastPushErr   string
}

// NewReconciler wires a reconciler. Call Init before Run.
func NewReconciler(store *availability.Store, refs availability.RefStore, pub Publisher, opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.EditBurst <= 0 {
		opts.EditBurst = 5
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	r := &Reconciler{
		store:    store,
		refs:     refs,
		pub:      pub,
		clock:    opts.Clock,
		interval: opts.Interval,
		guildID:  opts.GuildID,
		events:   make(chan event),
		kick:     make(chan struct{}, 1),
	}
	if opts.EditRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.EditRate), opts.EditBurst)
	}
	return r
}

// Init loads the stored panel reference. A complete reference puts the
// panel in the Active state.
func (r *Reconciler) Init(ctx context.Context) error {
	ref, err := r.refs.LoadRef(ctx)
	if err != nil {
		return fmt.Errorf("load panel reference: %w", err)
	}
	if r.guildID != "" {
		ref.GuildID = r.guildID
	}
	r.mu.Lock()
	r.ref = ref
	if ref.Valid() {
		r.state = Active
	}
	state := r.state
	r.mu.Unlock()
	telemetry.SetPanelActive(state == Active)
	slog.Info("panel reference loaded",
		slog.String("state", state.String()),
		slog.String("guild_id", ref.GuildID),
		slog.String("channel_id", ref.ChannelID),
		slog.String("message_id", ref.MessageID))
	return nil
}

// Run is the dispatcher loop: it serves queued actions and schedules a
// reconcile on every tick until ctx is done. Panel edits are sent from a
// second goroutine so a slow platform never holds up the dispatcher.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	pusherDone := make(chan struct{})
	go func() {
		r.pushLoop(ctx)
		close(pusherDone)
	}()
	defer func() { <-pusherDone }()
	slog.Info("panel reconciler started", slog.Duration("interval", r.interval), slog.String("component", "panel_reconcile"))

	for {
		select {
		case <-ctx.Done():
			slog.Info("panel reconciler stopped", slog.String("component", "panel_reconcile"))
			return
		case <-ticker.C:
			tickCtx := telemetry.WithCorrelation(ctx, uuid.NewString())
			if err := r.Schedule(tickCtx); err != nil {
				telemetry.LoggerWithCorr(tickCtx).Warn("tick reconcile failed", slog.Any("err", err), slog.String("component", "panel_reconcile"))
			}
		case ev := <-r.events:
			ev.done <- ev.fn(ev.ctx)
		}
	}
}

// pushLoop sends scheduled panels. Only the newest pending panel is sent;
// older ones it replaced are dropped.
func (r *Reconciler) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
		}
		r.pushMu.Lock()
		r.mu.Lock()
		p := r.pending
		r.pending = nil
		r.mu.Unlock()
		if p != nil {
			pctx := telemetry.WithCorrelation(ctx, p.corr)
			if err := r.send(pctx, p); err != nil && ctx.Err() == nil {
				telemetry.LoggerWithCorr(pctx).Warn("scheduled push failed", slog.Any("err", err), slog.String("component", "panel_reconcile"))
			}
		}
		r.pushMu.Unlock()
	}
}

// Do queues fn on the dispatcher and waits for its result. It returns
// ctx.Err() if ctx ends first, which includes the case where Run is not
// running.
func (r *Reconciler) Do(ctx context.Context, fn func(context.Context) error) error {
	ev := event{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case r.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Setup posts a fresh empty panel in channelID, records it as the panel
// reference and moves to Active. Calling it again replaces the reference;
// the old message is left as is. Run it through Do.
func (r *Reconciler) Setup(ctx context.Context, guildID, channelID string) (availability.PanelRef, error) {
	if channelID == "" {
		return availability.PanelRef{}, ErrNoChannel
	}
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "panel_reconcile"))

	empty := availability.EmptyPanel()
	msgID, err := r.pub.CreatePanel(ctx, channelID, empty)
	if err != nil {
		return availability.PanelRef{}, fmt.Errorf("create panel: %w", err)
	}
	if r.guildID != "" {
		guildID = r.guildID
	}
	ref := availability.PanelRef{GuildID: guildID, ChannelID: channelID, MessageID: msgID}

	r.mu.Lock()
	r.ref = ref
	r.state = Active
	r.lastPushed = &empty
	r.pending = nil
	r.lastPushErr = ""
	r.mu.Unlock()
	telemetry.SetPanelActive(true)
	logger.Info("panel created", slog.String("channel_id", channelID), slog.String("message_id", msgID))

	saveErr := r.refs.SaveRef(ctx, ref)
	if saveErr != nil {
		telemetry.Inc(telemetry.PersistenceFailures)
		logger.Error("failed to persist panel reference", slog.Any("err", saveErr))
	}
	// The panel was posted empty; bring it up to date right away.
	if err := r.reconcile(ctx, true); err != nil {
		logger.Warn("reconcile after setup failed", slog.Any("err", err))
	}
	if saveErr != nil {
		return ref, fmt.Errorf("%w: %w", availability.ErrPersistence, saveErr)
	}
	return ref, nil
}

// Reconcile sweeps expired entries, renders the active ones and pushes the
// panel when it differs from the last successful push, waiting for the
// edit. Push failures are logged and swallowed; a failed sweep write is
// returned after the push.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	return r.traced(ctx, true)
}

// Schedule is Reconcile without waiting for the edit: a changed panel is
// queued for the pusher started by Run and Schedule returns at once. Run it
// on the dispatcher.
func (r *Reconciler) Schedule(ctx context.Context) error {
	return r.traced(ctx, false)
}

func (r *Reconciler) traced(ctx context.Context, wait bool) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPanel, "panel.reconcile")
	var err error
	telemetry.TimeFunc(telemetry.ReconcileDuration, func() {
		err = r.reconcile(ctx, wait)
	})
	telemetry.EndSpan(span, err)
	return err
}

func (r *Reconciler) reconcile(ctx context.Context, wait bool) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "panel_reconcile"))
	now := r.store.Now()

	removed, sweepErr := r.store.SweepExpired(ctx, now)
	telemetry.Inc(telemetry.SweepsTotal)
	if removed {
		telemetry.Inc(telemetry.SweepsRemoving)
		logger.Debug("expired entries swept", slog.Int64("now", now))
	}
	if sweepErr != nil {
		telemetry.Inc(telemetry.PersistenceFailures)
		logger.Error("failed to persist sweep", slog.Any("err", sweepErr))
	}

	active := slices.Collect(r.store.AllActive(now))
	telemetry.SetActiveEntries(len(active))
	rendered := availability.Render(slices.Values(active))

	r.mu.Lock()
	r.lastReconcile = now
	if r.state != Active {
		r.mu.Unlock()
		return sweepErr
	}
	if latest := r.latestLocked(); latest != nil && latest.Equal(rendered) {
		r.mu.Unlock()
		telemetry.Inc(telemetry.PanelPushesSkipped)
		return sweepErr
	}
	p := &push{ref: r.ref, panel: rendered, corr: telemetry.GetCorrelation(ctx)}
	if !wait {
		r.pending = p
		r.mu.Unlock()
		select {
		case r.kick <- struct{}{}:
		default:
		}
		return sweepErr
	}
	// this push supersedes anything still queued
	r.pending = nil
	r.mu.Unlock()

	r.pushMu.Lock()
	defer r.pushMu.Unlock()
	if err := r.send(ctx, p); err != nil {
		return err
	}
	return sweepErr
}

// latestLocked is the newest panel already pushed or on its way to the
// current reference.
func (r *Reconciler) latestLocked() *availability.Panel {
	if r.pending != nil && r.pending.ref == r.ref {
		return &r.pending.panel
	}
	if r.inFlight != nil && r.inFlight.ref == r.ref {
		return &r.inFlight.panel
	}
	return r.lastPushed
}

// send waits for an edit slot and pushes p. Callers hold pushMu. Only a
// failure to get a slot is returned; push failures are recorded and logged.
func (r *Reconciler) send(ctx context.Context, p *push) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "panel_reconcile"))
	r.mu.Lock()
	r.inFlight = p
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight = nil
		r.mu.Unlock()
	}()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for edit slot: %w", err)
		}
	}

	var pushErr error
	telemetry.TimeFunc(telemetry.PushDuration, func() {
		pushErr = r.pub.UpdatePanel(ctx, p.ref, p.panel)
	})
	if pushErr != nil {
		class := ClassifyPushError(pushErr)
		if telemetry.PanelPushFailures != nil {
			telemetry.PanelPushFailures.WithLabelValues(class.String()).Inc()
		}
		attrs := []any{
			slog.Any("err", pushErr),
			slog.String("class", class.String()),
			slog.String("channel_id", p.ref.ChannelID),
			slog.String("message_id", p.ref.MessageID),
		}
		if class == ErrorClassNotFound {
			logger.Warn("panel message unresolvable; run setup again to recreate it", attrs...)
		} else {
			logger.Warn("panel push failed", attrs...)
		}
		r.mu.Lock()
		r.lastPushErr = pushErr.Error()
		r.mu.Unlock()
		return nil
	}

	r.mu.Lock()
	// a setup may have moved the panel while this edit was on its way
	if r.ref == p.ref {
		r.lastPushed = &p.panel
		r.lastPushErr = ""
	}
	r.mu.Unlock()
	telemetry.Inc(telemetry.PanelPushes)
	return nil
}

// ActiveView is one active entry in a Status snapshot.
type ActiveView struct {
	UserID    string `json:"userId"`
	Activity  string `json:"activity"`
	ExpiresAt int64  `json:"expiresAt"`
	Remaining int64  `json:"remaining"`
}

// Status is a point-in-time view for operators.
type Status struct {
	State         string                `json:"state"`
	Panel         availability.PanelRef `json:"panel"`
	Now           int64                 `json:"now"`
	LastReconcile int64                 `json:"lastReconcile,omitempty"`
	LastPushError string                `json:"lastPushError,omitempty"`
	Active        []ActiveView          `json:"active"`
}

// Snapshot reports the panel state and active entries. It does not sweep.
func (r *Reconciler) Snapshot() Status {
	now := r.store.Now()
	views := []ActiveView{}
	for a := range r.store.AllActive(now) {
		views = append(views, ActiveView{UserID: a.UserID, Activity: a.Entry.Activity, ExpiresAt: a.Entry.ExpiresAt, Remaining: a.Remaining})
	}
	slices.SortFunc(views, func(a, b ActiveView) int {
		return cmp.Or(cmp.Compare(a.Remaining, b.Remaining), strings.Compare(a.UserID, b.UserID))
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		State:         r.state.String(),
		Panel:         r.ref,
		Now:           now,
		LastReconcile: r.lastReconcile,
		LastPushError: r.lastPushErr,
		Active:        views,
	}
}

// State returns the current panel state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Ref returns the current panel reference.
func (r *Reconciler) Ref() availability.PanelRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ref
}
