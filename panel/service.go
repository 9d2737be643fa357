package panel

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/endervision20/availability-bot/availability"
	"github.com/endervision20/availability-bot/telemetry"
)

// Service is the entry point for user actions. Every mutation is
// serialized on the reconciler dispatcher, sweeps first, and schedules a
// panel edit when the store changed.
type Service struct {
	store *availability.Store
	rec   *Reconciler
}

// NewService binds a store to its reconciler.
func NewService(store *availability.Store, rec *Reconciler) *Service {
	return &Service{store: store, rec: rec}
}

// Reconciler returns the reconciler behind the service.
func (s *Service) Reconciler() *Reconciler { return s.rec }

// SetupPanel posts a new panel in channelID and makes it the active one.
func (s *Service) SetupPanel(ctx context.Context, guildID, channelID string) (availability.PanelRef, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPanel, "panel.setup", attribute.String("channel_id", channelID))
	var ref availability.PanelRef
	err := s.rec.Do(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.rec.Setup(ctx, guildID, channelID)
		return err
	})
	telemetry.CountMutation("setup", err)
	telemetry.EndSpan(span, err)
	return ref, err
}

// Manage returns the caller's current entry. Entries whose time is up are
// reported as absent even before a sweep removes them.
func (s *Service) Manage(userID string) (availability.Entry, bool) {
	e, ok := s.store.Get(userID)
	if !ok || e.ExpiresAt <= s.store.Now() {
		return availability.Entry{}, false
	}
	return e, true
}

// Set parses durationInput and declares userID available for activity.
func (s *Service) Set(ctx context.Context, userID, activity, durationInput string) (availability.Entry, error) {
	minutes, err := availability.ParseDuration(durationInput)
	if err != nil {
		telemetry.CountMutation("set", err)
		return availability.Entry{}, err
	}
	var out availability.Entry
	err = s.mutate(ctx, "set", userID, func(ctx context.Context) (bool, error) {
		e, err := s.store.Set(ctx, userID, activity, minutes)
		out = e
		return err == nil, err
	})
	return out, err
}

// ChangeActivity replaces the activity of the caller's entry.
func (s *Service) ChangeActivity(ctx context.Context, userID, activity string) (availability.Entry, error) {
	var out availability.Entry
	err := s.mutate(ctx, "change_activity", userID, func(ctx context.Context) (bool, error) {
		e, err := s.store.UpdateActivity(ctx, userID, activity)
		out = e
		return err == nil, err
	})
	return out, err
}

// ChangeDuration parses durationInput and restarts the caller's countdown.
func (s *Service) ChangeDuration(ctx context.Context, userID, durationInput string) (availability.Entry, error) {
	minutes, err := availability.ParseDuration(durationInput)
	if err != nil {
		telemetry.CountMutation("change_duration", err)
		return availability.Entry{}, err
	}
	var out availability.Entry
	err = s.mutate(ctx, "change_duration", userID, func(ctx context.Context) (bool, error) {
		e, err := s.store.UpdateDuration(ctx, userID, minutes)
		out = e
		return err == nil, err
	})
	return out, err
}

// Remove deletes the caller's entry. It reports whether one existed.
func (s *Service) Remove(ctx context.Context, userID string) (bool, error) {
	var removed bool
	err := s.mutate(ctx, "remove", userID, func(ctx context.Context) (bool, error) {
		var err error
		removed, err = s.store.Remove(ctx, userID)
		return removed, err
	})
	return removed, err
}

// mutate runs fn on the dispatcher after sweeping expired entries, so an
// expired entry is never updated in place. When either step changed the
// store a panel edit is scheduled; mutate does not wait for it.
func (s *Service) mutate(ctx context.Context, op, userID string, fn func(context.Context) (bool, error)) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPanel, "panel."+op, telemetry.UserAttr(userID))
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "panel_service"), slog.String("op", op))

	err := s.rec.Do(ctx, func(ctx context.Context) error {
		swept, sweepErr := s.store.SweepExpired(ctx, s.store.Now())
		if sweepErr != nil {
			telemetry.Inc(telemetry.PersistenceFailures)
			logger.Error("failed to persist sweep", slog.Any("err", sweepErr))
		}
		changed, err := fn(ctx)
		if err != nil {
			if isPersistence(err) {
				telemetry.Inc(telemetry.PersistenceFailures)
			}
			if swept {
				_ = s.rec.Schedule(ctx)
			}
			return err
		}
		if changed || swept {
			if rerr := s.rec.Schedule(ctx); rerr != nil {
				logger.Warn("reconcile after mutation failed", slog.Any("err", rerr))
			}
		}
		return nil
	})

	telemetry.CountMutation(op, err)
	telemetry.EndSpan(span, err)
	if err != nil {
		logger.Debug("mutation rejected", slog.String("user_id", userID), slog.Any("err", err))
	}
	return err
}

func isPersistence(err error) bool {
	return errors.Is(err, availability.ErrPersistence)
}
