// Package prefstore implements the observable preference state store for
// the to-do client: the show-completed flag and the combined sort order,
// persisted in a durable key-value store and mirrored to the legacy
// settings blob.
package prefstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rezkam/prefstate/internal/domain"
	"github.com/rezkam/prefstate/internal/storage"
)

const instrumentationName = "prefstate/prefstore"

// Store derives UserPreference snapshots from the primary key-value store
// and applies the sort-toggle state transitions. All writes go through the
// primary store's atomic update; the sort order is additionally mirrored to
// the legacy settings sink, best effort.
type Store struct {
	kv     storage.KV
	mirror storage.Mirror // may be nil
	logger *slog.Logger
	strict bool

	tracer       trace.Tracer
	writeCounter metric.Int64Counter
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for mirror failures and substituted
// snapshots. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithStrictDecode makes an unrecognized stored sort-order name a fatal
// read error instead of a recoverable one. The lenient default substitutes
// the default snapshot, matching the historical client behavior.
func WithStrictDecode() Option {
	return func(s *Store) { s.strict = true }
}

// New creates a Store over the primary key-value store and the legacy
// mirror. Both handles stay owned by the caller; mirror may be nil when no
// legacy consumer exists.
func New(kv storage.KV, mirror storage.Mirror, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		mirror: mirror,
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationName)
	// Ignore instrument errors for graceful degradation.
	writeCounter, err := meter.Int64Counter(
		"prefstate.write.total",
		metric.WithDescription("Total number of preference write operations"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		writeCounter = nil
	}
	s.writeCounter = writeCounter

	return s
}

// Get returns the current preference snapshot. A recoverable read failure
// yields the default snapshot; any other failure is returned.
func (s *Store) Get(ctx context.Context) (domain.UserPreference, error) {
	pref, err := s.snapshot(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupted) {
			s.logger.WarnContext(ctx, "preference state unreadable, substituting defaults", "error", err)
			return domain.DefaultUserPreference(), nil
		}
		return domain.UserPreference{}, err
	}
	return pref, nil
}

// SetShowCompleted persists the show-completed flag as a single atomic
// update against the primary store.
func (s *Store) SetShowCompleted(ctx context.Context, value bool) error {
	ctx, span := s.tracer.Start(ctx, "SetShowCompleted",
		trace.WithAttributes(attribute.Bool("pref.show_completed", value)),
	)
	defer span.End()

	err := s.kv.Set(ctx, storage.KeyShowCompleted, strconv.FormatBool(value))
	s.recordWrite(ctx, "set_show_completed", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write show_completed")
		return fmt.Errorf("failed to write show_completed: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetDeadlineSort sets the deadline toggle, combining it with the current
// priority toggle into the persisted sort order.
func (s *Store) SetDeadlineSort(ctx context.Context, enable bool) error {
	return s.setSortToggle(ctx, "SetDeadlineSort", enable, func(order domain.SortOrder) domain.SortOrder {
		return order.WithDeadline(enable)
	})
}

// SetPrioritySort sets the priority toggle, combining it with the current
// deadline toggle into the persisted sort order.
func (s *Store) SetPrioritySort(ctx context.Context, enable bool) error {
	return s.setSortToggle(ctx, "SetPrioritySort", enable, func(order domain.SortOrder) domain.SortOrder {
		return order.WithPriority(enable)
	})
}

// setSortToggle performs the read-modify-write of the sort order. The
// primary store serializes the update; the legacy mirror write happens
// after the commit and never affects the outcome.
func (s *Store) setSortToggle(ctx context.Context, op string, enable bool, transition func(domain.SortOrder) domain.SortOrder) error {
	ctx, span := s.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.Bool("pref.toggle_enabled", enable)),
	)
	defer span.End()

	var next domain.SortOrder
	err := s.kv.Update(ctx, func(current map[string]string) (map[string]string, error) {
		order, err := s.decodeSortOrder(ctx, current)
		if err != nil {
			return nil, err
		}
		next = transition(order)
		return map[string]string{storage.KeySortOrder: next.String()}, nil
	})
	s.recordWrite(ctx, "set_sort_order", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update sort order")
		return fmt.Errorf("failed to update sort order: %w", err)
	}

	span.SetAttributes(attribute.String("pref.sort_order", next.String()))
	span.SetStatus(codes.Ok, "")

	// Write-through to the legacy settings blob, fire and forget.
	if s.mirror != nil {
		if err := s.mirror.Put(ctx, storage.KeySortOrder, next.String()); err != nil {
			s.logger.WarnContext(ctx, "legacy mirror write failed", "sort_order", next.String(), "error", err)
		}
	}

	return nil
}

// decodeSortOrder reads the stored sort order out of a state snapshot.
// Missing decodes to NONE. An unrecognized name is corruption: lenient mode
// falls back to NONE, strict mode aborts the update.
func (s *Store) decodeSortOrder(ctx context.Context, state map[string]string) (domain.SortOrder, error) {
	raw, ok := state[storage.KeySortOrder]
	if !ok {
		return domain.SortOrderNone, nil
	}

	order, err := domain.NewSortOrder(raw)
	if err != nil {
		if s.strict {
			return "", err
		}
		s.logger.WarnContext(ctx, "stored sort order unrecognized, falling back to NONE", "value", raw)
		return domain.SortOrderNone, nil
	}
	return order, nil
}

// snapshot reads and decodes both keys into a fresh UserPreference.
// Decode failures are reported as storage.ErrCorrupted unless strict.
func (s *Store) snapshot(ctx context.Context) (domain.UserPreference, error) {
	pref := domain.DefaultUserPreference()

	raw, err := s.kv.Get(ctx, storage.KeyShowCompleted)
	switch {
	case err == nil:
		value, perr := strconv.ParseBool(raw)
		if perr != nil {
			return pref, fmt.Errorf("%w: show_completed %q: %v", storage.ErrCorrupted, raw, perr)
		}
		pref.ShowCompleted = value
	case errors.Is(err, storage.ErrNotFound):
		// Defaults apply.
	default:
		return pref, fmt.Errorf("failed to read show_completed: %w", err)
	}

	raw, err = s.kv.Get(ctx, storage.KeySortOrder)
	switch {
	case err == nil:
		order, derr := domain.NewSortOrder(raw)
		if derr != nil {
			if s.strict {
				return pref, derr
			}
			return pref, fmt.Errorf("%w: %v", storage.ErrCorrupted, derr)
		}
		pref.SortOrder = order
	case errors.Is(err, storage.ErrNotFound):
		// Defaults apply.
	default:
		return pref, fmt.Errorf("failed to read sort_order: %w", err)
	}

	return pref, nil
}

func (s *Store) recordWrite(ctx context.Context, op string, err error) {
	if s.writeCounter == nil {
		return
	}
	s.writeCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pref.operation", op),
			attribute.Bool("pref.success", err == nil),
		),
	)
}
