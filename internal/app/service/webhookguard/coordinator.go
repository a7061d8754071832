package webhookguard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/pkg/logctx"
	"github.com/eventcrew/feegate/pkg/metrics"

	"gorm.io/datatypes"
)

const DefaultLockTTL = 5 * time.Minute

// ProcessingResult is the committed outcome of handling one provider event.
type ProcessingResult struct {
	Success   bool   `json:"success"`
	Terminal  bool   `json:"terminal"`
	Message   string `json:"message,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`

	// WasAlreadyProcessed is set on results returned to losers of the
	// acquisition race; it is never persisted.
	WasAlreadyProcessed bool `json:"-"`
}

type lockMarker struct {
	Locked     bool  `json:"locked"`
	LockedAtMs int64 `json:"locked_at_ms"`
}

// Coordinator guarantees at-most-one successful business-effect application
// per provider event id, across concurrent handlers and process restarts.
//
// The reservation is an insert into webhook_event keyed by event id: the
// unique key turns a check-then-act race into a single winning insert. A
// crashed holder's lock is reclaimed only after lockTTL, never by
// unconditional overwrite.
type Coordinator struct {
	store eventStore
	log   *zap.SugaredLogger
	// lockTTL must be comfortably larger than the slowest expected handler.
	lockTTL time.Duration
	now     func() time.Time
}

func New(store eventStore, log *zap.SugaredLogger, lockTTL time.Duration) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Coordinator{store: store, log: log, lockTTL: lockTTL, now: time.Now}
}

// Acquire attempts to reserve the event id for exclusive processing.
// Returns (false, stored, nil) when the event was already fully processed,
// and (false, nil, nil) when another holder is actively processing.
func (c *Coordinator) Acquire(ctx context.Context, eventID, eventType string) (bool, *ProcessingResult, error) {
	row, err := c.lockRow(eventID, eventType)
	if err != nil {
		return false, nil, err
	}

	err = c.store.Insert(ctx, row)
	if err == nil {
		return true, nil, nil
	}
	if !isDuplicateErr(err) {
		return false, nil, fmt.Errorf("failed to insert webhook lock: %w", err)
	}

	existing, err := c.store.Get(ctx, eventID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read existing webhook event: %w", err)
	}
	if existing == nil {
		// Row vanished between insert and read: a concurrent release.
		// Treat as actively contended, the provider will retry.
		return false, nil, nil
	}

	if stored := parseFinalResult(existing.ProcessingResult); stored != nil {
		return false, stored, nil
	}

	// Staleness is judged on the marker's lock time; an unreadable marker
	// falls back to the row's creation time so a corrupt entry cannot
	// wedge the event id forever.
	lockedAt := existing.CreatedAt
	var marker lockMarker
	if err := json.Unmarshal(existing.ProcessingResult, &marker); err == nil && marker.Locked {
		lockedAt = time.UnixMilli(marker.LockedAtMs)
	} else {
		logctx.FromCtx(ctx, c.log).Warnw("webhook lock marker unreadable",
			"event_id", eventID, "created_at", existing.CreatedAt)
	}

	age := c.now().Sub(lockedAt)
	if age <= c.lockTTL {
		return false, nil, nil
	}

	// Stale lock: the prior holder is presumed crashed. Overwrite the
	// reservation and take over.
	logctx.FromCtx(ctx, c.log).Warnw("reclaiming stale webhook lock",
		"event_id", eventID, "age", age.String())
	metrics.WebhookStaleLockReclaimed.Inc()
	if err := c.store.Upsert(ctx, row); err != nil {
		return false, nil, fmt.Errorf("failed to overwrite stale webhook lock: %w", err)
	}
	return true, nil, nil
}

// Commit records the final result over the lock marker. A commit failure is
// surfaced, never swallowed: losing it risks silent double-processing.
func (c *Coordinator) Commit(ctx context.Context, eventID, eventType string, result *ProcessingResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal processing result: %w", err)
	}
	now := c.now()
	row := &models.WebhookEvent{
		EventID:          eventID,
		EventType:        eventType,
		ProcessingResult: datatypes.JSON(raw),
		ProcessedAt:      &now,
	}
	if err := c.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("failed to commit webhook result: %w", err)
	}
	return nil
}

// Release deletes the reservation so the provider's own retry can reprocess
// the event from scratch.
func (c *Coordinator) Release(ctx context.Context, eventID string) error {
	return c.store.Delete(ctx, eventID)
}

// RunExclusive runs handler under the event-id lock. Exactly one concurrent
// caller executes the handler; the rest observe WasAlreadyProcessed. The
// result is committed only when shouldCommit approves it, so a transient
// failure is released for the provider's retry instead of wedged behind a
// processed marker.
func (c *Coordinator) RunExclusive(
	ctx context.Context,
	eventID, eventType string,
	handler func(ctx context.Context) (*ProcessingResult, error),
	shouldCommit func(*ProcessingResult) bool,
) (*ProcessingResult, error) {
	acquired, stored, err := c.Acquire(ctx, eventID, eventType)
	if err != nil {
		return nil, err
	}
	if !acquired {
		metrics.WebhookDuplicateSuppressed.Inc()
		if stored != nil {
			stored.WasAlreadyProcessed = true
			return stored, nil
		}
		return &ProcessingResult{WasAlreadyProcessed: true}, nil
	}

	result, err := handler(ctx)
	if err != nil {
		if relErr := c.Release(ctx, eventID); relErr != nil {
			logctx.FromCtx(ctx, c.log).Errorw("failed to release webhook lock after handler error",
				"event_id", eventID, "err", relErr)
		}
		return nil, err
	}

	if shouldCommit != nil && !shouldCommit(result) {
		if relErr := c.Release(ctx, eventID); relErr != nil {
			logctx.FromCtx(ctx, c.log).Errorw("failed to release webhook lock after transient outcome",
				"event_id", eventID, "err", relErr)
		}
		return result, nil
	}

	if err := c.Commit(ctx, eventID, eventType, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) lockRow(eventID, eventType string) (*models.WebhookEvent, error) {
	raw, err := json.Marshal(lockMarker{Locked: true, LockedAtMs: c.now().UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock marker: %w", err)
	}
	return &models.WebhookEvent{
		EventID:          eventID,
		EventType:        eventType,
		ProcessingResult: datatypes.JSON(raw),
	}, nil
}

// parseFinalResult returns the stored outcome when the payload is a final
// result rather than a lock marker.
func parseFinalResult(raw datatypes.JSON) *ProcessingResult {
	if len(raw) == 0 {
		return nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	if _, ok := probe["success"]; !ok {
		if _, ok := probe["terminal"]; !ok {
			return nil
		}
	}
	var res ProcessingResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil
	}
	return &res
}
