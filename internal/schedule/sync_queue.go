package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"trip-planner-service/internal/domain"
	"trip-planner-service/internal/platform/obs"
	"trip-planner-service/internal/ports"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ErrDrainInFlight means a drain for the device is already running.
var ErrDrainInFlight = errors.New("sync drain already in flight for device")

// SyncQueue is the durable, ordered log of mutations produced while offline.
//
// Mutations replay strictly in enqueue order through the conflict resolver
// when connectivity resumes. A rejection halts replay for that entity only;
// mutations touching unrelated entities continue. Entries persist across
// restarts until applied or permanently rejected.
type SyncQueue struct {
	queue    ports.MutationQueueRepository
	events   ports.EventRepository
	resolver *Resolver
	manager  *Manager

	mu       sync.Mutex
	draining map[string]*atomic.Bool
}

// DrainReport summarizes one replay run.
type DrainReport struct {
	Applied    int
	Conflicted int
	Rejected   int
	Skipped    int
}

func NewSyncQueue(queue ports.MutationQueueRepository, events ports.EventRepository, resolver *Resolver, manager *Manager) *SyncQueue {
	return &SyncQueue{
		queue:    queue,
		events:   events,
		resolver: resolver,
		manager:  manager,
		draining: make(map[string]*atomic.Bool),
	}
}

// Enqueue appends a mutation in device-local order.
func (q *SyncQueue) Enqueue(ctx context.Context, m *domain.PendingMutation) error {
	if m.DeviceID == "" {
		return &domain.ValidationError{Field: "device_id", Reason: "required"}
	}
	if m.IdempotencyKey == uuid.Nil {
		return &domain.ValidationError{Field: "idempotency_key", Reason: "required"}
	}
	switch m.Kind {
	case domain.MutationCreate, domain.MutationUpdate, domain.MutationDelete:
	default:
		return &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", m.Kind)}
	}

	m.Status = domain.MutationPending
	if err := q.queue.Append(ctx, m); err != nil {
		return fmt.Errorf("enqueue mutation: %w", err)
	}
	return nil
}

// Drain replays the device's pending mutations in enqueue order.
//
// A mutation whose idempotency key is already recorded as applied is counted
// Applied without re-execution. The first rejection for an entity halts later
// mutations for that entity; other entities proceed. Only one drain per
// device runs at a time.
func (q *SyncQueue) Drain(ctx context.Context, deviceID string) (_ *DrainReport, err error) {
	defer obs.Time(ctx, "sync.Drain")(&err)

	flag := q.drainFlag(deviceID)
	if !flag.CompareAndSwap(false, true) {
		return nil, ErrDrainInFlight
	}
	defer flag.Store(false)

	muts, err := q.queue.ListPending(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("drain: list pending: %w", err)
	}

	report := &DrainReport{}
	halted := make(map[uuid.UUID]struct{})

	for _, m := range muts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if _, ok := halted[m.EventID]; ok {
			report.Skipped++
			continue
		}

		// Idempotent replay: a key the store already applied is done.
		if status, known, err := q.queue.StatusByKey(ctx, m.IdempotencyKey); err != nil {
			return report, fmt.Errorf("drain: idempotency lookup: %w", err)
		} else if known && status == domain.MutationApplied {
			if err := q.queue.MarkStatus(ctx, m.LocalID, domain.MutationApplied); err != nil {
				return report, fmt.Errorf("drain: mark applied: %w", err)
			}
			report.Applied++
			continue
		}

		outcome, err := q.apply(ctx, m)
		if err != nil {
			return report, err
		}

		switch outcome.Status {
		case MergeApplied:
			if err := q.queue.MarkStatus(ctx, m.LocalID, domain.MutationApplied); err != nil {
				return report, fmt.Errorf("drain: mark applied: %w", err)
			}
			report.Applied++
		case MergeConflicted:
			// The conflict is recorded on the event for manual resolution;
			// the mutation itself is consumed.
			if err := q.queue.MarkStatus(ctx, m.LocalID, domain.MutationApplied); err != nil {
				return report, fmt.Errorf("drain: mark conflicted: %w", err)
			}
			report.Conflicted++
		case MergeRejected:
			if err := q.queue.MarkStatus(ctx, m.LocalID, domain.MutationRejected); err != nil {
				return report, fmt.Errorf("drain: mark rejected: %w", err)
			}
			report.Rejected++
			halted[m.EventID] = struct{}{}
		}
	}
	return report, nil
}

// apply runs one mutation through the resolver inside the plan's serialized
// mutation stream.
func (q *SyncQueue) apply(ctx context.Context, m *domain.PendingMutation) (MergeOutcome, error) {
	unlock := q.manager.lockPlan(m.PlanID)
	defer unlock()

	server, err := q.events.Get(ctx, m.EventID)
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("drain: load server event: %w", err)
	}

	outcome, err := q.resolver.Merge(ctx, m, server)
	if err != nil {
		return MergeOutcome{}, fmt.Errorf("drain: merge: %w", err)
	}
	return outcome, nil
}

func (q *SyncQueue) drainFlag(deviceID string) *atomic.Bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	flag, ok := q.draining[deviceID]
	if !ok {
		flag = atomic.NewBool(false)
		q.draining[deviceID] = flag
	}
	return flag
}
