package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chani337/selfstar/internal/config"
	"github.com/chani337/selfstar/internal/domain"
)

func TestSnapshotTick_VisitsEveryLinkedPersona(t *testing.T) {
	db := newSchedulerDB(t)
	seedTarget(t, db, 1, "ig_1")
	seedTarget(t, db, 2, "ig_2")

	var visited []string
	loop := &SnapshotLoop{
		DB:  db,
		Cfg: config.SchedulerConfig{SnapshotInterval: time.Hour, SnapshotPersonaLimit: 200},
		Snapshot: func(ctx context.Context, p domain.Persona) error {
			visited = append(visited, fmt.Sprintf("%d/%d", p.UserID, p.PersonaNum))
			return nil
		},
	}

	loop.tick(context.Background())

	if len(visited) != 2 {
		t.Fatalf("visited %d personas, want 2: %v", len(visited), visited)
	}
}

func TestSnapshotTick_PersonaFailureDoesNotAbortBatch(t *testing.T) {
	db := newSchedulerDB(t)
	seedTarget(t, db, 1, "ig_1")
	seedTarget(t, db, 2, "ig_2")

	calls := 0
	loop := &SnapshotLoop{
		DB:  db,
		Cfg: config.SchedulerConfig{SnapshotInterval: time.Hour, SnapshotPersonaLimit: 200},
		Snapshot: func(ctx context.Context, p domain.Persona) error {
			calls++
			if calls == 1 {
				return errors.New("token expired")
			}
			return nil
		},
	}

	loop.tick(context.Background())

	if calls != 2 {
		t.Fatalf("snapshot calls = %d; want 2 (failure must not abort the batch)", calls)
	}
}

func TestSnapshotTick_StopsOnCanceledContext(t *testing.T) {
	db := newSchedulerDB(t)
	seedTarget(t, db, 1, "ig_1")
	seedTarget(t, db, 2, "ig_2")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	loop := &SnapshotLoop{
		DB:  db,
		Cfg: config.SchedulerConfig{SnapshotInterval: time.Hour, SnapshotPersonaLimit: 200},
		Snapshot: func(ctx context.Context, p domain.Persona) error {
			calls++
			cancel()
			return nil
		},
	}

	loop.tick(ctx)

	if calls != 1 {
		t.Fatalf("snapshot calls = %d; want 1 after cancellation", calls)
	}
}

func TestSnapshotRun_ExitsOnCancel(t *testing.T) {
	db := newSchedulerDB(t)
	loop := &SnapshotLoop{
		DB:       db,
		Cfg:      config.SchedulerConfig{SnapshotInterval: time.Hour, SnapshotPersonaLimit: 10},
		Snapshot: func(ctx context.Context, p domain.Persona) error { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after cancel")
	}
}
