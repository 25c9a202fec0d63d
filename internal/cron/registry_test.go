package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	carts := &stubJob{name: "stale-cart-cleanup"}
	outbox := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(carts, nil, outbox)

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != carts || jobs[1] != outbox {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryReplacesDuplicateName(t *testing.T) {
	first := &stubJob{name: "outbox-retention"}
	second := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(first, &stubJob{name: "notification-cleanup"})
	registry.Register(second)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != second {
		t.Fatalf("expected replacement to keep the original slot")
	}
}

func TestRegistryOnly(t *testing.T) {
	registry := NewRegistry(
		&stubJob{name: "stale-cart-cleanup"},
		&stubJob{name: "outbox-retention"},
		&stubJob{name: "notification-cleanup"},
	)

	all, err := registry.Only()
	if err != nil || len(all.Jobs()) != 3 {
		t.Fatalf("expected every job, got %v (%v)", all.Jobs(), err)
	}

	narrowed, err := registry.Only(" notification-cleanup", "stale-cart-cleanup", "")
	if err != nil {
		t.Fatalf("only: %v", err)
	}
	jobs := narrowed.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "stale-cart-cleanup" || jobs[1].Name() != "notification-cleanup" {
		t.Fatalf("unexpected narrowed jobs %v", jobs)
	}

	if _, err := registry.Only("menu-sync"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}
