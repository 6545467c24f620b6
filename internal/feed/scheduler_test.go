package feed

import (
	"testing"
	"time"
)

func TestSchedulerStartStop(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	sched := NewScheduler(svc, nil, time.Minute)
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop()

	next := sched.NextTick()
	if next == nil {
		t.Fatalf("no tick scheduled after start")
	}
	if until := time.Until(*next); until <= 0 || until > time.Minute+time.Second {
		t.Errorf("next tick in %s, want within one minute", until)
	}
}

func TestSchedulerNextTickBeforeStart(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	sched := NewScheduler(svc, nil, time.Minute)
	if next := sched.NextTick(); next != nil {
		t.Errorf("NextTick = %v before start, want nil", next)
	}
}
