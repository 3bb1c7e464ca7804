package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a manually advanced Clock. Sleep returns immediately after
// recording the duration and moving the clock forward.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
	sleeps []time.Duration
}

type mockTimer struct {
	mock   *Mock
	at     time.Time
	f      func()
	active bool
}

func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Sleep(d time.Duration) {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	m.mu.Unlock()
	m.Advance(d)
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{mock: m, at: m.now.Add(d), f: f, active: true}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due, in
// deadline order, on the calling goroutine.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []*mockTimer
	for _, t := range m.timers {
		if t.active && !t.at.After(m.now) {
			t.active = false
			due = append(due, t)
		}
	}
	m.compact()
	m.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Set jumps to an absolute instant without firing timers.
func (m *Mock) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Pending returns the number of armed timers.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if t.active {
			n++
		}
	}
	return n
}

// NextDeadline reports the earliest armed timer deadline.
func (m *Mock) NextDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range m.timers {
		if t.active && (!found || t.at.Before(next)) {
			next = t.at
			found = true
		}
	}
	return next, found
}

func (m *Mock) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}

func (m *Mock) compact() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.active {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}
