package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/quality"
	"github.com/Strob0t/forgetop/internal/port/broadcast"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
	"github.com/Strob0t/forgetop/internal/port/summary"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ control.Sink          = (*fakeSink)(nil)
	_ control.AckSource     = (*fakeAcks)(nil)
	_ summary.Source        = (*fakeSource)(nil)
	_ feed.Feed             = (*fakeFeed)(nil)
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("intent-%d", n)
	}
}

func ptr[T any](v T) *T { return &v }

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	m.events = append(m.events, eventType)
	m.mu.Unlock()
}

type fakeSink struct {
	mu   sync.Mutex
	sent []control.Intent
	err  error
}

func (s *fakeSink) Send(_ context.Context, in control.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, in)
	return nil
}

type fakeSource struct {
	budget  *cost.Budget
	quality *quality.Summary
	err     error
}

func (s *fakeSource) Cost(context.Context, cost.Period) (*cost.Budget, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.budget == nil {
		return nil, summary.ErrUnavailable
	}
	return s.budget, nil
}

func (s *fakeSource) Quality(context.Context) (*quality.Summary, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.quality == nil {
		return nil, summary.ErrUnavailable
	}
	return s.quality, nil
}

// fakeFeed hands its handler to the test once subscribed.
type fakeFeed struct {
	handlers chan feed.Handler
}

func newFakeFeed() *fakeFeed { return &fakeFeed{handlers: make(chan feed.Handler, 1)} }

func (f *fakeFeed) Subscribe(_ context.Context, h feed.Handler) (func(), error) {
	f.handlers <- h
	return func() {}, nil
}

type fakeAcks struct {
	handlers chan control.AckHandler
}

func newFakeAcks() *fakeAcks { return &fakeAcks{handlers: make(chan control.AckHandler, 1)} }

func (a *fakeAcks) SubscribeAcks(_ context.Context, h control.AckHandler) (func(), error) {
	a.handlers <- h
	return func() {}, nil
}
