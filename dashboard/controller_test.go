package dashboard

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/twitch-dashboard/backend/chatters"
	"github.com/onnwee/twitch-dashboard/backend/twitchapi"
)

// sourceFunc adapts a function to Source.
type sourceFunc func(ctx context.Context, channel string) (*twitchapi.Chatters, error)

func (f sourceFunc) Fetch(ctx context.Context, channel string) (*twitchapi.Chatters, error) {
	return f(ctx, channel)
}

// scriptedSource replies with queued results in order.
type scriptedSource struct {
	mu      sync.Mutex
	results []result
	calls   []string
}

type result struct {
	res *twitchapi.Chatters
	err error
}

func (s *scriptedSource) push(snap chatters.Snapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.results = append(s.results, result{err: err})
		return
	}
	s.results = append(s.results, result{res: &twitchapi.Chatters{Count: snap.Total(), Snapshot: snap}})
}

func (s *scriptedSource) Fetch(_ context.Context, channel string) (*twitchapi.Chatters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, channel)
	if len(s.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.res, r.err
}

func newTestController(src Source, channel string) *Controller {
	return NewController(src, Options{
		Channel:     channel,
		AutoRefresh: true,
		Interval:    20 * time.Second,
		Clock:       clockwork.NewFakeClock(),
	})
}

func section(v View, cat chatters.Category) *chatters.Section {
	for i := range v.Sections {
		if v.Sections[i].Category == cat {
			return &v.Sections[i]
		}
	}
	return nil
}

func TestRefreshAcrossPolls(t *testing.T) {
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Viewers: {"a", "b"}}, nil)
	src.push(chatters.Snapshot{chatters.Viewers: {"a", "c"}}, nil)
	c := newTestController(src, "Chan")

	if got := c.View().CountLabel(); got != "?" {
		t.Errorf("CountLabel before first fetch = %q, want ?", got)
	}
	if c.Ready() {
		t.Error("Ready() before first fetch")
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	v := c.View()
	viewers := section(v, chatters.Viewers)
	if viewers == nil || len(viewers.New) != 0 || !reflect.DeepEqual(viewers.Returning, []string{"a", "b"}) {
		t.Fatalf("first poll viewers = %+v", viewers)
	}
	if v.CountLabel() != "2" {
		t.Errorf("CountLabel = %q, want 2", v.CountLabel())
	}
	if !c.Ready() {
		t.Error("Ready() false after fetch")
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	viewers = section(c.View(), chatters.Viewers)
	if viewers == nil {
		t.Fatal("second poll viewers missing")
	}
	if !reflect.DeepEqual(viewers.New, []string{"c"}) {
		t.Errorf("New = %v, want [c]", viewers.New)
	}
	if !reflect.DeepEqual(viewers.Returning, []string{"a"}) {
		t.Errorf("Returning = %v, want [a]", viewers.Returning)
	}
	if !reflect.DeepEqual(src.calls, []string{"Chan", "Chan"}) {
		t.Errorf("calls = %v", src.calls)
	}
}

func TestRefreshNoChannel(t *testing.T) {
	c := newTestController(&scriptedSource{}, "  ")
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrNoChannel) {
		t.Errorf("Refresh() error = %v, want ErrNoChannel", err)
	}
	if !c.Ready() {
		t.Error("idle dashboard should be ready")
	}
}

func TestFetchFailureKeepsLastSnapshot(t *testing.T) {
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Viewers: {"a", "b"}}, nil)
	src.push(nil, errors.New("upstream 503"))
	src.push(chatters.Snapshot{chatters.Viewers: {"a", "b", "c"}}, nil)
	c := newTestController(src, "chan")

	_ = c.Refresh(context.Background())
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	v := c.View()
	if v.LastError != "upstream 503" {
		t.Errorf("LastError = %q", v.LastError)
	}
	if viewers := section(v, chatters.Viewers); viewers == nil || len(viewers.Returning) != 2 {
		t.Errorf("snapshot lost after failure: %+v", viewers)
	}

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	v = c.View()
	if v.LastError != "" {
		t.Errorf("LastError not cleared: %q", v.LastError)
	}
	viewers := section(v, chatters.Viewers)
	if viewers == nil || !reflect.DeepEqual(viewers.New, []string{"c"}) {
		t.Errorf("viewers = %+v, want c new against last good snapshot", viewers)
	}
}

func TestRefreshInFlightGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := sourceFunc(func(ctx context.Context, channel string) (*twitchapi.Chatters, error) {
		close(entered)
		<-release
		return &twitchapi.Chatters{Count: 1, Snapshot: chatters.Snapshot{chatters.Viewers: {"a"}}}, nil
	})
	c := newTestController(src, "chan")

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()
	<-entered

	if !c.View().Loading {
		t.Error("View().Loading = false during fetch")
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrFetchInFlight) {
		t.Errorf("overlapping Refresh() error = %v, want ErrFetchInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Refresh() error = %v", err)
	}
	if c.View().Loading {
		t.Error("View().Loading still true after fetch")
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	src := sourceFunc(func(ctx context.Context, channel string) (*twitchapi.Chatters, error) {
		entered <- struct{}{}
		if channel == "old" {
			<-release
			return &twitchapi.Chatters{Count: 1, Snapshot: chatters.Snapshot{chatters.Viewers: {"old-viewer"}}}, nil
		}
		return &twitchapi.Chatters{Count: 1, Snapshot: chatters.Snapshot{chatters.Viewers: {"new-viewer"}}}, nil
	})
	c := newTestController(src, "old")

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()
	<-entered

	if !c.SetChannel("new") {
		t.Fatal("SetChannel reported no change")
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("Refresh() error = %v, want ErrStaleResponse", err)
	}
	v := c.View()
	if v.Channel != "new" || v.Count != nil || len(v.Sections) != 0 {
		t.Errorf("stale response leaked into view: %+v", v)
	}

	// the stale fetch released the in-flight flag, so the new channel can fetch
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() for new channel error = %v", err)
	}
	viewers := section(c.View(), chatters.Viewers)
	if viewers == nil || !reflect.DeepEqual(viewers.Returning, []string{"new-viewer"}) || len(viewers.New) != 0 {
		t.Errorf("viewers = %+v", viewers)
	}
}

func TestSetChannelResetsBaseline(t *testing.T) {
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Viewers: {"a"}}, nil)
	src.push(chatters.Snapshot{chatters.Viewers: {"x", "y"}}, nil)
	c := newTestController(src, "first")
	_ = c.Refresh(context.Background())

	if !c.SetChannel("second") {
		t.Fatal("SetChannel reported no change")
	}
	if v := c.View(); v.Count != nil || v.LastUpdated != nil {
		t.Errorf("view not reset: %+v", v)
	}
	_ = c.Refresh(context.Background())

	viewers := section(c.View(), chatters.Viewers)
	if viewers == nil || len(viewers.New) != 0 || len(viewers.Returning) != 2 {
		t.Errorf("first poll after switch should have no new accounts: %+v", viewers)
	}
}

func TestSetChannelSameIgnoringCase(t *testing.T) {
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Viewers: {"a"}}, nil)
	c := newTestController(src, "Streamer")
	_ = c.Refresh(context.Background())

	if c.SetChannel(" streamer ") {
		t.Error("capitalization change reported as channel switch")
	}
	v := c.View()
	if v.Channel != "streamer" {
		t.Errorf("Channel = %q, want streamer", v.Channel)
	}
	if v.Count == nil {
		t.Error("snapshot dropped on capitalization change")
	}
}

func TestSetChannelWakesScheduler(t *testing.T) {
	c := newTestController(&scriptedSource{}, "")
	c.SetChannel("someone")
	select {
	case <-c.kick:
	default:
		t.Error("SetChannel did not request an immediate fetch")
	}

	c.SetChannel("")
	select {
	case <-c.kick:
		t.Error("clearing the channel should not request a fetch")
	default:
	}
}

func TestSetAutoRefresh(t *testing.T) {
	c := newTestController(&scriptedSource{}, "chan")
	c.SetAutoRefresh(false)
	if c.AutoRefresh() {
		t.Error("AutoRefresh() = true after disabling")
	}
	select {
	case <-c.kick:
		t.Error("disabling should not request a fetch")
	default:
	}
	c.SetAutoRefresh(true)
	if !c.View().AutoRefresh {
		t.Error("View().AutoRefresh = false after enabling")
	}
	select {
	case <-c.kick:
	default:
		t.Error("enabling should request a fetch")
	}
}

func TestSubscribe(t *testing.T) {
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Moderators: {"mod"}}, nil)
	c := newTestController(src, "chan")

	updates, cancel := c.Subscribe()
	defer cancel()

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	// only the latest view is kept for a subscriber that has not read yet
	v := <-updates
	if v.Loading {
		t.Error("latest view should not be loading")
	}
	if m := section(v, chatters.Moderators); m == nil || !reflect.DeepEqual(m.Returning, []string{"mod"}) {
		t.Errorf("moderators = %+v", m)
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Error("channel not closed after unsubscribe")
	}
	cancel()
}

func TestLargeViewersTruncatedInView(t *testing.T) {
	var many []string
	for i := 0; i < 150; i++ {
		many = append(many, "viewer"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	src := &scriptedSource{}
	src.push(chatters.Snapshot{chatters.Viewers: many}, nil)
	src.push(chatters.Snapshot{chatters.Viewers: append(append([]string(nil), many...), "newbie")}, nil)
	c := newTestController(src, "big")

	_ = c.Refresh(context.Background())
	if v := c.View(); section(v, chatters.Viewers) != nil {
		t.Errorf("large viewers list without new accounts should be hidden: %+v", v.Sections)
	}

	_ = c.Refresh(context.Background())
	v := c.View()
	viewers := section(v, chatters.Viewers)
	if viewers == nil || !viewers.Truncated || !reflect.DeepEqual(viewers.New, []string{"newbie"}) || len(viewers.Returning) != 0 {
		t.Errorf("viewers = %+v", viewers)
	}
	if !v.Truncated() {
		t.Error("View().Truncated() = false")
	}
}

func TestChannelSwitchCancelsRunningFetch(t *testing.T) {
	var active, peak atomic.Int32
	entered := make(chan string, 4)
	src := sourceFunc(func(ctx context.Context, channel string) (*twitchapi.Chatters, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		entered <- channel
		if channel == "old" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &twitchapi.Chatters{Count: 1, Snapshot: chatters.Snapshot{chatters.Viewers: {"a"}}}, nil
	})
	c := newTestController(src, "old")

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()
	if got := <-entered; got != "old" {
		t.Fatalf("first fetch for %q", got)
	}

	start := time.Now()
	c.SetChannel("new")
	// Either refused while the old fetch drains, or run after it finished.
	if err := c.Refresh(context.Background()); err != nil && !errors.Is(err, ErrFetchInFlight) {
		t.Fatalf("Refresh() for new channel error = %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrStaleResponse) {
			t.Errorf("old Refresh() error = %v, want ErrStaleResponse", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("old fetch was not canceled by the channel switch")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("old fetch took %v to stop", elapsed)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent fetches = %d, want 1", p)
	}
	if v := c.View(); v.LastError != "" || v.Loading {
		t.Errorf("canceled fetch leaked into view: %+v", v)
	}
}

func TestToggleAutoRefresh(t *testing.T) {
	c := newTestController(&scriptedSource{}, "chan")
	if got := c.ToggleAutoRefresh(); got {
		t.Errorf("ToggleAutoRefresh() = %v, want false", got)
	}
	if got := c.ToggleAutoRefresh(); !got {
		t.Errorf("ToggleAutoRefresh() = %v, want true", got)
	}

	// an even number of concurrent toggles always lands back on the start value
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ToggleAutoRefresh()
		}()
	}
	wg.Wait()
	if !c.AutoRefresh() {
		t.Error("concurrent toggles lost an update")
	}
}
