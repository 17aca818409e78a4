package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
)

// fakeInferrer answers based on the instruction, which fakePolicy sets to
// the item's relative path.
type fakeInferrer struct {
	mu    sync.Mutex
	calls map[string]int
	reply func(relPath string, attempt int) (string, error)
}

func (f *fakeInferrer) Infer(_ context.Context, req chat.Request) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req.Instruction]++
	attempt := f.calls[req.Instruction]
	f.mu.Unlock()
	return f.reply(req.Instruction, attempt)
}

func (f *fakeInferrer) callsFor(relPath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[relPath]
}

func (f *fakeInferrer) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakePolicy struct {
	mu       sync.Mutex
	applied  map[string]int
	applyErr error
}

func (p *fakePolicy) Name() string                                 { return "fake" }
func (p *fakePolicy) Instruction(item filehandler.WorkItem) string { return item.RelPath }
func (p *fakePolicy) Shape() chat.Shape                            { return chat.Shape{MaxTokens: 10} }

func (p *fakePolicy) Parse(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, chat.RetryableFailure("not a number", err)
	}
	return n, nil
}

func (p *fakePolicy) Apply(_ context.Context, item filehandler.WorkItem, _ int) (bool, error) {
	if p.applyErr != nil {
		return false, p.applyErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applied == nil {
		p.applied = make(map[string]int)
	}
	p.applied[item.RelPath]++
	return true, nil
}

func (p *fakePolicy) appliedCount(relPath string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applied[relPath]
}

func makeItems(t *testing.T, n int) []filehandler.WorkItem {
	t.Helper()
	dir := t.TempDir()
	items := make([]filehandler.WorkItem, n)
	for i := range items {
		rel := fmt.Sprintf("img_%03d.jpg", i)
		path := filepath.Join(dir, rel)
		if err := os.WriteFile(path, []byte("jpeg-ish"), 0o644); err != nil {
			t.Fatal(err)
		}
		items[i] = filehandler.WorkItem{Path: path, RelPath: rel}
	}
	return items
}

func newScheduler(t *testing.T, inf Inferrer, pol Policy[int], workers, retries int) *Scheduler[int] {
	t.Helper()
	s, err := New[int](inf, pol, Options{Workers: workers, MaxRetries: retries, Backoff: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	if _, err := New[int](&fakeInferrer{}, &fakePolicy{}, Options{Workers: 0}); err == nil {
		t.Error("expected error for zero workers")
	}
	if _, err := New[int](&fakeInferrer{}, &fakePolicy{}, Options{Workers: 1, MaxRetries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
	s, err := New[int](&fakeInferrer{}, &fakePolicy{}, Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if s.Counters() == nil {
		t.Error("Counters() = nil, want default counters")
	}
}

func TestRun_ExactlyOneResultPerItem(t *testing.T) {
	items := makeItems(t, 40)

	for _, workers := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			inf := &fakeInferrer{reply: func(rel string, attempt int) (string, error) {
				switch {
				case rel[len(rel)-5] == '3': // every tenth item: 4xx
					return "", &chat.FailureError{Kind: chat.Fatal, StatusCode: 400, Reason: "rejected"}
				case rel[len(rel)-5] == '7' && attempt == 1: // first attempt flakes
					return "", chat.RetryableFailure("endpoint error", nil)
				default:
					return "42", nil
				}
			}}
			pol := &fakePolicy{}
			s := newScheduler(t, inf, pol, workers, 2)

			results := s.Run(context.Background(), slices.Values(items))

			if len(results) != len(items) {
				t.Fatalf("got %d results, want %d", len(results), len(items))
			}
			seen := make(map[string]int)
			for _, r := range results {
				seen[r.Item.RelPath]++
			}
			for _, item := range items {
				if seen[item.RelPath] != 1 {
					t.Errorf("%s has %d results, want 1", item.RelPath, seen[item.RelPath])
				}
			}

			snap := s.Counters().Snapshot()
			if snap.Completed() != int64(len(items)) {
				t.Errorf("succeeded+failed = %d, want %d", snap.Completed(), len(items))
			}
			if snap.Dispatched != int64(len(items)) {
				t.Errorf("dispatched = %d, want %d", snap.Dispatched, len(items))
			}
			if snap.Failed != 4 {
				t.Errorf("failed = %d, want 4", snap.Failed)
			}

			for _, r := range results {
				wantApplied := 1
				if !r.Succeeded() {
					wantApplied = 0
				}
				if got := pol.appliedCount(r.Item.RelPath); got != wantApplied {
					t.Errorf("%s applied %d times, want %d", r.Item.RelPath, got, wantApplied)
				}
			}
		})
	}
}

func TestRun_RetryBoundExhausted(t *testing.T) {
	items := makeItems(t, 1)
	original, _ := os.ReadFile(items[0].Path)

	inf := &fakeInferrer{reply: func(string, int) (string, error) {
		return "", chat.RetryableFailure("endpoint error", nil)
	}}
	pol := &fakePolicy{}
	s := newScheduler(t, inf, pol, 1, 2)

	results := s.Run(context.Background(), slices.Values(items))
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Status != StatusFailed || r.Outcome != chat.Retryable {
		t.Errorf("status/outcome = %v/%v, want failed/retryable", r.Status, r.Outcome)
	}
	if r.Attempts != 3 || inf.callsFor(items[0].RelPath) != 3 {
		t.Errorf("attempts = %d (calls %d), want 3", r.Attempts, inf.callsFor(items[0].RelPath))
	}
	if r.SideEffectApplied || pol.appliedCount(items[0].RelPath) != 0 {
		t.Error("side effect applied on exhausted retries")
	}
	if now, _ := os.ReadFile(items[0].Path); string(now) != string(original) {
		t.Error("original file changed")
	}
}

func TestRun_MalformedOutputIsRetried(t *testing.T) {
	items := makeItems(t, 1)
	inf := &fakeInferrer{reply: func(_ string, attempt int) (string, error) {
		if attempt < 3 {
			return "looks great!", nil
		}
		return "77", nil
	}}
	s := newScheduler(t, inf, &fakePolicy{}, 1, 2)

	r := s.Run(context.Background(), slices.Values(items))[0]
	if !r.Succeeded() || r.Payload != 77 || r.Attempts != 3 {
		t.Errorf("result = %+v, want success with payload 77 after 3 attempts", r)
	}
}

func TestRun_ZeroRetries(t *testing.T) {
	items := makeItems(t, 1)
	inf := &fakeInferrer{reply: func(string, int) (string, error) {
		return "", chat.RetryableFailure("timeout", nil)
	}}
	s := newScheduler(t, inf, &fakePolicy{}, 1, 0)

	r := s.Run(context.Background(), slices.Values(items))[0]
	if r.Attempts != 1 || r.Status != StatusFailed {
		t.Errorf("attempts/status = %d/%v, want 1/failed", r.Attempts, r.Status)
	}
}

func TestRun_FatalIsNotRetried(t *testing.T) {
	items := makeItems(t, 1)
	inf := &fakeInferrer{reply: func(string, int) (string, error) {
		return "", &chat.FailureError{Kind: chat.Fatal, StatusCode: 400, Reason: "bad image"}
	}}
	s := newScheduler(t, inf, &fakePolicy{}, 1, 5)

	r := s.Run(context.Background(), slices.Values(items))[0]
	if r.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", r.Attempts)
	}
	if r.Outcome != chat.Fatal || r.Status != StatusFailed {
		t.Errorf("outcome/status = %v/%v", r.Outcome, r.Status)
	}
	var fe *chat.FailureError
	if !errors.As(r.Err, &fe) || fe.StatusCode != 400 {
		t.Errorf("Err = %v, want the 400 FailureError", r.Err)
	}
}

func TestRun_SideEffectErrorIsRecorded(t *testing.T) {
	items := makeItems(t, 3)
	inf := &fakeInferrer{reply: func(string, int) (string, error) { return "10", nil }}
	pol := &fakePolicy{applyErr: os.ErrPermission}
	s := newScheduler(t, inf, pol, 2, 2)

	results := s.Run(context.Background(), slices.Values(items))
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		var se *SideEffectError
		if !errors.As(r.Err, &se) || !errors.Is(r.Err, os.ErrPermission) {
			t.Errorf("%s: Err = %v, want SideEffectError wrapping permission error", r.Item.RelPath, r.Err)
		}
		if r.Status != StatusFailed || r.Outcome != chat.Success || r.Attempts != 1 {
			t.Errorf("%s: status/outcome/attempts = %v/%v/%d", r.Item.RelPath, r.Status, r.Outcome, r.Attempts)
		}
	}
	if got := s.Counters().Snapshot().Failed; got != 3 {
		t.Errorf("failed = %d, want 3", got)
	}
}

func TestRun_UnreadableFileIsFatal(t *testing.T) {
	items := []filehandler.WorkItem{{Path: filepath.Join(t.TempDir(), "gone.jpg"), RelPath: "gone.jpg"}}
	inf := &fakeInferrer{reply: func(string, int) (string, error) { return "1", nil }}
	s := newScheduler(t, inf, &fakePolicy{}, 1, 2)

	r := s.Run(context.Background(), slices.Values(items))[0]
	if r.Outcome != chat.Fatal || r.Attempts != 0 {
		t.Errorf("outcome/attempts = %v/%d, want fatal/0", r.Outcome, r.Attempts)
	}
	if inf.totalCalls() != 0 {
		t.Error("endpoint called for an unreadable file")
	}
}

func TestRun_CancelFinishesInFlightAndStopsDispatch(t *testing.T) {
	items := makeItems(t, 10)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	inf := &fakeInferrer{reply: func(string, int) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return "55", nil
	}}
	pol := &fakePolicy{}
	s := newScheduler(t, inf, pol, 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []Result[int])
	go func() { done <- s.Run(ctx, slices.Values(items)) }()

	<-started
	cancel()
	close(release)

	var results []Result[int]
	select {
	case results = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if inf.totalCalls() != 1 {
		t.Errorf("endpoint called %d times, want 1", inf.totalCalls())
	}
	if len(results) == 0 || len(results) >= len(items) {
		t.Fatalf("got %d results, want between 1 and %d", len(results), len(items)-1)
	}

	var succeeded, canceled int
	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			succeeded++
			if pol.appliedCount(r.Item.RelPath) != 1 {
				t.Errorf("in-flight item %s not applied", r.Item.RelPath)
			}
		case StatusCanceled:
			canceled++
			if r.Attempts != 0 || pol.appliedCount(r.Item.RelPath) != 0 {
				t.Errorf("canceled item %s was attempted or applied", r.Item.RelPath)
			}
		default:
			t.Errorf("unexpected status %v for %s", r.Status, r.Item.RelPath)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}

	snap := s.Counters().Snapshot()
	if snap.Dispatched != int64(len(results)) || snap.Completed() != int64(len(results)) {
		t.Errorf("counters %+v do not match %d results", snap, len(results))
	}
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	items := makeItems(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	inf := &fakeInferrer{reply: func(string, int) (string, error) {
		calls.Add(1)
		cancel()
		return "", chat.RetryableFailure("endpoint error", nil)
	}}
	pol := &fakePolicy{}
	s, err := New[int](inf, pol, Options{Workers: 1, MaxRetries: 5, Backoff: time.Hour})
	if err != nil {
		t.Fatal(err)
	}

	results := s.Run(ctx, slices.Values(items))
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != StatusCanceled || r.Attempts != 1 || calls.Load() != 1 {
		t.Errorf("status/attempts/calls = %v/%d/%d, want canceled/1/1", r.Status, r.Attempts, calls.Load())
	}
	if r.Outcome != chat.Retryable {
		t.Errorf("outcome = %v, want retryable", r.Outcome)
	}
	if pol.appliedCount(items[0].RelPath) != 0 {
		t.Error("side effect applied for canceled item")
	}
}
