package retention

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockDeleter struct {
	mu      sync.Mutex
	calls   []time.Time
	deleted int64
	err     error
}

func (m *mockDeleter) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, before)
	return m.deleted, m.err
}

func (m *mockDeleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type countingCollector struct {
	deleted []int64
}

func (c *countingCollector) RecordContactSubmission(string)     {}
func (c *countingCollector) RecordContactStatusUpdate(string)   {}
func (c *countingCollector) RecordAuthAttempt(string, string)   {}
func (c *countingCollector) RecordCallback(string)              {}
func (c *countingCollector) RecordHTTPStatus(int)               {}
func (c *countingCollector) RecordRequestLatency(time.Duration) {}
func (c *countingCollector) RecordRetentionDeleted(n int64)     { c.deleted = append(c.deleted, n) }

// waitForCalls はリポジトリがn回以上呼ばれるまで待つ。
func waitForCalls(t *testing.T, repo *mockDeleter, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for repo.callCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("DeleteClosedBefore calls = %d, want >= %d within %v", repo.callCount(), n, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestJob_Run_DeletesBeforeCutoff(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{deleted: 4}
	collector := &countingCollector{}
	job := NewJob(repo, newTestLogger(&buf), collector, 90)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}
	want := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	if len(repo.calls) != 1 || !repo.calls[0].Equal(want) {
		t.Errorf("cutoffs = %v, want [%v]", repo.calls, want)
	}
	if len(collector.deleted) != 1 || collector.deleted[0] != 4 {
		t.Errorf("recorded deletions = %v, want [4]", collector.deleted)
	}
	if !strings.Contains(buf.String(), `"deleted_count":4`) {
		t.Errorf("log should contain deleted_count, got %s", buf.String())
	}
}

func TestJob_Run_Disabled(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{}
	job := NewJob(repo, newTestLogger(&buf), nil, 0)

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if n := repo.callCount(); n != 0 {
		t.Errorf("repository calls = %d, want 0 when disabled", n)
	}
}

func TestJob_Run_RepositoryError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{err: errors.New("connection reset")}
	collector := &countingCollector{}
	job := NewJob(repo, newTestLogger(&buf), collector, 30)

	_, err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Run() error = %v, want wrapped repository error", err)
	}
	if len(collector.deleted) != 0 {
		t.Errorf("recorded deletions = %v, want none", collector.deleted)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("log should contain an ERROR entry, got %s", buf.String())
	}
}

func TestJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{}
	job := NewJob(repo, newTestLogger(&buf), nil, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	waitForCalls(t, repo, 1, time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestJob_Start_RepeatsOnInterval(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{err: errors.New("transient")}
	job := NewJob(repo, newTestLogger(&buf), nil, 30)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go job.Start(ctx, 20*time.Millisecond)

	// 失敗しても次の周期で再実行される
	waitForCalls(t, repo, 3, 2*time.Second)
}
