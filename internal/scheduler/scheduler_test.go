package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogBuffer is a bytes.Buffer that can be used to capture log output.
type TestLogBuffer struct {
	mu sync.Mutex
	bytes.Buffer
}

func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.String()
}

// NewTestSlogger creates a new *slog.Logger that writes to a TestLogBuffer.
func NewTestSlogger() (*slog.Logger, *TestLogBuffer) {
	var buf TestLogBuffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func schedulers(logger *slog.Logger) map[string]Scheduler {
	return map[string]Scheduler{
		NameThread: NewThreadScheduler(logger),
		NameTask:   NewTaskScheduler(logger),
	}
}

func waitDone(t *testing.T, u Unit) {
	t.Helper()
	select {
	case <-u.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("unit did not finish")
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name     string
		want     any
		hasError bool
	}{
		{"thread", &ThreadScheduler{}, false},
		{"", &ThreadScheduler{}, false},
		{" Task ", &TaskScheduler{}, false},
		{"fiber", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ByName(tt.name, nil)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestSpawn_RunsWork(t *testing.T) {
	for name, s := range schedulers(nil) {
		t.Run(name, func(t *testing.T) {
			ran := make(chan struct{})
			u := s.Spawn(context.Background(), func(ctx context.Context) {
				close(ran)
			})
			waitDone(t, u)
			select {
			case <-ran:
			default:
				t.Fatal("work did not run")
			}
		})
	}
}

func TestStop_CancelsWithoutJoining(t *testing.T) {
	logger, buf := NewTestSlogger()
	for name, s := range schedulers(logger) {
		t.Run(name, func(t *testing.T) {
			cancelled := make(chan struct{})
			release := make(chan struct{})
			u := s.Spawn(context.Background(), func(ctx context.Context) {
				<-ctx.Done()
				close(cancelled)
				<-release
			})

			s.Stop([]Unit{u})

			select {
			case <-cancelled:
			case <-time.After(2 * time.Second):
				t.Fatal("unit context was not cancelled")
			}
			select {
			case <-u.Done():
				t.Fatal("work should still be running: Stop must not join")
			default:
			}

			close(release)
			waitDone(t, u)

			// finished units are skipped
			s.Stop([]Unit{u, nil})
		})
	}
	assert.Contains(t, buf.String(), `"count":1`)
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}

func TestSpawn_ParentContextCancels(t *testing.T) {
	for name, s := range schedulers(nil) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			u := s.Spawn(ctx, func(ctx context.Context) { <-ctx.Done() })
			cancel()
			waitDone(t, u)
		})
	}
}

func TestQueue_FIFOAndEnd(t *testing.T) {
	for name, s := range schedulers(nil) {
		t.Run(name, func(t *testing.T) {
			q := s.NewQueue()
			ctx := context.Background()
			boom := errors.New("boom")

			require.NoError(t, q.Push(ctx, FrameItem([]byte("a"))))
			require.NoError(t, q.Push(ctx, DoneItem()))
			require.NoError(t, q.Push(ctx, ErrItem(boom)))
			require.NoError(t, q.Push(ctx, FrameItem([]byte("b"))))
			require.NoError(t, q.Push(ctx, EndItem()))

			var kinds []ItemKind
			for {
				it, err := q.Pop(ctx)
				require.NoError(t, err)
				kinds = append(kinds, it.Kind)
				if it.Kind == ItemErr {
					assert.Equal(t, boom, it.Err)
				}
				if it.Kind == ItemEnd {
					break
				}
			}
			assert.Equal(t, []ItemKind{ItemFrame, ItemDone, ItemErr, ItemFrame, ItemEnd}, kinds)
		})
	}
}

func TestQueue_ManyProducersKeepPerProducerOrder(t *testing.T) {
	for name, s := range schedulers(nil) {
		t.Run(name, func(t *testing.T) {
			q := s.NewQueue()
			ctx := context.Background()
			const producers, perProducer = 4, 200

			for p := 0; p < producers; p++ {
				p := p
				s.Spawn(ctx, func(ctx context.Context) {
					for i := 0; i < perProducer; i++ {
						_ = q.Push(ctx, FrameItem([]byte{byte(p), byte(i)}))
					}
					_ = q.Push(ctx, DoneItem())
				})
			}

			last := map[byte]int{0: -1, 1: -1, 2: -1, 3: -1}
			done := 0
			for done < producers {
				it, err := q.Pop(ctx)
				require.NoError(t, err)
				if it.Kind == ItemDone {
					done++
					continue
				}
				p, i := it.Frame[0], int(it.Frame[1])
				assert.Equal(t, last[p]+1, i, "producer %d out of order", p)
				last[p] = i
			}
			for p := byte(0); p < producers; p++ {
				assert.Equal(t, perProducer-1, last[p])
			}
		})
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	for name, s := range schedulers(nil) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err := s.NewQueue().Pop(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestThreadQueue_Bounded(t *testing.T) {
	s := NewThreadScheduler(nil)
	s.QueueSize = 2
	q := s.NewQueue()

	require.NoError(t, q.Push(context.Background(), FrameItem(nil)))
	require.NoError(t, q.Push(context.Background(), FrameItem(nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Push(ctx, FrameItem(nil)), context.DeadlineExceeded)

	// End never blocks, even on a full queue, and is seen after the buffer drains
	require.NoError(t, q.Push(context.Background(), EndItem()))
	for _, want := range []ItemKind{ItemFrame, ItemFrame, ItemEnd} {
		it, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, it.Kind)
	}
}

func TestTaskQueue_Unbounded(t *testing.T) {
	q := NewTaskScheduler(nil).NewQueue().(*listQueue)
	for i := 0; i < 10000; i++ {
		require.NoError(t, q.Push(context.Background(), FrameItem(nil)))
	}
	assert.Equal(t, 10000, q.Len())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Push(cancelled, FrameItem(nil)), context.Canceled)
}

func TestPrepare(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	NewThreadScheduler(nil).Prepare(h)
	assert.Equal(t, "keep-alive", h.Get("Connection"))

	NewTaskScheduler(nil).Prepare(h)
	assert.Empty(t, h.Get("Connection"))
}

func TestTaskScheduler_Wait(t *testing.T) {
	s := NewTaskScheduler(nil)
	var mu sync.Mutex
	finished := 0
	for i := 0; i < 5; i++ {
		s.Spawn(context.Background(), func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			finished++
			mu.Unlock()
		})
	}
	s.Wait()
	assert.Equal(t, 5, finished)
}

func TestItemKind_String(t *testing.T) {
	assert.Equal(t, "frame", ItemFrame.String())
	assert.Equal(t, "end", ItemEnd.String())
	assert.Equal(t, "unknown", ItemKind(42).String())
}
