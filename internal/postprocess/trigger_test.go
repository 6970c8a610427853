package postprocess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvault/internal/domain"
)

func TestTrigger_DispatchesAllJobKindsOnUpload(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[JobKind]int)

	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.Kind]++
		return nil
	}

	trigger := NewTrigger(16, 2, map[JobKind]Handler{
		JobThumbnail:   handler,
		JobTextExtract: handler,
		JobTagGenerate: handler,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trigger.Run(ctx)
		close(done)
	}()

	trigger.OnUploaded(&domain.FileRecord{ID: "file-1", TenantID: "fam-1"}, "trace-1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[JobThumbnail] == 1 && seen[JobTextExtract] == 1 && seen[JobTagGenerate] == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

// 队列满时丢弃任务而不是阻塞上传方。
func TestTrigger_FullQueueDoesNotBlock(t *testing.T) {
	trigger := NewTrigger(1, 1, nil, zerolog.Nop())

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			trigger.OnUploaded(&domain.FileRecord{ID: "file-1", TenantID: "fam-1"}, "trace-1")
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("OnUploaded must never block the uploader")
	}
}

// 任务失败只记日志丢弃，不影响其他任务。
func TestTrigger_HandlerFailureIsSwallowed(t *testing.T) {
	var mu sync.Mutex
	succeeded := 0

	trigger := NewTrigger(16, 1, map[JobKind]Handler{
		JobThumbnail: func(ctx context.Context, job Job) error {
			return errors.New("image library crashed")
		},
		JobTextExtract: func(ctx context.Context, job Job) error {
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			return nil
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trigger.Run(ctx)

	trigger.OnUploaded(&domain.FileRecord{ID: "file-1", TenantID: "fam-1"}, "trace-1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return succeeded == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() { cancel() })
}
