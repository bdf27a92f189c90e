package ocr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	ocrerrors "github.com/docuflow/ocr-worker/internal/errors"
	"github.com/docuflow/ocr-worker/internal/logging"
)

type stubRecognizer struct {
	result *RawResult
	err    error
	closed atomic.Bool
}

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte) (*RawResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubRecognizer) Close() error {
	s.closed.Store(true)
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger("pool-test")
}

func TestPoolInitializeReportsProgress(t *testing.T) {
	createdTotal := 0
	factory := func(cfg WorkerConfig) (Recognizer, error) {
		createdTotal++
		return &stubRecognizer{result: &RawResult{Text: "ok"}}, nil
	}

	pool := NewPool(3, WorkerConfig{}, factory, testLogger())

	var progress [][2]int
	err := pool.Initialize(context.Background(), func(ready, total int) {
		progress = append(progress, [2]int{ready, total})
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if pool.State() != PoolReady {
		t.Errorf("state = %v, want ready", pool.State())
	}

	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("progress callbacks = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("callback %d = %v, want %v", i, progress[i], want[i])
		}
	}

	// Reinitializing a ready pool is a no-op.
	if err := pool.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if createdTotal != 3 {
		t.Errorf("factory calls = %d, want 3", createdTotal)
	}
}

func TestPoolSubmitBeforeInitialize(t *testing.T) {
	pool := NewPool(1, WorkerConfig{}, func(cfg WorkerConfig) (Recognizer, error) {
		return &stubRecognizer{}, nil
	}, testLogger())

	_, err := pool.Submit(context.Background(), []byte("img"))
	if !ocrerrors.HasCode(err, ocrerrors.ErrorInitializationFailed) {
		t.Fatalf("err = %v, want initialization failure code", err)
	}
}

func TestPoolWorkerStaysInRotationAfterFailure(t *testing.T) {
	worker := &stubRecognizer{err: errors.New("bad scan")}
	pool := NewPool(1, WorkerConfig{}, func(cfg WorkerConfig) (Recognizer, error) {
		return worker, nil
	}, testLogger())
	if err := pool.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer pool.Terminate()

	_, err := pool.Submit(context.Background(), []byte("img"))
	if !ocrerrors.HasCode(err, ocrerrors.ErrorRecognitionFailed) {
		t.Fatalf("err = %v, want recognition failure code", err)
	}

	// The job failed, not the worker: it must still serve the next job.
	worker.err = nil
	worker.result = &RawResult{Text: "recovered"}
	result, err := pool.Submit(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Submit after failure: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("text = %q, want recovered", result.Text)
	}
}

func TestPoolInitializeFailureClosesCreated(t *testing.T) {
	var created []*stubRecognizer
	n := 0
	factory := func(cfg WorkerConfig) (Recognizer, error) {
		n++
		if n == 3 {
			return nil, errors.New("out of memory")
		}
		w := &stubRecognizer{}
		created = append(created, w)
		return w, nil
	}

	pool := NewPool(3, WorkerConfig{}, factory, testLogger())
	err := pool.Initialize(context.Background(), nil)
	if !ocrerrors.HasCode(err, ocrerrors.ErrorInitializationFailed) {
		t.Fatalf("err = %v, want initialization failure code", err)
	}
	if pool.State() != PoolUninitialized {
		t.Errorf("state = %v, want uninitialized after failed startup", pool.State())
	}
	for i, w := range created {
		if !w.closed.Load() {
			t.Errorf("worker %d not closed after failed startup", i+1)
		}
	}
}

func TestPoolTerminate(t *testing.T) {
	var created []*stubRecognizer
	pool := NewPool(2, WorkerConfig{}, func(cfg WorkerConfig) (Recognizer, error) {
		w := &stubRecognizer{result: &RawResult{}}
		created = append(created, w)
		return w, nil
	}, testLogger())
	if err := pool.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := pool.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if pool.State() != PoolUninitialized {
		t.Errorf("state = %v, want uninitialized", pool.State())
	}
	for i, w := range created {
		if !w.closed.Load() {
			t.Errorf("worker %d not closed", i+1)
		}
	}

	// Safe to call again, and a terminated pool rejects jobs.
	if err := pool.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
	if _, err := pool.Submit(context.Background(), []byte("img")); err == nil {
		t.Error("Submit succeeded on a terminated pool")
	}
}

func TestPoolMinimumSize(t *testing.T) {
	createdTotal := 0
	pool := NewPool(0, WorkerConfig{}, func(cfg WorkerConfig) (Recognizer, error) {
		createdTotal++
		return &stubRecognizer{}, nil
	}, testLogger())
	if err := pool.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer pool.Terminate()

	if createdTotal != 1 {
		t.Errorf("workers = %d, want minimum of 1", createdTotal)
	}
}

func TestLanguagesSpec(t *testing.T) {
	tests := []struct {
		langs Languages
		want  string
	}{
		{nil, "eng"},
		{Languages{}, "eng"},
		{Languages{"deu"}, "deu"},
		{Languages{"eng", "deu", "fra"}, "eng+deu+fra"},
	}
	for _, tc := range tests {
		if got := tc.langs.Spec(); got != tc.want {
			t.Errorf("Languages%v.Spec() = %q, want %q", tc.langs, got, tc.want)
		}
	}

	if !(Languages{}).Equal(Languages{"eng"}) {
		t.Error("empty selection and explicit eng must compare equal")
	}
	if (Languages{"eng"}).Equal(Languages{"deu"}) {
		t.Error("eng and deu must not compare equal")
	}
}
