package llmcall

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/outline/internal/providers"
)

type memWriter struct {
	mu      sync.Mutex
	calls   []Call
	batches int
	err     error
}

func (w *memWriter) InsertCalls(_ context.Context, calls []Call) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches++
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, calls...)
	return nil
}

func (w *memWriter) snapshot() []Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Call(nil), w.calls...)
}

func TestFromChatResult(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Error("nil result should produce nil call")
	}

	temp := 0.1
	call := FromChatResult(&providers.ChatResult{
		Content:          `{"scores":[]}`,
		PromptTokens:     40,
		CompletionTokens: 8,
		ExecutionTime:    1500 * time.Millisecond,
		Provider:         "openai",
		ModelUsed:        "deepseek-chat",
		Attempts:         2,
		Success:          false,
		ErrorMessage:     "rate limited",
	}, RecordOptions{RunID: "run-1", PromptKey: "semantic.batch", Temperature: &temp})

	if call.ID == "" || call.Timestamp.IsZero() {
		t.Errorf("call missing id/timestamp: %+v", call)
	}
	if call.LatencyMs != 1500 || call.InputTokens != 40 || call.OutputTokens != 8 || call.Attempts != 2 {
		t.Errorf("metrics = %+v", call)
	}
	if call.RunID != "run-1" || call.PromptKey != "semantic.batch" || *call.Temperature != 0.1 {
		t.Errorf("options = %+v", call)
	}
	if call.Success || call.Error != "rate limited" {
		t.Errorf("status = %v %q", call.Success, call.Error)
	}
}

func TestSink(t *testing.T) {
	t.Run("flush writes queued calls", func(t *testing.T) {
		w := &memWriter{}
		sink := NewSink(SinkConfig{Writer: w, BatchSize: 100, FlushInterval: time.Hour})
		sink.Start(context.Background())
		defer sink.Stop()

		for i := 0; i < 3; i++ {
			sink.Send(Call{ID: string(rune('a' + i))})
		}
		if err := sink.Flush(context.Background()); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}
		if got := w.snapshot(); len(got) != 3 {
			t.Errorf("written = %d, want 3", len(got))
		}
	})

	t.Run("batch size triggers write", func(t *testing.T) {
		w := &memWriter{}
		sink := NewSink(SinkConfig{Writer: w, BatchSize: 2, FlushInterval: time.Hour})
		sink.Start(context.Background())

		sink.Send(Call{ID: "1"})
		sink.Send(Call{ID: "2"})
		sink.Send(Call{ID: "3"})
		sink.Stop()

		if got := w.snapshot(); len(got) != 3 {
			t.Errorf("written = %d, want 3", len(got))
		}
		if w.batches != 2 {
			t.Errorf("batches = %d, want 2", w.batches)
		}
	})

	t.Run("send after stop is dropped", func(t *testing.T) {
		w := &memWriter{}
		sink := NewSink(SinkConfig{Writer: w})
		sink.Start(context.Background())
		sink.Stop()
		sink.Send(Call{ID: "late"})
		if len(w.snapshot()) != 0 {
			t.Error("call written after stop")
		}
	})

	t.Run("unstarted sink", func(t *testing.T) {
		w := &memWriter{}
		sink := NewSink(SinkConfig{Writer: w})
		if err := sink.Flush(context.Background()); !errors.Is(err, ErrSinkNotStarted) {
			t.Errorf("Flush() error = %v, want ErrSinkNotStarted", err)
		}
		sink.Stop()
		sink.Send(Call{ID: "dropped"})
		if len(w.snapshot()) != 0 {
			t.Error("unstarted sink wrote calls")
		}
	})

	t.Run("writer errors are logged not raised", func(t *testing.T) {
		w := &memWriter{err: errors.New("disk full")}
		sink := NewSink(SinkConfig{Writer: w})
		sink.Start(context.Background())
		sink.Send(Call{ID: "x"})
		sink.Stop()
		if w.batches != 1 {
			t.Errorf("batches = %d", w.batches)
		}
	})
}

func TestRecordingClient(t *testing.T) {
	w := &memWriter{}
	sink := NewSink(SinkConfig{Writer: w, FlushInterval: time.Hour})
	sink.Start(context.Background())

	mock := providers.NewMockClient()
	client := NewRecordingClient(mock, NewRecorder(sink))
	if client.Name() != providers.MockClientName {
		t.Errorf("Name() = %s", client.Name())
	}

	ctx := WithRunID(context.Background(), "run-42")
	if _, err := client.Chat(ctx, &providers.ChatRequest{
		Messages:    []providers.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.2,
		PromptKey:   "semantic.context",
	}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	mock.ShouldFail = true
	if _, err := client.Chat(ctx, &providers.ChatRequest{PromptKey: "semantic.batch"}); err == nil {
		t.Fatal("expected failure")
	}
	sink.Stop()

	calls := w.snapshot()
	if len(calls) != 2 {
		t.Fatalf("recorded = %d, want 2", len(calls))
	}
	if calls[0].RunID != "run-42" || calls[0].PromptKey != "semantic.context" || !calls[0].Success {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Success || calls[1].Error == "" {
		t.Errorf("failed call = %+v", calls[1])
	}
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Record(&providers.ChatResult{}, RecordOptions{})
	NewRecorder(nil).Record(&providers.ChatResult{}, RecordOptions{})
}
