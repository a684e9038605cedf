package llmcall

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSinkNotStarted is returned by Flush before Start.
var ErrSinkNotStarted = errors.New("llm call sink not started")

// Writer persists batches of calls.
type Writer interface {
	InsertCalls(ctx context.Context, calls []Call) error
}

// SinkConfig configures the write sink.
type SinkConfig struct {
	Writer        Writer
	BatchSize     int           // Flush after N calls (default: 50)
	FlushInterval time.Duration // Or after duration (default: 2s)
	QueueSize     int           // Buffer size (default: 500)
	Logger        *slog.Logger
}

// Sink batches call records and writes them in the background.
type Sink struct {
	writer Writer
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan Call
	batch   []Call
	batchMu sync.Mutex
	flushCh chan chan struct{}

	stateMu  sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a new write sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sink{
		writer:        cfg.Writer,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan Call, cfg.QueueSize),
		batch:         make([]Call, 0, cfg.BatchSize),
		flushCh:       make(chan chan struct{}),
	}
}

// Start begins processing queued calls.
func (s *Sink) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.runBatcher()
}

// Stop gracefully shuts down the sink, flushing remaining calls. Stopping a
// sink that was never started only closes its queue.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()
		if _, cancel := s.state(); cancel != nil {
			cancel()
		}
		s.logger.Debug("llm call sink stopped")
	})
}

func (s *Sink) state() (context.Context, context.CancelFunc) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.ctx, s.cancel
}

// Send queues a call (fire-and-forget). Calls are dropped once the sink is
// stopped or when the queue is full.
func (s *Sink) Send(call Call) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sink closed, dropping llm call record", "id", call.ID)
		}
	}()

	select {
	case s.queue <- call:
	default:
		s.logger.Warn("llm call queue full, dropping record", "id", call.ID)
	}
}

// Flush writes everything queued so far and waits for the write to finish.
func (s *Sink) Flush(ctx context.Context) error {
	sinkCtx, _ := s.state()
	if sinkCtx == nil {
		return ErrSinkNotStarted
	}
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-sinkCtx.Done():
		return sinkCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) runBatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				s.flushBatch()
				return
			}
			s.addToBatch(call)

		case <-ticker.C:
			s.flushBatch()

		case done := <-s.flushCh:
			s.drainQueue()
			s.flushBatch()
			close(done)
		}
	}
}

// drainQueue moves already-queued calls into the batch without blocking.
func (s *Sink) drainQueue() {
	for {
		select {
		case call, ok := <-s.queue:
			if !ok {
				return
			}
			s.addToBatch(call)
		default:
			return
		}
	}
}

func (s *Sink) addToBatch(call Call) {
	s.batchMu.Lock()
	s.batch = append(s.batch, call)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flushBatch()
	}
}

func (s *Sink) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	calls := s.batch
	s.batch = make([]Call, 0, s.batchSize)
	s.batchMu.Unlock()

	s.logger.Debug("flushing llm call batch", "count", len(calls))
	if err := s.writer.InsertCalls(s.ctx, calls); err != nil {
		s.logger.Error("failed to write llm calls", "count", len(calls), "error", err)
	}
}
