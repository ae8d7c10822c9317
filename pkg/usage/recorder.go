package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"teclab/bitgate/pkg/config"
)

// MetricsSink receives usage observations. *metrics.Collector satisfies it.
type MetricsSink interface {
	RecordUsage(model string, inputTokens, outputTokens int, price float64, currency string)
	RecordUsageDropped()
}

// Recorder estimates, prices and persists turn usage off the request path.
// RecordUsage never blocks: a full buffer drops the record.
type Recorder struct {
	store     Store
	prices    *PriceBook
	estimator Estimator
	currency  string
	timeout   time.Duration
	sink      MetricsSink

	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed against enqueue
	closed  bool
	logger  *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewRecorder starts a recorder writing to store. sink may be nil.
func NewRecorder(store Store, prices *PriceBook, cfg config.UsageConfig, sink MetricsSink) *Recorder {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = config.DefaultUsageBufferSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = config.DefaultUsageWriteTimeout
	}

	r := &Recorder{
		store:     store,
		prices:    prices,
		estimator: Estimator{CharsPerToken: cfg.CharsPerToken},
		currency:  cfg.Currency,
		timeout:   timeout,
		sink:      sink,
		records:   make(chan Record, buffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "usage.recorder"),
		now:       time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("usage recorder initialized",
		"buffer", buffer,
		"write_timeout", timeout,
		"currency", r.currency,
	)
	return r
}

// RecordUsage estimates tokens for one turn of model and enqueues the
// priced record. Unknown models are recorded under their id at zero price.
func (r *Recorder) RecordUsage(model, inputText, outputText string) {
	in := r.estimator.Count(inputText)
	out := r.estimator.Count(outputText)

	name := model
	if e, ok := r.prices.Lookup(model); ok {
		name = e.Name
	}

	rec := Record{
		ID:           uuid.New().String(),
		Time:         r.now(),
		ModelID:      model,
		ModelName:    name,
		InputTokens:  in,
		OutputTokens: out,
		Price:        r.prices.Price(model, in, out),
		Currency:     r.currency,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}

	select {
	case r.records <- rec:
	default:
		r.drop(rec, "buffer full")
	}
}

func (r *Recorder) drop(rec Record, reason string) {
	r.logger.Warn("dropping usage record",
		"reason", reason,
		"model", rec.ModelID,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
	)
	if r.sink != nil {
		r.sink.RecordUsageDropped()
	}
}

// Close stops accepting records, drains the buffer and waits for
// pending writes. The store is not closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("usage recorder shut down")
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Error("failed to store usage record",
			"record_id", rec.ID,
			"model", rec.ModelID,
			"error", err,
		)
		return
	}
	if r.sink != nil {
		r.sink.RecordUsage(rec.ModelName, rec.InputTokens, rec.OutputTokens, rec.Price, rec.Currency)
	}
	r.logger.Debug("usage recorded",
		"record_id", rec.ID,
		"model", rec.ModelID,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
		"price", rec.Price,
	)
}
