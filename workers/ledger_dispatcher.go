package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
)

// deliverTimeout bounds how long one sink may take for one event.
const deliverTimeout = 5 * time.Second

// LedgerSink receives committed ledger events.
type LedgerSink interface {
	Name() string
	Deliver(ctx context.Context, ev models.LedgerEvent) error
}

// SinkFunc adapts a function to LedgerSink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev models.LedgerEvent) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Deliver(ctx context.Context, ev models.LedgerEvent) error {
	return s.Fn(ctx, ev)
}

// LedgerDispatcher fans ledger events out to sinks on a fixed pool of workers. Publishing never
// blocks the request that committed the operation; when the queue is full the event is dropped
// and counted.
type LedgerDispatcher struct {
	JobQueue chan models.LedgerEvent
	Wg       sync.WaitGroup
	StopChan chan struct{}

	sinks    []LedgerSink
	metrics  *metrics.Metrics
	log      *logger.Logger
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewLedgerDispatcher starts numWorkers workers reading from a queue of queueSize events.
func NewLedgerDispatcher(queueSize, numWorkers int, m *metrics.Metrics, log *logger.Logger, sinks ...LedgerSink) *LedgerDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	d := &LedgerDispatcher{
		JobQueue: make(chan models.LedgerEvent, queueSize),
		StopChan: make(chan struct{}),
		sinks:    sinks,
		metrics:  m,
		log:      log.Component("ledger_dispatcher"),
	}

	d.log.Infof("Starting %d ledger dispatch workers (queue %d, %d sinks)", numWorkers, queueSize, len(sinks))
	for i := 1; i <= numWorkers; i++ {
		d.Wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *LedgerDispatcher) worker(id int) {
	defer d.Wg.Done()
	for {
		select {
		case ev := <-d.JobQueue:
			d.dispatch(ev)
		case <-d.StopChan:
			// drain what was queued before Stop
			for {
				select {
				case ev := <-d.JobQueue:
					d.dispatch(ev)
				default:
					d.log.Debugf("Ledger worker %d stopping", id)
					return
				}
			}
		}
	}
}

func (d *LedgerDispatcher) dispatch(ev models.LedgerEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := sink.Deliver(ctx, ev); err != nil {
			d.log.Errorf(err, "Sink %s failed for operation %s (%s)", sink.Name(), ev.OperationID, ev.ChangeType)
		}
		cancel()
	}
}

// Publish queues ev without blocking.
func (d *LedgerDispatcher) Publish(ev models.LedgerEvent) {
	if d.stopped.Load() {
		d.metrics.IncrementEventDropped()
		return
	}
	select {
	case d.JobQueue <- ev:
	default:
		d.log.Warnf("Ledger event queue full, dropping %s event for operation %s", ev.ChangeType, ev.OperationID)
		d.metrics.IncrementEventDropped()
	}
}

// Stop rejects new events, waits for the workers to deliver what is queued and returns.
func (d *LedgerDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info("Stopping ledger dispatch workers...")
		d.stopped.Store(true)
		close(d.StopChan)
		d.Wg.Wait()
		d.log.Info("All ledger dispatch workers stopped")
	})
}
