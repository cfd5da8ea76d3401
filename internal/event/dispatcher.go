package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/anon-community/pkg/logger"
	"github.com/d60-Lab/anon-community/pkg/metrics"
)

type job struct {
	event Event
	enqAt time.Time
}

// Dispatcher 本地异步投递器：有界队列 + worker 池，队列满时丢弃并告警
type Dispatcher struct {
	pub       Publisher
	ch        chan job
	timeout   time.Duration
	metricsCh chan time.Duration
}

func NewDispatcher(pub Publisher, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &Dispatcher{
		pub:       pub,
		ch:        make(chan job, queueSize),
		timeout:   5 * time.Second,
		metricsCh: make(chan time.Duration, 1024),
	}
}

// Start 启动 worker，返回停止函数；停止时会在 ctx 截止前尽量排空队列
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	exited := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { exited <- struct{}{} }()
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		for i := 0; i < workers; i++ {
			select {
			case <-exited:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// worker 已退出，剩余事件在当前 goroutine 投递
		for {
			select {
			case j := <-d.ch:
				d.deliver(j)
			case <-ctx.Done():
				logger.Warn("event dispatcher stopped with pending events", zap.Int("pending", len(d.ch)))
				return ctx.Err()
			default:
				return nil
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.pub.Publish(ctx, j.event); err != nil {
		metrics.RecordEventPublished(string(j.event.Type), "error")
		logger.Warn("publish event failed", zap.String("type", string(j.event.Type)), zap.Error(err))
	} else {
		metrics.RecordEventPublished(string(j.event.Type), "ok")
	}
	select {
	case d.metricsCh <- time.Since(j.enqAt):
	default:
	}
}

// Emit 非阻塞入队
func (d *Dispatcher) Emit(_ context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	select {
	case d.ch <- job{event: e, enqAt: time.Now()}:
	default:
		metrics.RecordEventDropped(string(e.Type))
		logger.Warn("event queue full, drop", zap.String("type", string(e.Type)))
	}
}

// Metrics 入队到投递完成的耗时采样
func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 当前队列长度（采样值）
func (d *Dispatcher) QueueLen() int { return len(d.ch) }
