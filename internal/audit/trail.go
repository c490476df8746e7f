package audit

/*
Файл trail.go реализует журнал аудита консоли (Audit Trail).

- Non-blocking Logging: сервисы пишут события в буферизованный канал и не ждут БД.
- Batching: события копятся в памяти и уходят в хранилище пачкой
  по таймеру или при достижении лимита.
- Drain Pattern: Stop закрывает канал, воркер дочитывает остатки и делает
  финальный flush, поэтому при остановке события не теряются.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/compliance-console/internal/infra"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

type Auditor interface {
	Log(event AuditEvent)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Trail struct {
	ch      chan AuditEvent
	repo    StorageInterface
	logger  *zap.Logger
	metrics *infra.Metrics
	opts    Options
	wg      sync.WaitGroup
	// Log после Stop не должен паниковать на закрытом канале
	isClosed int32
}

func NewTrail(repo StorageInterface, opts Options, metrics *infra.Metrics, logger *zap.Logger) *Trail {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Trail{
		ch:      make(chan AuditEvent, opts.BufferSize),
		repo:    repo,
		logger:  logger.With(zap.String("mod", "audit-trail")),
		metrics: metrics,
		opts:    opts,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	if !atomic.CompareAndSwapInt32(&t.isClosed, 0, 1) {
		return
	}

	// Даем текущим Log успешно проскочить в канал
	time.Sleep(10 * time.Millisecond)

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = "SUCCESS"
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.metrics.AuditDropped.Inc()
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении не блокируем бизнес-операцию
	select {
	case t.ch <- event:
		t.metrics.AuditBufferFill.Set(float64(len(t.ch)))
	default:
		t.metrics.AuditDropped.Inc()
		t.logger.Error("audit_buffer_overflow",
			zap.String("action", event.Action),
			zap.String("entity_id", event.EntityID),
			zap.String("actor", event.Actor),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]AuditEvent, 0, t.opts.BatchSize)
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть уже отменен
		if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
			t.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		t.metrics.AuditBufferFill.Set(float64(len(t.ch)))
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): всё из очереди уже вычитано
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
