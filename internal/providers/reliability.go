package providers

/*
Файл reliability.go — защитная обертка над исходящими вызовами провайдеров.

Порядок: лимитер -> Circuit Breaker -> retry с экспоненциальным бэкоффом.
Повторяются только сетевые сбои, ошибки шлюза функций (relay), 5xx и 429.
Остальные 4xx — ошибка запроса, повтор ничего не изменит, и предохранитель их не считает.
Операции, создающие что-то у провайдера (анкета, запуск проверки, скрининг), после
сбоя шлюза не повторяются: провайдер мог успеть выполнить запрос. Для них повторяется
только 429, его провайдер отклоняет до обработки.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"golang.org/x/time/rate"
)

// maxThrottleWait — дольше Retry-After не ждем, пользователь у экрана
const maxThrottleWait = 30 * time.Second

// retrySafe — операции чтения, их можно повторять при любом временном сбое
var retrySafe = map[string]bool{
	onfidoOpWorkflowStatus:  true,
	idenfyOpStatus:          true,
	refinitivOpBatchResults: true,
	riskOpScore:             true,
}

type ReliableClient struct {
	name     string
	next     Caller
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *infra.Metrics
}

func NewReliableClient(name string, next Caller, cfg infra.ProvidersConfig, timeout time.Duration, metrics *infra.Metrics) *ReliableClient {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(max(cfg.CBMaxRequests, 1)),
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &ReliableClient{
		name:     name,
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		timeout:  timeout,
		metrics:  metrics,
	}
}

func (c *ReliableClient) Call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	start := time.Now()
	res, err := c.call(ctx, operation, payload)
	c.metrics.ProviderDuration.WithLabelValues(c.name, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderErrors.WithLabelValues(c.name, string(errorKind(err))).Inc()
	}
	return res, err
}

func (c *ReliableClient) call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	// 1. Rate Limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.ProviderError{Provider: c.name, Kind: domain.ProviderKindFetch, Cause: fmt.Errorf("rate limit wait: %w", err)}
	}

	retryIf := retryable
	if !retrySafe[operation] {
		retryIf = throttled
	}

	// 2. Circuit Breaker
	cbResult, err := c.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(c.attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryIf),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Провайдер сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return min(tErr.RetryAfter, maxThrottleWait)
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		var data []byte
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			var callErr error
			data, callErr = c.next.Call(tCtx, operation, payload)
			return callErr
		})
		return data, retryErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ProviderError{Provider: c.name, Kind: domain.ProviderKindFetch, Cause: err}
		}
		return nil, err
	}

	return cbResult.([]byte), nil
}

// retryable — есть ли смысл повторять вызов
func retryable(err error) bool {
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var pErr *domain.ProviderError
	if errors.As(err, &pErr) {
		switch pErr.Kind {
		case domain.ProviderKindFetch, domain.ProviderKindRelay:
			return true
		default:
			return pErr.StatusCode >= 500
		}
	}
	// Отмена контекста вызывающим — не повод повторять
	return !errors.Is(err, context.Canceled)
}

// throttled — провайдер отклонил вызов по лимиту, не выполняя его
func throttled(err error) bool {
	var tErr *ThrottleError
	return errors.As(err, &tErr)
}

func errorKind(err error) domain.ProviderErrorKind {
	var pErr *domain.ProviderError
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return domain.ProviderKindFetch
}
