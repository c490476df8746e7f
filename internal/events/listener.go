package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Паузы между попытками подписки
var (
	resubscribeDelay = 1 * time.Second
	subscribeBackoff = 5 * time.Second
)

// ListenResilient — цикл "живучей" подписки на каналы Redis.
// Переподписывается при обрыве; onReconnect вызывается после каждой успешной подписки,
// чтобы догнать события, пропущенные пока соединения не было.
// Возвращается только при отмене ctx.
func ListenResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channels []string,
	onReconnect func(ctx context.Context) error,
	onMessage func(ctx context.Context, channel string, payload []byte),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channels...)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.Strings("channels", channels), zap.Error(err))
			if !sleep(ctx, subscribeBackoff) {
				return
			}
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(ctx); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // канал закрыт, идем на переподключение
				}
				onMessage(ctx, msg.Channel, []byte(msg.Payload))
			}
		}

		_ = pubsub.Close()
		logger.Warn("subscription lost, resubscribing", zap.Strings("channels", channels))
		if !sleep(ctx, resubscribeDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
