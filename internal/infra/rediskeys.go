package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "compliance"
)

// Ключи кэша
const (
	RedisKeyDashboardStats      = RedisNamespace + ":dashboard:stats"
	RedisKeyDashboardWarmupLock = RedisNamespace + ":dashboard:warmup_lock"
	RedisKeyAMLBatchPrefix      = RedisNamespace + ":aml:batch:"
	RedisKeyAMLBatchLockPrefix  = RedisNamespace + ":aml:batch_lock:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanWorkflowDecisions — канал, в который публикуется каждый переход workflow.
	RedisChanWorkflowDecisions = RedisNamespace + ":workflows"
	RedisChanUploads           = RedisNamespace + ":uploads"
)

// AMLBatchKey ключ, под которым хранится состояние пакетной AML-проверки
func AMLBatchKey(batchID string) string {
	return fmt.Sprintf("%s%s", RedisKeyAMLBatchPrefix, batchID)
}

// AMLBatchLockKey — завершает пакет только тот, кто взял этот ключ
func AMLBatchLockKey(batchID string) string {
	return fmt.Sprintf("%s%s", RedisKeyAMLBatchLockPrefix, batchID)
}
