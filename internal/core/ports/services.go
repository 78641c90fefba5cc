package ports

import (
	"context"

	"github.com/samirrijal/overlapscan/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishScanCompleted(ctx context.Context, event *domain.ScanCompletedEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeScanCompleted(ctx context.Context, handler func(ctx context.Context, event *domain.ScanCompletedEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
