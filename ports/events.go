package ports

import (
	"context"

	"github.com/layer-3/stindem/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, userID string, tokenID string) error
	PublishSettlementRecorded(ctx context.Context, record *core.SettlementRecord) error
}
