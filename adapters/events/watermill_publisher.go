package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/ports"
)

const (
	TopicLogout             = "stindem.auth.logout"
	TopicSettlementRecorded = "stindem.settlement.recorded"
)

// LogoutEvent represents a logout event
type LogoutEvent struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// SettlementRecordedEvent announces a new off-chain settlement record
type SettlementRecordedEvent struct {
	Kind          core.SettlementKind `json:"kind"`
	TransactionID string              `json:"transaction_id"`
	TxHash        string              `json:"tx_hash"`
	UserID        string              `json:"user_id"`
	RecordID      string              `json:"record_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, uuid string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID string, tokenID string) error {
	return p.publish(ctx, TopicLogout, tokenID, LogoutEvent{UserID: userID, TokenID: tokenID})
}

// PublishSettlementRecorded publishes a settlement.recorded event
func (p *WatermillPublisher) PublishSettlementRecorded(ctx context.Context, record *core.SettlementRecord) error {
	return p.publish(ctx, TopicSettlementRecorded, watermill.NewUUID(), SettlementRecordedEvent{
		Kind:          record.Kind,
		TransactionID: record.TransactionID,
		TxHash:        record.Metadata.TxHash,
		UserID:        record.Metadata.UserID,
		RecordID:      record.ID,
	})
}
