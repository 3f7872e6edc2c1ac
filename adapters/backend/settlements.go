package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/layer-3/stindem/core"
)

type settlementBody struct {
	TransactionID string                `json:"transactionId"`
	PolicyID      string                `json:"policyId,omitempty"`
	ActorAddress  string                `json:"actorAddress"`
	Quantity      string                `json:"quantity,omitempty"`
	Amount        string                `json:"amount"`
	TxHash        string                `json:"txnHash"`
	OccurredAt    time.Time             `json:"occurredAt"`
	Status        core.SettlementStatus `json:"status,omitempty"`
}

// CreateSettlement POSTs one record to the collection of its kind.
// A 409 means the backend already holds the record and maps to core.ErrAlreadyRecorded.
func (c *Client) CreateSettlement(ctx context.Context, record core.SettlementRecord) (*core.SettlementRecord, error) {
	path := record.Kind.Collection()
	if path == "" {
		return nil, fmt.Errorf("unknown settlement kind %q", record.Kind)
	}

	body := settlementBody{
		TransactionID: record.TransactionID,
		PolicyID:      record.Metadata.PolicyID,
		ActorAddress:  record.Metadata.ActorAddress,
		Quantity:      record.Metadata.Quantity,
		Amount:        record.Metadata.Amount,
		TxHash:        record.Metadata.TxHash,
		OccurredAt:    record.Metadata.OccurredAt,
		Status:        record.Status,
	}

	var out core.SettlementRecord
	err := c.send(ctx, http.MethodPost, path, body, &out, true)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusConflict {
		return nil, core.ErrAlreadyRecorded
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSettlements returns the caller's records of kind. The backend scopes the
// list to the session's user, so userID only guards against a stale identity.
func (c *Client) ListSettlements(ctx context.Context, kind core.SettlementKind, userID string) ([]core.SettlementRecord, error) {
	path := kind.Collection()
	if path == "" {
		return nil, fmt.Errorf("unknown settlement kind %q", kind)
	}

	var resp struct {
		Items []core.SettlementRecord `json:"items"`
	}
	if err := c.send(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}

	out := resp.Items[:0]
	for _, r := range resp.Items {
		if userID == "" || r.Metadata.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}
