package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/stindem/core"
	"github.com/layer-3/stindem/service"
)

// settlementRequest is the body of a settlement POST. Every kind shares it;
// fields a kind does not use stay empty.
type settlementRequest struct {
	TransactionID string                `json:"transactionId" binding:"required"`
	PolicyID      string                `json:"policyId"`
	ActorAddress  string                `json:"actorAddress" binding:"required"`
	Quantity      string                `json:"quantity"`
	Amount        string                `json:"amount" binding:"required"`
	TxHash        string                `json:"txnHash" binding:"required"`
	OccurredAt    time.Time             `json:"occurredAt"`
	Status        core.SettlementStatus `json:"status"`
}

// SettlementHandlers serves the three settlement collections
type SettlementHandlers struct {
	settlements *service.SettlementService
}

// NewSettlementHandlers creates settlement handlers
func NewSettlementHandlers(settlements *service.SettlementService) *SettlementHandlers {
	return &SettlementHandlers{settlements: settlements}
}

// Create returns the POST handler for kind
func (h *SettlementHandlers) Create(kind core.SettlementKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		var req settlementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		record, err := h.settlements.Create(c.Request.Context(), session, core.SettlementRecord{
			Kind:          kind,
			TransactionID: req.TransactionID,
			Status:        req.Status,
			Metadata: core.SettlementMetadata{
				PolicyID:     req.PolicyID,
				ActorAddress: req.ActorAddress,
				Quantity:     req.Quantity,
				Amount:       req.Amount,
				TxHash:       req.TxHash,
				OccurredAt:   req.OccurredAt,
			},
		})
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, record)
		case errors.Is(err, core.ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{"error": "Settlement already recorded", "transactionId": req.TransactionID})
		case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record settlement"})
		}
	}
}

// List returns the GET handler for kind
func (h *SettlementHandlers) List(kind core.SettlementKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := sessionFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		records, err := h.settlements.List(c.Request.Context(), session, kind)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list settlements"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": records})
	}
}
