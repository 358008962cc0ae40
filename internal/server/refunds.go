package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
)

type requestRefundRequest struct {
	TransactionID string `json:"transactionId"`
	Amount        *int64 `json:"amount"`
	Reason        string `json:"reason"`
	OrderID       string `json:"orderId"`
}

func (s *Server) RequestRefund(c *gin.Context) {
	var req requestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txnID, err := snowflake.ParseString(strings.TrimSpace(req.TransactionID))
	if err != nil || txnID == 0 {
		AbortWithError(c, newValidationError("transactionId", "invalid_id", "invalid transactionId"))
		return
	}
	if req.Amount != nil && *req.Amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}

	refund, err := s.refunds.RequestRefund(c.Request.Context(), refunddomain.Request{
		TransactionID: txnID,
		Amount:        req.Amount,
		Reason:        strings.TrimSpace(req.Reason),
		OrderID:       strings.TrimSpace(req.OrderID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": refund})
}

func (s *Server) GetRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	refund, err := s.refunds.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": refund})
}

func (s *Server) VerifyRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	refund, err := s.refunds.Verify(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": refund})
}

func (s *Server) ListPaymentRefunds(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := s.transactions.Get(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	refunds, err := s.refunds.ListByTransaction(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": refunds})
}
