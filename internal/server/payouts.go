package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/pkg/db/pagination"
)

type createPayoutRequest struct {
	SellerID  string            `json:"sellerId"`
	Currency  string            `json:"currency"`
	Amount    *int64            `json:"amount"`
	AccountID string            `json:"accountId"`
	Method    string            `json:"method"`
	Provider  string            `json:"provider"`
	Account   map[string]string `json:"account"`
	Notes     string            `json:"notes"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	var req createPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var errs []ValidationError
	if strings.TrimSpace(req.SellerID) == "" {
		errs = append(errs, ValidationError{Field: "sellerId", Code: "required", Message: "sellerId is required"})
	}
	if strings.TrimSpace(req.Currency) == "" {
		errs = append(errs, ValidationError{Field: "currency", Code: "required", Message: "currency is required"})
	}
	if req.Amount != nil && *req.Amount <= 0 {
		errs = append(errs, ValidationError{Field: "amount", Code: "invalid_amount", Message: "amount must be positive"})
	}
	accountID, err := parseOptionalSnowflakeID(req.AccountID)
	if err != nil {
		errs = append(errs, ValidationError{Field: "accountId", Code: "invalid_id", Message: "invalid accountId"})
	}
	if len(errs) > 0 {
		AbortWithError(c, &ValidationErrors{Errors: errs})
		return
	}

	domainReq := payoutdomain.CreateRequest{
		SellerID: strings.TrimSpace(req.SellerID),
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Amount:   req.Amount,
		Method:   strings.TrimSpace(req.Method),
		Provider: strings.TrimSpace(req.Provider),
		Account:  req.Account,
		Notes:    strings.TrimSpace(req.Notes),
	}
	if accountID != nil {
		domainReq.AccountID = *accountID
	}

	payout, err := s.payouts.CreatePayout(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": payout})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		SellerID  string `form:"sellerId"`
		Status    string `form:"status"`
		Automatic string `form:"automatic"`
		MinAmount string `form:"minAmount"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	automatic, err := parseOptionalBool(query.Automatic)
	if err != nil {
		AbortWithError(c, newValidationError("automatic", "invalid_automatic", "automatic must be true or false"))
		return
	}
	minAmount, err := parseOptionalInt64(query.MinAmount)
	if err != nil || (minAmount != nil && *minAmount < 0) {
		AbortWithError(c, newValidationError("minAmount", "invalid_amount", "minAmount must be a non-negative integer of minor units"))
		return
	}
	beforeID, err := query.BeforeID()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := query.Limit()
	rows, err := s.payouts.List(c.Request.Context(), payoutdomain.ListFilter{
		SellerID:  strings.TrimSpace(query.SellerID),
		Status:    payoutdomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
		Automatic: automatic,
		MinAmount: minAmount,
		Limit:     limit + 1,
		BeforeID:  beforeID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, info := pagination.Page(rows, limit, func(p payoutdomain.Payout) snowflake.ID { return p.ID })
	c.JSON(http.StatusOK, gin.H{"data": page, "pageInfo": info})
}

func (s *Server) GetPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payout, err := s.payouts.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) ListPayoutItems(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := s.payouts.Items(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) VerifyPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payout, err := s.payouts.Verify(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) CancelPayout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	payout, err := s.payouts.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.Record{
		Action:     auditdomain.ActionPayoutCancel,
		TargetType: auditdomain.TargetPayout,
		TargetID:   payout.ID.String(),
		Metadata: map[string]any{
			"sellerId": payout.SellerID,
			"amount":   payout.TotalAmount,
			"currency": payout.Currency,
			"reason":   strings.TrimSpace(req.Reason),
		},
	})
	c.JSON(http.StatusOK, gin.H{"data": payout})
}

func (s *Server) GetPayoutStatement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	pdf, err := s.payouts.Statement(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="payout-%s.pdf"`, id.String()))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
