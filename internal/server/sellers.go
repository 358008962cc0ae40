package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	"github.com/smallbiznis/settlement/internal/audit/masking"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
)

const defaultEntryLimit = 50

func (s *Server) GetSellerBalance(c *gin.Context) {
	sellerID := strings.TrimSpace(c.Param("id"))
	currency := strings.ToUpper(strings.TrimSpace(c.Param("currency")))

	balance, err := s.balances.Get(c.Request.Context(), sellerID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) ListSellerBalanceEntries(c *gin.Context) {
	sellerID := strings.TrimSpace(c.Param("id"))
	currency := strings.ToUpper(strings.TrimSpace(c.Param("currency")))

	limit := defaultEntryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := s.balances.Entries(c.Request.Context(), sellerID, currency, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type registerPayoutAccountRequest struct {
	Currency          string            `json:"currency"`
	Method            string            `json:"method"`
	Provider          string            `json:"provider"`
	Details           map[string]string `json:"details"`
	IsDefault         bool              `json:"isDefault"`
	AutoPayoutEnabled bool              `json:"autoPayoutEnabled"`
}

func (s *Server) RegisterPayoutAccount(c *gin.Context) {
	var req registerPayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var errs []ValidationError
	if strings.TrimSpace(req.Currency) == "" {
		errs = append(errs, ValidationError{Field: "currency", Code: "required", Message: "currency is required"})
	}
	if strings.TrimSpace(req.Method) == "" {
		errs = append(errs, ValidationError{Field: "method", Code: "required", Message: "method is required"})
	}
	if len(req.Details) == 0 {
		errs = append(errs, ValidationError{Field: "details", Code: "required", Message: "details are required"})
	}
	if len(errs) > 0 {
		AbortWithError(c, &ValidationErrors{Errors: errs})
		return
	}

	account, err := s.payouts.RegisterAccount(c.Request.Context(), payoutdomain.RegisterAccountRequest{
		SellerID:          strings.TrimSpace(c.Param("id")),
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		Method:            strings.TrimSpace(req.Method),
		Provider:          strings.TrimSpace(req.Provider),
		Details:           req.Details,
		IsDefault:         req.IsDefault,
		AutoPayoutEnabled: req.AutoPayoutEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.Record{
		Action:     auditdomain.ActionPayoutAccountRegister,
		TargetType: auditdomain.TargetPayoutAccount,
		TargetID:   account.ID.String(),
		Metadata: map[string]any{
			"sellerId": account.SellerID,
			"method":   account.Method,
			"details":  masking.MaskDetails(req.Details),
		},
	})
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) ListPayoutAccounts(c *gin.Context) {
	accounts, err := s.payouts.ListAccounts(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}
