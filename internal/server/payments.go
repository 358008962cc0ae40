package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"github.com/smallbiznis/settlement/pkg/db/pagination"
	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

type initializePaymentRequest struct {
	OrderID        string            `json:"orderId"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	PaymentMethod  string            `json:"paymentMethod"`
	Category       string            `json:"category"`
	PayerID        string            `json:"payerId"`
	PayeeID        string            `json:"payeeId"`
	SellerUserType string            `json:"sellerUserType"`
	Provider       string            `json:"provider"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
}

func (r initializePaymentRequest) toDomain() txdomain.InitializeRequest {
	return txdomain.InitializeRequest{
		OrderID:        strings.TrimSpace(r.OrderID),
		Amount:         r.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(r.Currency)),
		PaymentMethod:  strings.TrimSpace(r.PaymentMethod),
		Category:       strings.TrimSpace(r.Category),
		PayerID:        strings.TrimSpace(r.PayerID),
		PayeeID:        strings.TrimSpace(r.PayeeID),
		SellerUserType: strings.TrimSpace(r.SellerUserType),
		Provider:       strings.TrimSpace(r.Provider),
		Description:    strings.TrimSpace(r.Description),
		Metadata:       r.Metadata,
	}
}

func (r initializePaymentRequest) validate() error {
	var errs []ValidationError
	if r.Amount <= 0 {
		errs = append(errs, ValidationError{Field: "amount", Code: "invalid_amount", Message: "amount must be a positive integer of minor units"})
	}
	if strings.TrimSpace(r.Currency) == "" {
		errs = append(errs, ValidationError{Field: "currency", Code: "required", Message: "currency is required"})
	}
	if strings.TrimSpace(r.PaymentMethod) == "" {
		errs = append(errs, ValidationError{Field: "paymentMethod", Code: "required", Message: "paymentMethod is required"})
	}
	if strings.TrimSpace(r.PayerID) == "" {
		errs = append(errs, ValidationError{Field: "payerId", Code: "required", Message: "payerId is required"})
	}
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (s *Server) QuotePayment(c *gin.Context) {
	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	quote, err := s.transactions.Quote(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (s *Server) InitializePayment(c *gin.Context) {
	var req initializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := req.validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	txn, err := s.transactions.Initialize(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PayeeID string `form:"payeeId"`
		PayerID string `form:"payerId"`
		Status  string `form:"status"`
		From    string `form:"from"`
		To      string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	beforeID, err := query.BeforeID()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := query.Limit()
	rows, err := s.transactions.List(c.Request.Context(), txdomain.ListFilter{
		PayeeID:  strings.TrimSpace(query.PayeeID),
		PayerID:  strings.TrimSpace(query.PayerID),
		Status:   txdomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
		From:     from,
		To:       to,
		Limit:    limit + 1,
		BeforeID: beforeID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, info := pagination.Page(rows, limit, func(t txdomain.Transaction) snowflake.ID { return t.ID })
	c.JSON(http.StatusOK, gin.H{"data": page, "pageInfo": info})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txn, err := s.transactions.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txn, err := s.transactions.Verify(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	txn, err := s.transactions.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

type addNoteRequest struct {
	Body string `json:"body"`
}

func (s *Server) AddPaymentNote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		AbortWithError(c, newValidationError("body", "required", "body is required"))
		return
	}

	note, err := s.transactions.AddNote(c.Request.Context(), id, actorName(c), strings.TrimSpace(req.Body))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": note})
}

func (s *Server) ListPaymentNotes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	notes, err := s.transactions.Notes(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notes})
}

func (s *Server) limitCallbacks() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.limiter.Allow(c.Request.Context(), c.Param("provider"), c.ClientIP())
		if err != nil {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// HandleProviderCallback accepts a provider notification and routes it by kind.
// Services re-verify with the provider, so the body is never trusted for status.
func (s *Server) HandleProviderCallback(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	parser, err := s.providers.CallbackParser(provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cb, err := parser.ParseCallback(payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	var result any
	switch cb.Kind {
	case providerdomain.CallbackPayment:
		result, err = s.transactions.HandleCallback(ctx, cb)
	case providerdomain.CallbackRefund:
		result, err = s.refunds.HandleCallback(ctx, cb)
	case providerdomain.CallbackPayout:
		result, err = s.payouts.HandleCallback(ctx, cb)
	default:
		err = providerdomain.ErrInvalidCallback
	}
	if err != nil {
		s.log.Warn("provider callback rejected",
			zap.String("provider", provider),
			zap.String("kind", string(cb.Kind)),
			zap.String("reference", cb.Reference),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_id", "invalid "+name))
		return 0, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return false
	}
	return true
}
