package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/settlement/internal/analytics/domain"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	"github.com/smallbiznis/settlement/internal/authorization"
	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/feerule"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/ratelimit"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"github.com/smallbiznis/settlement/pkg/db"
	"github.com/smallbiznis/settlement/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

type errorClass struct {
	status int
	errs   []error
}

// errorClasses is matched in order with errors.Is. The first sentinel that
// matches also names the error type in the response.
var errorClasses = []errorClass{
	{http.StatusBadRequest, []error{
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		analyticsdomain.ErrInvalidRange,
		auditdomain.ErrInvalidTimeRange,
		providerdomain.ErrInvalidCallback,
	}},
	{http.StatusUnauthorized, []error{
		ErrUnauthorized,
		authorization.ErrInvalidActor,
		authorization.ErrInvalidRole,
		providerdomain.ErrInvalidSignature,
	}},
	{http.StatusForbidden, []error{
		ErrForbidden,
		authorization.ErrForbidden,
	}},
	{http.StatusNotFound, []error{
		ErrNotFound,
		txdomain.ErrTransactionNotFound,
		payoutdomain.ErrPayoutNotFound,
		payoutdomain.ErrAccountNotFound,
		refunddomain.ErrRefundNotFound,
		revsharedomain.ErrConfigurationNotFound,
		revsharedomain.ErrNoDefaultConfiguration,
		providerdomain.ErrProviderNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusConflict, []error{
		ErrConflict,
		txdomain.ErrInvalidTransactionState,
		payoutdomain.ErrInvalidPayoutState,
		refunddomain.ErrInvalidRefundState,
		revsharedomain.ErrConfigurationExists,
		revsharedomain.ErrConfigurationInactive,
		balancedomain.ErrPendingMismatch,
	}},
	{http.StatusUnprocessableEntity, []error{
		balancedomain.ErrInsufficientBalance,
		refunddomain.ErrRefundExceedsOriginal,
		refunddomain.ErrInvalidRefundAmount,
		payoutdomain.ErrNothingToPay,
		payoutdomain.ErrInvalidPayoutAmount,
		payoutdomain.ErrUnsupportedPayoutMethod,
		payoutdomain.ErrInvalidAccount,
		payoutdomain.ErrInvalidSeller,
		txdomain.ErrInvalidAmount,
		txdomain.ErrInvalidPayer,
		txdomain.ErrInvalidPaymentMethod,
		txdomain.ErrInvalidNote,
		currency.ErrUnsupportedCurrency,
		feerule.ErrUnknownCategory,
		feerule.ErrUnsupportedPaymentMethod,
		feerule.ErrInvalidAmount,
		revsharedomain.ErrInvalidConfiguration,
		revsharedomain.ErrInvalidSplitConfiguration,
		revsharedomain.ErrInvalidAmount,
		balancedomain.ErrInvalidAmount,
		balancedomain.ErrInvalidSeller,
		balancedomain.ErrInvalidCurrency,
		providerdomain.ErrProviderRejected,
	}},
	{http.StatusTooManyRequests, []error{
		ratelimit.ErrRateLimited,
	}},
	{http.StatusServiceUnavailable, []error{
		ErrServiceUnavailable,
		providerdomain.ErrProviderUnavailable,
	}},
	{http.StatusInternalServerError, []error{
		ledgerdomain.ErrUnbalancedEntry,
		ErrInternal,
	}},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload()
	}
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if db.IsDuplicateKeyErr(err) {
		return http.StatusConflict, errorPayload{Type: ErrConflict.Error(), Message: "conflict"}
	}

	for _, class := range errorClasses {
		for _, sentinel := range class.errs {
			if !errors.Is(err, sentinel) {
				continue
			}
			if class.status >= http.StatusInternalServerError && class.status != http.StatusServiceUnavailable {
				return class.status, internalPayload()
			}
			return class.status, errorPayload{Type: sentinel.Error(), Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, internalPayload()
}

func internalPayload() errorPayload {
	return errorPayload{Type: ErrInternal.Error(), Message: "internal server error"}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// classifyErrorForLog feeds the request logger a low-cardinality class and the
// error type sent to the client.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusServiceUnavailable:
		return "provider", payload.Type
	case status >= http.StatusInternalServerError:
		return "internal", payload.Type
	case status == http.StatusNotFound:
		return "not_found", payload.Type
	case status == http.StatusConflict:
		return "conflict", payload.Type
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "auth", payload.Type
	case status == http.StatusTooManyRequests:
		return "rate_limit", payload.Type
	default:
		return "validation", payload.Type
	}
}
