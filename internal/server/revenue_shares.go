package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"go.uber.org/zap"
)

type createRevenueShareRequest struct {
	Name                         string                       `json:"name"`
	PlatformCommissionPercentage decimal.Decimal              `json:"platformCommissionPercentage"`
	PlatformCommissionFixed      int64                        `json:"platformCommissionFixed"`
	MinimumCommission            int64                        `json:"minimumCommission"`
	UserTypeRates                revsharedomain.UserTypeRates `json:"userTypeRates"`
	IsDefault                    bool                         `json:"isDefault"`
}

type reviseRevenueShareRequest struct {
	PlatformCommissionPercentage *decimal.Decimal             `json:"platformCommissionPercentage"`
	PlatformCommissionFixed      *int64                       `json:"platformCommissionFixed"`
	MinimumCommission            *int64                       `json:"minimumCommission"`
	UserTypeRates                revsharedomain.UserTypeRates `json:"userTypeRates"`
}

func (s *Server) CreateRevenueShare(c *gin.Context) {
	var req createRevenueShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}

	cfg, err := s.revenueShare.Create(c.Request.Context(), revsharedomain.CreateRequest{
		Name:                         strings.TrimSpace(req.Name),
		PlatformCommissionPercentage: req.PlatformCommissionPercentage,
		PlatformCommissionFixed:      req.PlatformCommissionFixed,
		MinimumCommission:            req.MinimumCommission,
		UserTypeRates:                req.UserTypeRates,
		IsDefault:                    req.IsDefault,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.logConfigChange(c, auditdomain.ActionRevenueShareCreate, cfg)
	c.JSON(http.StatusCreated, gin.H{"data": cfg})
}

func (s *Server) ListRevenueShares(c *gin.Context) {
	configs, err := s.revenueShare.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": configs})
}

func (s *Server) GetRevenueShare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cfg, err := s.revenueShare.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) ReviseRevenueShare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviseRevenueShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.revenueShare.Revise(c.Request.Context(), id, revsharedomain.ReviseRequest{
		PlatformCommissionPercentage: req.PlatformCommissionPercentage,
		PlatformCommissionFixed:      req.PlatformCommissionFixed,
		MinimumCommission:            req.MinimumCommission,
		UserTypeRates:                req.UserTypeRates,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.logConfigChange(c, auditdomain.ActionRevenueShareRevise, cfg)
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) SetDefaultRevenueShare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cfg, err := s.revenueShare.SetDefault(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.logConfigChange(c, auditdomain.ActionRevenueShareSetDefault, cfg)
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

// logConfigChange leaves a trail of who changed which split version.
func (s *Server) logConfigChange(c *gin.Context, action string, cfg *revsharedomain.Configuration) {
	if cfg == nil {
		return
	}
	s.log.Info("revenue share configuration changed",
		zap.String("action", action),
		zap.String("actor", actorName(c)),
		zap.String("config_id", cfg.ID.String()),
		zap.String("name", cfg.Name),
		zap.Int("version", cfg.Version),
	)
	s.recordAudit(c, auditdomain.Record{
		Action:     action,
		TargetType: auditdomain.TargetRevenueShare,
		TargetID:   cfg.ID.String(),
		Metadata: map[string]any{
			"name":       cfg.Name,
			"version":    cfg.Version,
			"percentage": cfg.PlatformCommissionPercentage.String(),
			"fixed":      cfg.PlatformCommissionFixed,
			"minimum":    cfg.MinimumCommission,
			"isDefault":  cfg.IsDefault,
		},
	})
}
