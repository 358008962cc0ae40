package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/settlement/internal/audit/domain"
	"github.com/smallbiznis/settlement/pkg/db/pagination"
	"go.uber.org/zap"
)

// recordAudit writes after the change has committed, so a failed write is
// logged and the response still succeeds.
func (s *Server) recordAudit(c *gin.Context, rec auditdomain.Record) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(c.Request.Context(), rec); err != nil {
		s.log.Error("audit record failed",
			zap.String("action", rec.Action),
			zap.String("target_id", rec.TargetID),
			zap.Error(err),
		)
	}
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.audit == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var query struct {
		pagination.Pagination
		Action     string `form:"action"`
		TargetType string `form:"targetType"`
		TargetID   string `form:"targetId"`
		ActorRole  string `form:"actorRole"`
		From       string `form:"from"`
		To         string `form:"to"`
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
	entries, err := s.audit.List(c.Request.Context(), auditdomain.ListFilter{
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		ActorRole:  strings.ToLower(strings.TrimSpace(query.ActorRole)),
		From:       from,
		To:         to,
		BeforeID:   beforeID,
		Limit:      limit + 1,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, info := pagination.Page(entries, limit, func(e auditdomain.Entry) snowflake.ID { return e.ID })
	c.JSON(http.StatusOK, gin.H{"data": page, "pageInfo": info})
}
