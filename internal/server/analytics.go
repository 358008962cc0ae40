package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/settlement/internal/analytics/domain"
)

const defaultAnalyticsWindow = 30 * 24 * time.Hour

func (s *Server) GetAnalytics(c *gin.Context) {
	var query struct {
		StartDate string `form:"startDate"`
		EndDate   string `form:"endDate"`
		SellerID  string `form:"sellerId"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	start, err := parseOptionalTime(query.StartDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("startDate", "invalid_start_date", "invalid startDate"))
		return
	}
	end, err := parseOptionalTime(query.EndDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("endDate", "invalid_end_date", "invalid endDate"))
		return
	}

	// Without bounds the window is the trailing 30 days.
	req := analyticsdomain.Request{SellerID: strings.TrimSpace(query.SellerID)}
	switch {
	case end != nil:
		req.End = *end
	default:
		req.End = time.Now().UTC()
	}
	switch {
	case start != nil:
		req.Start = *start
	default:
		req.Start = req.End.Add(-defaultAnalyticsWindow)
	}

	resp, err := s.analytics.GetAnalytics(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
