package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/service/reporting"
)

// Reporter computes finance summaries.
type Reporter interface {
	ParsePeriod(from, to string, now time.Time) (time.Time, time.Time, error)
	Summarize(ctx context.Context, start, end time.Time) (reporting.FinanceSummary, error)
}

// ReportHandler serves /api/reports.
type ReportHandler struct {
	reporter Reporter
	logger   *zap.Logger
}

// NewReportHandler constructs the report handler.
func NewReportHandler(reporter Reporter, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reporter: reporter, logger: logger}
}

// Finance answers GET /api/reports/finance?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *ReportHandler) Finance(c *gin.Context) {
	start, end, err := h.reporter.ParsePeriod(c.Query("from"), c.Query("to"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.reporter.Summarize(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
