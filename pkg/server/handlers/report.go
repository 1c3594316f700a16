package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-biohub/pkg/report"
	"github.com/soundprediction/go-biohub/pkg/server/dto"
)

// ReportReader is the read side of the report store.
type ReportReader interface {
	Bots(ctx context.Context) ([]report.Bot, error)
	Bot(ctx context.Context, name string) (*report.Bot, error)
	BotRuns(ctx context.Context, runName string) ([]report.BotRun, error)
	BotRun(ctx context.Context, id int64) (*report.BotRun, error)
	Logs(ctx context.Context, f report.LogFilter) ([]report.Log, error)
}

// ReportHandler serves bots, runs and run logs.
type ReportHandler struct {
	reports ReportReader
}

// NewReportHandler creates a new report handler
func NewReportHandler(r ReportReader) *ReportHandler {
	return &ReportHandler{reports: r}
}

func fail(c *gin.Context, err error) {
	if errors.Is(err, report.ErrNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
		Code:    http.StatusInternalServerError,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid_request",
		Message: msg,
		Code:    http.StatusBadRequest,
	})
}

func runID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "run id must be a positive integer")
		return 0, false
	}
	return id, true
}

// ListBots handles GET /api/bots
func (h *ReportHandler) ListBots(c *gin.Context) {
	bots, err := h.reports.Bots(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if bots == nil {
		bots = []report.Bot{}
	}
	c.JSON(http.StatusOK, dto.BotList{Bots: bots, Total: len(bots)})
}

// GetBot handles GET /api/bots/:name
func (h *ReportHandler) GetBot(c *gin.Context) {
	b, err := h.reports.Bot(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ListRuns handles GET /api/runs
func (h *ReportHandler) ListRuns(c *gin.Context) {
	var q dto.RunQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	runs, err := h.reports.BotRuns(c.Request.Context(), q.RunName)
	if err != nil {
		fail(c, err)
		return
	}
	if runs == nil {
		runs = []report.BotRun{}
	}
	c.JSON(http.StatusOK, dto.RunList{Runs: runs, Total: len(runs)})
}

// GetRun handles GET /api/runs/:id
func (h *ReportHandler) GetRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	run, err := h.reports.BotRun(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// RunSummary handles GET /api/runs/:id/summary
func (h *ReportHandler) RunSummary(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	run, err := h.reports.BotRun(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	errs, err := h.reports.Logs(ctx, report.LogFilter{BotRun: id, Action: "ERROR", Limit: dto.DefaultLogLimit})
	if err != nil {
		fail(c, err)
		return
	}
	if errs == nil {
		errs = []report.Log{}
	}
	c.JSON(http.StatusOK, dto.RunSummary{
		ID:      run.ID,
		Bot:     run.Bot,
		RunID:   run.RunID,
		RunName: run.RunName,
		Actions: run.Actions,
		Errors:  errs,
	})
}

// ListLogs handles GET /api/logs
func (h *ReportHandler) ListLogs(c *gin.Context) {
	var q dto.LogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	logs, err := h.reports.Logs(c.Request.Context(), q.Filter())
	if err != nil {
		fail(c, err)
		return
	}
	if logs == nil {
		logs = []report.Log{}
	}
	c.JSON(http.StatusOK, dto.LogList{Logs: logs, Total: len(logs)})
}
