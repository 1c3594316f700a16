package dto

import "github.com/soundprediction/go-biohub/pkg/report"

// RunQuery filters GET /api/runs.
type RunQuery struct {
	RunName string `form:"run_name"`
}

// LogQuery filters GET /api/logs.
type LogQuery struct {
	WDID   string `form:"wdid"`
	Action string `form:"action"`
	BotRun int64  `form:"bot_run" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=10000"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query for the report store. A missing limit means DefaultLogLimit.
func (q LogQuery) Filter() report.LogFilter {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLogLimit
	}
	return report.LogFilter{WDID: q.WDID, Action: q.Action, BotRun: q.BotRun, Limit: limit, Offset: q.Offset}
}

// DefaultLogLimit caps log listings.
const DefaultLogLimit = 1000

// BotList is returned by GET /api/bots.
type BotList struct {
	Bots  []report.Bot `json:"bots"`
	Total int          `json:"total"`
}

// RunList is returned by GET /api/runs.
type RunList struct {
	Runs  []report.BotRun `json:"runs"`
	Total int             `json:"total"`
}

// RunSummary is returned by GET /api/runs/:id/summary.
type RunSummary struct {
	ID      int64          `json:"id"`
	Bot     string         `json:"bot_name"`
	RunID   string         `json:"run_id"`
	RunName string         `json:"run_name"`
	Actions map[string]int `json:"actions"`
	Errors  []report.Log   `json:"errors"`
}

// LogList is returned by GET /api/logs.
type LogList struct {
	Logs  []report.Log `json:"logs"`
	Total int          `json:"total"`
}
