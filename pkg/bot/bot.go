// Package bot holds the scaffolding shared by every bot run: the run log
// header, log file placement and progress reporting.
package bot

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/soundprediction/go-biohub/pkg/botlog"
)

// TimestampLayout renders header timestamps.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Metadata describes a bot and is copied into every run header.
type Metadata struct {
	Name       string
	Maintainer string
	Tags       []string
	Properties []string
	RunName    string
	Domain     string
	// BotName is set when several runs share one bot, e.g. YeastBot.
	BotName string
}

// Header builds the run header. An empty runID is derived from now.
func (m Metadata) Header(runID string, now time.Time, releases map[string]botlog.SourceRelease) botlog.Header {
	if runID == "" {
		runID = botlog.RunID(now)
	}
	return botlog.Header{
		BotName:    m.BotName,
		Name:       m.Name,
		RunID:      runID,
		RunName:    m.RunName,
		Domain:     m.Domain,
		Release:    releases,
		Timestamp:  now.Format(TimestampLayout),
		Maintainer: m.Maintainer,
		Tags:       m.Tags,
		Properties: m.Properties,
	}
}

// OpenLog creates <dir>/<bot>-<run_id>.log with the header as first line.
// Runs sharing a bot name are told apart by their run name, as in
// YeastBot_gene-<run_id>.log.
func OpenLog(dir string, h botlog.Header) (*botlog.Writer, error) {
	if dir == "" {
		dir = "./logs"
	}
	bot := h.Bot()
	if h.BotName != "" && h.RunName != "" {
		bot += "_" + h.RunName
	}
	name := botlog.LogName(bot, h.RunID)
	h.LogName = name
	w, err := botlog.Open(dir, name, h)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return w, nil
}

// Bar is a nil-safe progress bar.
type Bar struct {
	pb *pb.ProgressBar
}

// NewBar starts a bar on stderr, or returns a silent bar when disabled.
func NewBar(total int64, enabled bool) *Bar {
	return NewBarTo(os.Stderr, total, enabled)
}

// NewBarTo starts a bar writing to w.
func NewBarTo(w io.Writer, total int64, enabled bool) *Bar {
	if !enabled {
		return &Bar{}
	}
	bar := pb.New64(total)
	bar.SetWriter(w)
	bar.Start()
	return &Bar{pb: bar}
}

// Increment advances the bar by one.
func (b *Bar) Increment() {
	if b != nil && b.pb != nil {
		b.pb.Increment()
	}
}

// Finish stops the bar.
func (b *Bar) Finish() {
	if b != nil && b.pb != nil {
		b.pb.Finish()
	}
}
