package botlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoHeader is returned when a run log does not start with a # header line.
var ErrNoHeader = errors.New("expecting header in log file")

// Version is a release string that also accepts bare JSON numbers.
type Version string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("release must be a string or number: %w", err)
	}
	*v = Version(n.String())
	return nil
}

// SourceRelease describes the release of one data source used by a run.
type SourceRelease struct {
	ID        string  `json:"_id,omitempty"`
	Release   Version `json:"release"`
	WDID      string  `json:"wdid,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Header is the run metadata written as the first line of every run log.
type Header struct {
	BotName    string                   `json:"bot_name,omitempty"`
	Name       string                   `json:"name,omitempty"`
	RunID      string                   `json:"run_id"`
	RunName    string                   `json:"run_name,omitempty"`
	Domain     string                   `json:"domain,omitempty"`
	Release    map[string]SourceRelease `json:"release,omitempty"`
	Timestamp  string                   `json:"timestamp,omitempty"`
	Maintainer string                   `json:"maintainer,omitempty"`
	Tags       []string                 `json:"tags,omitempty"`
	Properties []string                 `json:"properties,omitempty"`
	LogName    string                   `json:"log_name,omitempty"`
}

// Bot returns the bot name, whichever key carried it.
func (h Header) Bot() string {
	if h.BotName != "" {
		return h.BotName
	}
	return h.Name
}

// Releases flattens the release map to source -> release.
func (h Header) Releases() map[string]string {
	out := make(map[string]string, len(h.Release))
	for src, r := range h.Release {
		out[src] = string(r.Release)
	}
	return out
}

func (h Header) line() (string, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	return "#" + string(data) + "\n", nil
}

// ParseHeader decodes a header line. Headers written by older tools with
// single quotes or True/None literals are repaired before decoding.
func ParseHeader(line string) (Header, error) {
	var h Header
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return h, ErrNoHeader
	}
	raw := strings.TrimSpace(line[1:])
	if err := json.Unmarshal([]byte(raw), &h); err == nil {
		return h, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return h, fmt.Errorf("failed to repair header: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &h); err != nil {
		return h, fmt.Errorf("failed to decode header: %w", err)
	}
	return h, nil
}

// RunID formats t the way run ids are named, e.g. 20161025_11:40.
func RunID(t time.Time) string {
	return t.Format("20060102_15:04")
}

// LogName returns "<bot>-<run id>.log".
func LogName(bot, runID string) string {
	return bot + "-" + runID + ".log"
}

// quote renders a message field on one line, doubling embedded quotes.
func quote(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
