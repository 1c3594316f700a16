package botlog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed run log line.
type Entry struct {
	Level      string    `json:"level"`
	Time       time.Time `json:"time"`
	ExternalID string    `json:"external_id"`
	Msg        string    `json:"msg"`
	WDID       string    `json:"wdid"`
	Prop       string    `json:"prop"`
}

// Action is what the report stores: the level for errors, the message otherwise.
func (e Entry) Action() string {
	if e.Level == LevelError {
		return LevelError
	}
	return e.Msg
}

// ParseFile reads the header and every entry of a run log.
func ParseFile(path string) (Header, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a run log from r.
func Parse(r io.Reader) (Header, []Entry, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return Header{}, nil, err
	}
	header, err := ParseHeader(first)
	if err != nil {
		return header, nil, err
	}

	cr := csv.NewReader(br)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var entries []Entry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return header, entries, fmt.Errorf("failed to read entry: %w", err)
		}
		entry, err := entryFromRecord(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return header, entries, fmt.Errorf("line %d: %w", line+1, err)
		}
		entries = append(entries, entry)
	}
	return header, entries, nil
}

func entryFromRecord(rec []string) (Entry, error) {
	if len(rec) < 6 {
		return Entry{}, fmt.Errorf("expected 6 fields, got %d", len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	t, err := time.ParseInLocation(TimeLayout, rec[1], time.Local)
	if err != nil {
		return Entry{}, fmt.Errorf("bad time %q: %w", rec[1], err)
	}
	return Entry{
		Level:      rec[0],
		Time:       t,
		ExternalID: rec[2],
		Msg:        rec[3],
		WDID:       rec[4],
		Prop:       rec[5],
	}, nil
}

// Summary counts the actions of a run.
type Summary struct {
	Actions map[string]int `json:"actions"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Errors  []Entry        `json:"errors,omitempty"`
}

// Summarize counts actions and collects error entries.
func Summarize(entries []Entry) Summary {
	s := Summary{Actions: make(map[string]int)}
	for _, e := range entries {
		s.Actions[e.Action()]++
		switch {
		case e.Level == LevelError:
			s.Errors = append(s.Errors, e)
		case e.Msg == ActionCreate:
			s.Created++
		case e.Msg == ActionUpdate:
			s.Updated++
		case e.Msg == ActionSkip:
			s.Skipped++
		}
	}
	return s
}

// String renders the summary for terminal output.
func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Number of items updated: %d\n", s.Updated)
	fmt.Fprintf(&sb, "Number of items created: %d\n", s.Created)
	if len(s.Errors) == 0 {
		sb.WriteString("Errors: none\n")
		return sb.String()
	}
	sb.WriteString("Errors:\n")
	errs := append([]Entry(nil), s.Errors...)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Msg < errs[j].Msg })
	for _, e := range errs {
		fmt.Fprintf(&sb, "  %s %s %s %s\n", e.Time.Format(TimeLayout), e.Msg, e.ExternalID, e.WDID)
	}
	return sb.String()
}
