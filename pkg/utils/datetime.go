package utils

import (
	"fmt"
	"strings"
	"time"
)

// FileDateLayout is the day-month-year format of release files, e.g. 03-NOV-16.
// Month names are matched case-insensitively.
const FileDateLayout = "02-Jan-06"

// ParseFileDate parses a release file date such as 03-NOV-16.
func ParseFileDate(s string) (time.Time, error) {
	t, err := time.Parse(FileDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid file date %q: %w", s, err)
	}
	return t, nil
}
