package utils

import (
	"fmt"
	"regexp"
)

var qidPattern = regexp.MustCompile(`^Q[1-9][0-9]*$`)

// ValidateQID checks an item id such as Q42.
func ValidateQID(id string) error {
	if !qidPattern.MatchString(id) {
		return fmt.Errorf("invalid item id %q", id)
	}
	return nil
}

// ValidateRequired validates that all required fields are present and non-empty
func ValidateRequired(fields map[string]string) error {
	for fieldName, value := range fields {
		if value == "" {
			return fmt.Errorf("required field %q is missing or empty", fieldName)
		}
	}
	return nil
}
