// Package utils provides small helpers shared by the bots and the hub.
//
// This package contains:
//   - Date and time utilities (datetime.go)
//   - Identifier validation (validation.go)
//   - Slice and environment helpers (helpers.go)
package utils
