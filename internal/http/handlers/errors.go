// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them programmatically, so renaming one is a breaking change.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeCenterUnresolved = "center_unresolved"
	ErrCodeSearchFailed     = "search_failed"
	ErrCodeSuggestFailed    = "suggest_failed"
	ErrCodeScrapeRunning    = "scrape_already_running"
)
