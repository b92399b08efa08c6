package importjob

import "errors"

// Sentinel errors for the import lifecycle service layer.
var (
	ErrNotFound        = errors.New("import not found")
	ErrWrongSite       = errors.New("import belongs to a different site")
	ErrImportActive    = errors.New("cannot delete active import")
	ErrAlreadyTerminal = errors.New("import already in a terminal state")
	ErrEmptyBatch      = errors.New("batch contains no events")
	ErrInvalidWindow   = errors.New("historical window months must be 6, 24, or 60")
)
