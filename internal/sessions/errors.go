package sessions

import "errors"

var (
	ErrNotFound        = errors.New("session not found")
	ErrInvalidWebsite  = errors.New("invalid website url")
	ErrWebsiteRequired = errors.New("website must be saved before uploading a document")
	ErrWrongStep       = errors.New("action not valid for the current step")
	ErrCompleted       = errors.New("session already completed")
	ErrUpstream        = errors.New("pipeline backend unavailable")
)

const (
	ErrorCodeValidation = "validation_error"
	ErrorCodeWrongStep  = "wrong_step"
	ErrorCodeNotFound   = "not_found"
	ErrorCodeUpstream   = "upstream_error"
	ErrorCodeInternal   = "internal_error"
)
