package extract

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the extraction service answers without a body.
var ErrEmptyResponse = errors.New("extraction service returned an empty response")

// Category is a human readable class of extraction service failure.
type Category string

const (
	CategoryInvalidArgument   Category = "INVALID_ARGUMENT"
	CategoryPermissionDenied  Category = "PERMISSION_DENIED"
	CategoryNotFound          Category = "NOT_FOUND"
	CategoryResourceExhausted Category = "RESOURCE_EXHAUSTED"
	CategoryInternal          Category = "INTERNAL"
	CategoryUnknown           Category = "UNKNOWN"
)

// Classify maps an extraction service status code to its category.
func Classify(code int) Category {
	switch {
	case code == 400:
		return CategoryInvalidArgument
	case code == 403:
		return CategoryPermissionDenied
	case code == 404:
		return CategoryNotFound
	case code == 429:
		return CategoryResourceExhausted
	case code >= 500:
		return CategoryInternal
	default:
		return CategoryUnknown
	}
}

// Description explains the category to a person reading the run outcome.
func (c Category) Description() string {
	switch c {
	case CategoryInvalidArgument:
		return "There is a typo, or a missing required field in your request."
	case CategoryPermissionDenied:
		return "The API key does not have permission to use the model."
	case CategoryNotFound:
		return "The requested resource was not found."
	case CategoryResourceExhausted:
		return "You have exceeded your quota limits."
	case CategoryInternal:
		return "An internal server error occurred. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// APIError is an application-level error reported by the extraction service.
type APIError struct {
	Message string
	Code    int
}

func (e *APIError) Error() string {
	c := e.Category()
	if e.Message == "" {
		return fmt.Sprintf("%s (%d): %s", c, e.Code, c.Description())
	}
	return fmt.Sprintf("%s (%d): %s %s", c, e.Code, c.Description(), e.Message)
}

// Category returns the classified category of the error code.
func (e *APIError) Category() Category {
	return Classify(e.Code)
}

// IsAPIError checks if an error is an extraction service API error.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
