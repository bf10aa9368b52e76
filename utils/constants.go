package utils

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type contextKey string

// RequestIDKey is the context key holding the request id of the current call
const RequestIDKey contextKey = "request_id"
