// Package types holds the JSON envelopes every HTTP response is wrapped in.
package types

// SuccessEnvelope is {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// PageEnvelope adds the cursor for the next page; it is omitted on the last.
type PageEnvelope struct {
	Data       any    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ErrorEnvelope is {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError carries a stable machine code from pkg/errors and a message safe
// to show callers.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
