package models

// ErrorDetail carries a stable machine-readable code alongside the message.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}
