package models

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error   string `json:"error" example:"not_found"`
	Message string `json:"message" example:"Task not found"`
}

// MessageResponse is returned by operations without a resource body.
type MessageResponse struct {
	Message string `json:"message" example:"Task removed"`
}
