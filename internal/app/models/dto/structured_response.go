package dto

import "time"

// StructuredResponse is the envelope of every successful API response.
type StructuredResponse struct {
	Success   bool        `json:"success" example:"true"`
	Message   string      `json:"message" example:"Class setup updated successfully"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"requestId,omitempty" example:"3f0c9a52-5d0e-4b8e-9a55-0b0f1c1d2e3f"`
	Timestamp time.Time   `json:"timestamp" example:"2025-04-23T12:01:05.123Z"`
}

// NewStructuredResponse creates a standard structured API response
func NewStructuredResponse(data interface{}, message string) StructuredResponse {
	return StructuredResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// WithRequestID tags the response with the request correlation id.
func (r StructuredResponse) WithRequestID(id string) StructuredResponse {
	r.RequestID = id
	return r
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}
