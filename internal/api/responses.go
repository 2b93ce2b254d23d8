package api

// ErrorResponse is the uniform error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error" example:"no active subscription"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
