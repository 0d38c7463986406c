// Package server provides the HTTP server for the video studio.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// ImageInput is an inline image in a request.
type ImageInput struct {
	// Data is the base64-encoded image.
	Data string `json:"data" validate:"required,base64"`
	// MIMEType is detected from the content when empty.
	MIMEType string `json:"mime_type,omitempty" validate:"omitempty,startswith=image/"`
}

// VideoInput references a video on the remote service.
type VideoInput struct {
	URI      string `json:"uri" validate:"required,url"`
	MIMEType string `json:"mime_type,omitempty"`
}

// GenerateRequest is the HTTP request body for starting a generation.
type GenerateRequest struct {
	// Mode is one of TEXT_TO_VIDEO (default), FRAMES_TO_VIDEO,
	// REFERENCES_TO_VIDEO, SOCIAL_PROMO and EXTEND_VIDEO.
	Mode   string `json:"mode" validate:"omitempty,oneof=TEXT_TO_VIDEO FRAMES_TO_VIDEO REFERENCES_TO_VIDEO SOCIAL_PROMO EXTEND_VIDEO"`
	Prompt string `json:"prompt" validate:"max=4000"`
	// Model, Resolution and AspectRatio fall back to the server defaults.
	Model       string `json:"model,omitempty"`
	Resolution  string `json:"resolution,omitempty" validate:"omitempty,oneof=720p 1080p"`
	AspectRatio string `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16"`

	// FRAMES_TO_VIDEO
	StartFrame *ImageInput `json:"start_frame,omitempty"`
	EndFrame   *ImageInput `json:"end_frame,omitempty"`
	Looping    bool        `json:"looping,omitempty"`

	// REFERENCES_TO_VIDEO
	References []ImageInput `json:"references,omitempty" validate:"max=3,dive"`

	// SOCIAL_PROMO
	PromoText    string      `json:"promo_text,omitempty" validate:"max=200"`
	PromoPrice   string      `json:"promo_price,omitempty" validate:"max=200"`
	PromoPercent *int        `json:"promo_percent,omitempty" validate:"omitempty,min=0,max=100"`
	Poster       *ImageInput `json:"poster,omitempty"`

	// EXTEND_VIDEO
	InputVideo *VideoInput `json:"input_video,omitempty"`
}

// ExtendRequest is the HTTP request body for extending the current video.
type ExtendRequest struct {
	Prompt string `json:"prompt" validate:"max=4000"`
}

// CredentialRequest is the HTTP request body for selecting an API key.
type CredentialRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// ExportRequest is the HTTP request body for exporting the current video.
type ExportRequest struct {
	// Target is "local" (default) or "s3".
	Target string `json:"target" validate:"omitempty,oneof=local s3"`
}

// AttemptResponse is returned when a generation attempt starts.
type AttemptResponse struct {
	// Status is the session status after the attempt started.
	Status string `json:"status"`
	// Mode is the mode being generated.
	Mode string `json:"mode"`
}

// CredentialResponse is returned after selecting an API key.
type CredentialResponse struct {
	Selected bool `json:"selected"`
	// Resumed is true when a configuration waiting for the key was started.
	Resumed bool `json:"resumed"`
}

// ConfigSummary describes a generation configuration without its image bytes.
type ConfigSummary struct {
	Mode        string `json:"mode"`
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// VideoResponse describes the video on display.
type VideoResponse struct {
	// URL serves the video bytes from this server.
	URL         string `json:"url"`
	Handle      string `json:"handle"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	RemoteURI   string `json:"remote_uri"`
}

// SessionResponse is the HTTP response for the session state.
type SessionResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	// CredentialSelected reports whether an API key is available.
	CredentialSelected bool `json:"credential_selected"`
	// CredentialPrompt is true while the user is asked to select a key.
	CredentialPrompt bool           `json:"credential_prompt"`
	Pending          *ConfigSummary `json:"pending,omitempty"`
	Last             *ConfigSummary `json:"last,omitempty"`
	Video            *VideoResponse `json:"video,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ExportResponse is the HTTP response after exporting a video.
type ExportResponse struct {
	Target string `json:"target"`
	// Location is a file path for local exports and a URL for S3 exports.
	Location string `json:"location"`
	Size     int    `json:"size"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
