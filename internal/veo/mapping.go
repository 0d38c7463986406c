package veo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
)

// ToSource maps the prompt, seed image and source video of p.
func ToSource(p generation.RequestPayload) *genai.GenerateVideosSource {
	src := &genai.GenerateVideosSource{
		Prompt: p.Prompt,
		Image:  toImage(p.Image),
	}
	if p.Video != nil {
		src.Video = &genai.Video{URI: p.Video.URI, MIMEType: p.Video.MIMEType}
	}
	return src
}

// ToConfig maps the generation options of p.
func ToConfig(p generation.RequestPayload) *genai.GenerateVideosConfig {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: int32(p.NumberOfVideos),
		AspectRatio:    p.AspectRatio,
		Resolution:     p.Resolution,
		LastFrame:      toImage(p.LastFrame),
	}
	for _, ref := range p.ReferenceImages {
		img := ref.Image
		cfg.ReferenceImages = append(cfg.ReferenceImages, &genai.VideoGenerationReferenceImage{
			Image:         toImage(&img),
			ReferenceType: referenceType(ref.Type),
		})
	}
	return cfg
}

func toImage(img *generation.ImageAsset) *genai.Image {
	if img == nil {
		return nil
	}
	return &genai.Image{ImageBytes: img.Data, MIMEType: img.MIMEType}
}

func referenceType(t generation.ReferenceType) genai.VideoGenerationReferenceType {
	switch t {
	case generation.ReferenceTypeAsset:
		return genai.VideoGenerationReferenceTypeAsset
	default:
		return genai.VideoGenerationReferenceType(strings.ToUpper(string(t)))
	}
}

// FromOperation maps a genai operation snapshot.
func FromOperation(op *genai.GenerateVideosOperation) *generation.Operation {
	out := &generation.Operation{Name: op.Name, Done: op.Done}
	if len(op.Error) > 0 {
		out.ErrorCode, out.ErrorMessage = operationError(op.Error)
	}
	if op.Response == nil {
		return out
	}
	for _, gv := range op.Response.GeneratedVideos {
		if gv == nil || gv.Video == nil {
			continue
		}
		out.Videos = append(out.Videos, generation.VideoHandle{URI: gv.Video.URI, MIMEType: gv.Video.MIMEType})
	}
	out.FilteredCount = int(op.Response.RAIMediaFilteredCount)
	out.FilteredReasons = op.Response.RAIMediaFilteredReasons
	return out
}

// operationError reads the google.rpc.Status shaped error of an operation.
func operationError(m map[string]any) (int, string) {
	var code int
	switch v := m["code"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	case int32:
		code = int(v)
	case int64:
		code = int(v)
	}
	msg, _ := m["message"].(string)
	if msg == "" {
		msg = fmt.Sprint(m)
	}
	return code, msg
}

// MapError turns credential related API errors into
// *generation.AuthRejectedError. Other errors are returned unchanged.
func MapError(err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		return err
	}

	msg := strings.ToLower(apiErr.Message)
	status := strings.ToUpper(apiErr.Status)

	var reason generation.AuthReason
	switch {
	case strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "api key expired"):
		reason = generation.AuthInvalidKey
	case apiErr.Code == http.StatusNotFound && strings.Contains(msg, "entity was not found"):
		reason = generation.AuthEntityNotFound
	case apiErr.Code == http.StatusUnauthorized,
		apiErr.Code == http.StatusForbidden,
		status == "PERMISSION_DENIED",
		status == "UNAUTHENTICATED":
		reason = generation.AuthPermissionDenied
	default:
		return err
	}

	return &generation.AuthRejectedError{
		Reason:  reason,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Err:     err,
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
