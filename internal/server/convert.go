package server

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/h2non/filetype"

	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/blob"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/generation"
	"github.com/r3gb0b2/VIDEO-RAFAEL/internal/session"
)

// ErrUnsupportedImage is returned when an image's type cannot be determined.
var ErrUnsupportedImage = errors.New("server: unsupported image type")

// Defaults are the generation settings used when a request omits them.
type Defaults struct {
	Model       string
	Resolution  string
	AspectRatio string
}

// toConfig maps a request onto a generation configuration.
func toConfig(req GenerateRequest, d Defaults) (generation.Config, error) {
	mode, ok := generation.ParseMode(req.Mode)
	if !ok {
		return generation.Config{}, fmt.Errorf("unknown mode %q", req.Mode)
	}

	cfg := generation.Config{
		Prompt:      req.Prompt,
		Model:       orDefault(req.Model, d.Model),
		Resolution:  orDefault(req.Resolution, d.Resolution),
		AspectRatio: orDefault(req.AspectRatio, d.AspectRatio),
	}

	switch mode {
	case generation.ModeTextToVideo:
		cfg.Variant = generation.TextToVideo{}

	case generation.ModeFramesToVideo:
		start, err := decodeImage("start_frame", req.StartFrame)
		if err != nil {
			return cfg, err
		}
		end, err := decodeImage("end_frame", req.EndFrame)
		if err != nil {
			return cfg, err
		}
		cfg.Variant = generation.FramesToVideo{StartFrame: start, EndFrame: end, Looping: req.Looping}

	case generation.ModeReferencesToVideo:
		refs := make([]generation.ImageAsset, 0, len(req.References))
		for i := range req.References {
			img, err := decodeImage(fmt.Sprintf("references[%d]", i), &req.References[i])
			if err != nil {
				return cfg, err
			}
			refs = append(refs, *img)
		}
		cfg.Variant = generation.ReferencesToVideo{References: refs}

	case generation.ModeSocialPromo:
		poster, err := decodeImage("poster", req.Poster)
		if err != nil {
			return cfg, err
		}
		cfg.Variant = generation.SocialPromo{
			Text:    req.PromoText,
			Price:   req.PromoPrice,
			Percent: req.PromoPercent,
			Poster:  poster,
		}

	case generation.ModeExtendVideo:
		if req.InputVideo == nil {
			return cfg, &generation.ValidationError{Field: "input_video", Message: "input video required to extend"}
		}
		cfg.Resolution = session.ExtendResolution
		cfg.Variant = generation.ExtendVideo{Input: &generation.VideoHandle{
			URI:      req.InputVideo.URI,
			MIMEType: req.InputVideo.MIMEType,
		}}
	}

	return cfg, nil
}

// decodeImage decodes an optional inline image, detecting its MIME type
// from the content when the request does not carry one.
func decodeImage(field string, in *ImageInput) (*generation.ImageAsset, error) {
	if in == nil {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", field, err)
	}

	mimeType := in.MIMEType
	if mimeType == "" {
		if !filetype.IsImage(data) {
			return nil, fmt.Errorf("%s: %w", field, ErrUnsupportedImage)
		}
		kind, _ := filetype.Match(data)
		mimeType = kind.MIME.Value
	}

	return &generation.ImageAsset{Data: data, MIMEType: mimeType}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func summarize(cfg *generation.Config) *ConfigSummary {
	if cfg == nil {
		return nil
	}
	return &ConfigSummary{
		Mode:        string(cfg.Mode()),
		Prompt:      cfg.Prompt,
		Model:       cfg.Model,
		Resolution:  cfg.Resolution,
		AspectRatio: cfg.AspectRatio,
	}
}

func toSessionResponse(st session.State, credentialSelected bool) SessionResponse {
	resp := SessionResponse{
		Status:             string(st.Status),
		Error:              st.Error,
		ErrorKind:          string(st.ErrorKind),
		CredentialSelected: credentialSelected,
		CredentialPrompt:   st.Prompting,
		Pending:            summarize(st.Pending),
		Last:               summarize(st.Last),
		UpdatedAt:          st.UpdatedAt,
	}
	if st.Video != nil {
		resp.Video = &VideoResponse{
			URL:         "/blobs/" + blob.ID(st.Video.Handle),
			Handle:      st.Video.Handle,
			ContentType: st.Video.ContentType,
			Size:        st.Video.Size,
			RemoteURI:   st.Video.RemoteURI,
		}
	}
	return resp
}
