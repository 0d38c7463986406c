package generation

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// DefaultSocialPromoTemplate is the prompt used for SOCIAL_PROMO requests.
// It is rendered with .Text, .Price and .Percent.
const DefaultSocialPromoTemplate = `Cinematic vertical social media promo. Over the background poster, the bold headline "{{.Text}}" blinks rhythmically in the center of the frame with a soft neon glow. Just below it, a subtitle reads "{{.Price}}" in clean white sans-serif type. Near the bottom, a sleek loading bar animates from empty and fills to {{.Percent}}% with smooth easing, and a label next to the bar reads "{{.Percent}}%". Subtle light sweeps across the text, gentle camera push-in, vibrant high-contrast colors, premium advertising look.`

// ErrInvalidTemplate is returned when a prompt template cannot be parsed or rendered.
var ErrInvalidTemplate = errors.New("generation: invalid prompt template")

// promoData is the data passed to the social promo template.
type promoData struct {
	Text    string
	Price   string
	Percent int
}

// Builder assembles request payloads. A Builder is immutable after
// construction and safe for concurrent use.
type Builder struct {
	promo *template.Template
}

// BuilderOption configures a Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	promoTemplate string
}

// WithSocialPromoTemplate overrides the social promo prompt template.
// An empty string keeps the default.
func WithSocialPromoTemplate(text string) BuilderOption {
	return func(o *builderOptions) {
		if strings.TrimSpace(text) != "" {
			o.promoTemplate = text
		}
	}
}

// NewBuilder parses the prompt templates and returns a Builder.
// The template is rendered once with the defaults to catch unknown fields early.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	o := builderOptions{promoTemplate: DefaultSocialPromoTemplate}
	for _, opt := range opts {
		opt(&o)
	}

	tmpl, err := template.New("social_promo").Option("missingkey=error").Parse(o.promoTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	b := &Builder{promo: tmpl}
	if _, err := b.renderPromo(SocialPromo{}); err != nil {
		return nil, err
	}
	return b, nil
}

var defaultBuilder = func() *Builder {
	b, err := NewBuilder()
	if err != nil {
		panic(err)
	}
	return b
}()

// Build assembles a payload with the default templates.
func Build(cfg Config) (RequestPayload, error) {
	return defaultBuilder.Build(cfg)
}

// Build translates cfg into a RequestPayload. It performs no I/O and never
// mutates cfg; the same cfg always yields an equal payload.
func (b *Builder) Build(cfg Config) (RequestPayload, error) {
	mode := cfg.Mode()

	p := RequestPayload{
		Model:          cfg.Model,
		NumberOfVideos: 1,
		Resolution:     cfg.Resolution,
	}
	// The remote service rejects an aspect ratio on extensions.
	if mode != ModeExtendVideo {
		p.AspectRatio = cfg.AspectRatio
	}

	prompt := cfg.Prompt
	if promo, ok := cfg.Variant.(SocialPromo); ok {
		rendered, err := b.renderPromo(promo)
		if err != nil {
			return RequestPayload{}, err
		}
		prompt = rendered
		if cfg.Prompt != "" {
			prompt += "\n\nAdditional details: " + cfg.Prompt
		}
	}
	if prompt != "" {
		p.Prompt = prompt
	}

	switch v := cfg.Variant.(type) {
	case SocialPromo:
		p.Image = copyImage(v.Poster)
	case FramesToVideo:
		p.Image = copyImage(v.StartFrame)
		end := v.EndFrame
		if v.Looping {
			end = v.StartFrame
		}
		p.LastFrame = copyImage(end)
	case ReferencesToVideo:
		if len(v.References) > 0 {
			refs := make([]ReferenceImage, 0, len(v.References))
			for _, img := range v.References {
				refs = append(refs, ReferenceImage{Image: img, Type: ReferenceTypeAsset})
			}
			p.ReferenceImages = refs
		}
	case ExtendVideo:
		if v.Input == nil || v.Input.URI == "" {
			return RequestPayload{}, &ValidationError{Field: "input_video", Message: "input video required to extend"}
		}
		in := *v.Input
		p.Video = &in
	}

	return p, nil
}

func (b *Builder) renderPromo(v SocialPromo) (string, error) {
	data := promoData{Text: v.Text, Price: v.Price, Percent: DefaultPromoPercent}
	if data.Text == "" {
		data.Text = DefaultPromoText
	}
	if data.Price == "" {
		data.Price = DefaultPromoPrice
	}
	if v.Percent != nil {
		data.Percent = *v.Percent
	}

	var sb strings.Builder
	if err := b.promo.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return sb.String(), nil
}

func copyImage(img *ImageAsset) *ImageAsset {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}
