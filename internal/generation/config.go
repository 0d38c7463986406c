// Package generation turns a user-facing video generation configuration into
// a remote request payload and drives the long-running operation that
// produces the video: submit, poll until done, download, and register the
// bytes behind a revocable local handle.
package generation

// Mode identifies which kind of generation a Config asks for.
type Mode string

const (
	// ModeTextToVideo generates from the prompt alone.
	ModeTextToVideo Mode = "TEXT_TO_VIDEO"
	// ModeFramesToVideo animates between a start frame and an optional end frame.
	ModeFramesToVideo Mode = "FRAMES_TO_VIDEO"
	// ModeReferencesToVideo steers generation with auxiliary asset images.
	ModeReferencesToVideo Mode = "REFERENCES_TO_VIDEO"
	// ModeSocialPromo renders an animated promotional overlay from a fixed template.
	ModeSocialPromo Mode = "SOCIAL_PROMO"
	// ModeExtendVideo continues a previously generated video.
	ModeExtendVideo Mode = "EXTEND_VIDEO"
)

// ParseMode converts a wire value into a Mode.
// An empty string maps to ModeTextToVideo.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeTextToVideo:
		return ModeTextToVideo, true
	case ModeFramesToVideo, ModeReferencesToVideo, ModeSocialPromo, ModeExtendVideo:
		return Mode(s), true
	default:
		return "", false
	}
}

// Social promo overlay defaults, applied when the corresponding field is absent.
const (
	DefaultPromoText    = "INGRESSO PROMOCIONAL R$50"
	DefaultPromoPrice   = "EQUIPE CERTA"
	DefaultPromoPercent = 94
)

// ImageAsset is an image passed inline to the remote service.
type ImageAsset struct {
	Data     []byte
	MIMEType string
}

// VideoHandle describes a video that lives on the remote side. It is what a
// caller hands back in ExtendVideo to continue a previous result.
type VideoHandle struct {
	URI      string
	MIMEType string
}

// Variant carries the fields that only make sense for one Mode.
// The set of implementations is closed: TextToVideo, FramesToVideo,
// ReferencesToVideo, SocialPromo and ExtendVideo.
type Variant interface {
	Mode() Mode
	variant()
}

// TextToVideo is prompt-only generation.
type TextToVideo struct{}

// FramesToVideo seeds the video with a start frame and optionally pins the
// last frame. When Looping is set the start frame is reused as the last frame.
type FramesToVideo struct {
	StartFrame *ImageAsset
	EndFrame   *ImageAsset
	Looping    bool
}

// ReferencesToVideo attaches reference assets in order.
type ReferencesToVideo struct {
	References []ImageAsset
}

// SocialPromo fills the promotional prompt template. Empty Text and Price and
// a nil Percent fall back to the package defaults; an explicit zero percent is kept.
type SocialPromo struct {
	Text    string
	Price   string
	Percent *int
	Poster  *ImageAsset
}

// ExtendVideo continues the remote video described by Input.
type ExtendVideo struct {
	Input *VideoHandle
}

func (TextToVideo) Mode() Mode       { return ModeTextToVideo }
func (FramesToVideo) Mode() Mode     { return ModeFramesToVideo }
func (ReferencesToVideo) Mode() Mode { return ModeReferencesToVideo }
func (SocialPromo) Mode() Mode       { return ModeSocialPromo }
func (ExtendVideo) Mode() Mode       { return ModeExtendVideo }

func (TextToVideo) variant()       {}
func (FramesToVideo) variant()     {}
func (ReferencesToVideo) variant() {}
func (SocialPromo) variant()       {}
func (ExtendVideo) variant()       {}

// Config is one generation request as configured by the user.
// It is treated as immutable for the duration of an attempt.
type Config struct {
	Prompt      string
	Model       string
	Resolution  string
	AspectRatio string

	// Variant selects the mode. Nil means text-to-video.
	Variant Variant
}

// Mode reports the mode selected by the variant.
func (c Config) Mode() Mode {
	if c.Variant == nil {
		return ModeTextToVideo
	}
	return c.Variant.Mode()
}

// Percent returns a pointer to n, for filling SocialPromo.Percent inline.
func Percent(n int) *int {
	return &n
}
