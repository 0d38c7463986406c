package generation

// ReferenceType tags how the remote service should use a reference image.
type ReferenceType string

// ReferenceTypeAsset marks an image as a content/style asset.
const ReferenceTypeAsset ReferenceType = "asset"

// ReferenceImage is one entry of the reference list.
type ReferenceImage struct {
	Image ImageAsset
	Type  ReferenceType
}

// RequestPayload is the transport-neutral request sent to the remote service.
// Optional fields are left zero when they do not apply.
type RequestPayload struct {
	Model          string
	Prompt         string
	NumberOfVideos int
	Resolution     string
	// AspectRatio is empty for extension requests.
	AspectRatio string

	// Image is the seed image (start frame or promo poster).
	Image *ImageAsset
	// LastFrame pins the final frame.
	LastFrame *ImageAsset
	// Video is the source video for extension.
	Video *VideoHandle

	ReferenceImages []ReferenceImage
}
