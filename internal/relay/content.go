package relay

import (
	"strings"
)

type mediaFormat struct {
	family      string
	contentType string
	extension   string
}

var mediaFormats = map[MediaType]mediaFormat{
	MediaVideo: {family: "video", contentType: "video/mp4", extension: ".mp4"},
	MediaAudio: {family: "audio", contentType: "audio/mpeg", extension: ".mp3"},
	MediaPhoto: {family: "image", contentType: "image/jpeg", extension: ".jpg"},
}

// DefaultContentType is used when the upstream declares no content type.
const DefaultContentType = "application/octet-stream"

// ResolveContentType returns the reply content type and filename extension.
//
// The upstream content type is kept when it already belongs to the media
// family of the hint (video/webm stays video/webm for a video); otherwise a
// known hint forces its canonical type. Unknown hints keep the upstream type
// and add no extension.
func ResolveContentType(upstream string, mediaType MediaType) (contentType, extension string) {
	contentType = upstream
	if contentType == "" {
		contentType = DefaultContentType
	}

	format, ok := mediaFormats[mediaType]
	if !ok {
		return contentType, ""
	}
	if !strings.Contains(strings.ToLower(contentType), format.family) {
		contentType = format.contentType
	}

	return contentType, format.extension
}
