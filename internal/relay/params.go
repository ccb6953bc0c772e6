package relay

import (
	"strings"
)

// MediaType is the caller's hint about what kind of media is being fetched.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaPhoto MediaType = "photo"
)

// Params are the query parameters of a download request.
type Params struct {
	URL      string
	Filename string
	Type     MediaType
}

// ParseParams reads url, filename and type from query. Empty filename and
// type fall back to the given defaults; a missing url yields ErrMissingURL.
// Unrecognised types are kept as given.
func ParseParams(query map[string]string, defaultFilename string, defaultType MediaType) (Params, error) {
	params := Params{
		URL:      strings.TrimSpace(query["url"]),
		Filename: query["filename"],
		Type:     MediaType(query["type"]),
	}

	if params.URL == "" {
		return params, ErrMissingURL
	}
	if params.Filename == "" {
		params.Filename = defaultFilename
	}
	if params.Type == "" {
		params.Type = defaultType
	}

	return params, nil
}
