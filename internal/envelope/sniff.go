package envelope

import (
	"net/http"
	"strings"
)

// MediaCategory is the coarse content class of an encoded media payload.
type MediaCategory uint8

const (
	MediaUnknown MediaCategory = iota
	MediaAudio
	MediaImage
	MediaVideo
)

func (c MediaCategory) String() string {
	switch c {
	case MediaAudio:
		return "audio"
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// DetectMediaCategory sniffs the leading bytes of an encoded payload and maps
// the detected content type onto a coarse category. Ogg containers carry either
// audio or video; they are treated as audio, which is their dominant use here.
func DetectMediaCategory(data []byte) MediaCategory {
	if len(data) == 0 {
		return MediaUnknown
	}
	contentType := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		return MediaAudio
	case contentType == "application/ogg":
		return MediaAudio
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo
	}
	return MediaUnknown
}
