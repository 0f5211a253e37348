package media

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shelfscan/backend/internal/domain"
)

// Classify builds a media item, deciding its kind from the payload bytes.
// The declared MIME type (from an upload header) is only trusted when
// sniffing is inconclusive or reports a container that browsers also use
// for audio-only recordings.
func Classify(filename, declared string, payload []byte) domain.MediaItem {
	declared = baseType(declared)
	detected := baseType(mimetype.Detect(payload).String())

	mimeType := detected
	if shouldTrustDeclared(detected, declared) {
		mimeType = declared
	}

	return domain.MediaItem{
		Filename: filename,
		Kind:     KindOf(mimeType),
		MIMEType: mimeType,
		Payload:  payload,
	}
}

// KindOf maps a MIME type onto a media kind
func KindOf(mimeType string) domain.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.MediaImage
	case strings.HasPrefix(mimeType, "audio/"):
		return domain.MediaAudio
	default:
		return domain.MediaUnknown
	}
}

func shouldTrustDeclared(detected, declared string) bool {
	if declared == "" || declared == "application/octet-stream" {
		return false
	}
	if KindOf(declared) == domain.MediaUnknown {
		return false
	}
	switch detected {
	case "", "application/octet-stream", "text/plain":
		return true
	case "video/webm", "video/mp4", "video/ogg", "application/ogg":
		// MediaRecorder voice memos arrive in video containers
		return KindOf(declared) == domain.MediaAudio
	}
	return false
}

// baseType drops MIME parameters like "; codecs=opus"
func baseType(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
