package enums

import "strings"

type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

func ParseMediaKind(raw string) (MediaKind, bool) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaKindPhoto:
		return MediaKindPhoto, true
	case MediaKindVideo:
		return MediaKindVideo, true
	default:
		return "", false
	}
}
