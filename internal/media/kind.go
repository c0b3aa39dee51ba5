package media

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the resolved classification of a media locator: whether it
// points at a video, and the file extension its cache entry should use.
type Kind struct {
	IsVideo   bool
	Extension string
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
}

// Substring heuristics used as a last-resort video signal when neither
// the locator extension nor the content-type header settles it. Real
// scraped URLs are frequently extensionless blob endpoints.
var videoPathPatterns = []string{
	"/video/",
	"/videos/",
	"video.twimg.com",
	"v.redd.it",
	"/v1/media/",
}

var extensionByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// ResolveKind determines a locator's media kind and cache extension.
// Classification degrades through three independent signal sources:
// the locator's own extension, the HTTP content-type (if supplied),
// and finally path-pattern heuristics. Anything that matches none of
// them is treated as an image. Extension resolution is independent of
// classification: the locator's extension wins when present, then the
// content-type mapping, then a per-class default ('.bin' when the
// content-type is absent or unrecognized entirely).
func ResolveKind(locator string, headerContentType string) Kind {
	contentType := normalizeContentType(headerContentType)
	locatorExt := locatorExtension(locator)

	isVideo := false
	switch {
	case videoExtensions[locatorExt]:
		isVideo = true
	case strings.HasPrefix(contentType, "video/"):
		isVideo = true
	case strings.HasPrefix(contentType, "image/"):
		isVideo = false
	default:
		isVideo = matchesVideoPattern(locator)
	}

	extension := locatorExt
	if extension == "" {
		if mapped, ok := extensionByContentType[contentType]; ok {
			extension = mapped
		} else if strings.HasPrefix(contentType, "image/") {
			extension = ".jpg"
		} else if strings.HasPrefix(contentType, "video/") {
			extension = ".mp4"
		} else {
			extension = ".bin"
		}
	}

	return Kind{IsVideo: isVideo, Extension: extension}
}

func normalizeContentType(headerContentType string) string {
	// Strip any parameters (e.g. 'image/png; charset=binary')
	contentType, _, _ := strings.Cut(headerContentType, ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}

// locatorExtension extracts the extension from the locator's URL path,
// ignoring query strings. A trailing dot or unparseable locator yields
// the empty string.
func locatorExtension(locator string) string {
	parsed, err := url.Parse(locator)
	if err != nil {
		return strings.ToLower(path.Ext(locator))
	}

	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "." {
		return ""
	}

	return ext
}

func matchesVideoPattern(locator string) bool {
	lowered := strings.ToLower(locator)
	for _, pattern := range videoPathPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}

	return false
}
