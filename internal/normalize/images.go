package normalize

import (
	"curator/internal/feeds"
	"curator/internal/fetch"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ImageExtractor returns an image URL for an item, or "" if it has none.
type ImageExtractor func(item feeds.Item) string

// DefaultExtractors is the order image sources are consulted in.
var DefaultExtractors = []ImageExtractor{
	PlatformThumbnail,
	MediaContentImage,
	MediaThumbnail,
	EncResource,
	EnclosureImage,
	InlineImage,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".ogv":  true,
}

// PlatformThumbnail is the media:group thumbnail used by video platforms.
func PlatformThumbnail(item feeds.Item) string {
	return first(item.GroupThumbnails)
}

// MediaContentImage is the first media:content that is an image or carries no type.
func MediaContentImage(item feeds.Item) string {
	for _, m := range item.MediaContents {
		medium := strings.ToLower(m.Medium)
		typ := strings.ToLower(m.Type)
		if medium == "image" || strings.HasPrefix(typ, "image/") || (medium == "" && typ == "") {
			return m.URL
		}
	}
	return ""
}

// MediaThumbnail is the first media:thumbnail.
func MediaThumbnail(item feeds.Item) string {
	return first(item.MediaThumbnails)
}

// EncResource is the first enc:enclosure resource.
func EncResource(item feeds.Item) string {
	return first(item.EncResources)
}

// EnclosureImage is the first enclosure that is untyped or typed as an image.
func EnclosureImage(item feeds.Item) string {
	for _, e := range item.Enclosures {
		typ := strings.ToLower(e.Type)
		if typ == "" || strings.HasPrefix(typ, "image/") {
			return e.URL
		}
	}
	return ""
}

// InlineImage is the first img in the item's HTML bodies.
func InlineImage(item feeds.Item) string {
	for _, body := range []string{item.Content, item.Encoded, item.Description} {
		if !strings.Contains(body, "<img") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		if src := strings.TrimSpace(doc.Find("img[src]").First().AttrOr("src", "")); src != "" {
			return src
		}
	}
	return ""
}

// ExtractImage runs the extractors in order and returns the first hit, resolved
// against the item link. A video file counts as no image.
func ExtractImage(item feeds.Item, extractors []ImageExtractor) string {
	for _, extract := range extractors {
		if img := strings.TrimSpace(extract(item)); img != "" {
			return acceptImage(item.Link, img)
		}
	}
	return ""
}

// acceptImage resolves img against base and rejects video files.
func acceptImage(base, img string) string {
	if img == "" {
		return ""
	}
	resolved := fetch.ResolveURL(base, img)
	if IsVideoURL(resolved) {
		return ""
	}
	return resolved
}

// IsVideoURL reports whether the URL path ends in a video file extension.
func IsVideoURL(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return videoExtensions[strings.ToLower(path.Ext(p))]
}

func first(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
