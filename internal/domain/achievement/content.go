package achievement

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// Content limits, counted in runes after NFC normalisation.
const (
	MaxTitleLength    = 200
	MaxBodyLength     = 20000
	MaxFeedbackLength = 500
	MaxMediaRefs      = 20
)

// MediaRef is a reference to an uploaded blob, as returned by the blob store.
type MediaRef struct {
	URL  string
	Name string
	Size int64
}

// Content is the owner-supplied part of an achievement.
type Content struct {
	Title     string
	Body      string
	Type      Type
	MediaRefs []MediaRef
}

// NormalizeText trims s and converts it to Unicode NFC.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// TextLength returns the rune count of s.
func TextLength(s string) int {
	return utf8.RuneCountInString(s)
}

// Normalize returns a copy with normalised text fields.
func (c Content) Normalize() Content {
	out := Content{
		Title: NormalizeText(c.Title),
		Body:  NormalizeText(c.Body),
		Type:  c.Type,
	}
	for _, m := range c.MediaRefs {
		out.MediaRefs = append(out.MediaRefs, MediaRef{
			URL:  strings.TrimSpace(m.URL),
			Name: NormalizeText(m.Name),
			Size: m.Size,
		})
	}
	return out
}

// Validate checks the structural limits that apply to every save, drafts
// included. It expects normalised content.
func (c Content) Validate(op string) error {
	if !c.Type.IsValid() {
		return shared.Validation("achievement", op, "unknown achievement type %q", c.Type)
	}
	if n := TextLength(c.Title); n > MaxTitleLength {
		return shared.Validation("achievement", op, "title is %d characters, limit is %d", n, MaxTitleLength)
	}
	if n := TextLength(c.Body); n > MaxBodyLength {
		return shared.Validation("achievement", op, "body is %d characters, limit is %d", n, MaxBodyLength)
	}
	if len(c.MediaRefs) > MaxMediaRefs {
		return shared.Validation("achievement", op, "at most %d media references are allowed", MaxMediaRefs)
	}
	for i, m := range c.MediaRefs {
		if !isMediaURL(m.URL) {
			return shared.Validation("achievement", op, "mediaRefs[%d]: %q is not an absolute http(s) URL", i, m.URL)
		}
		if m.Size < 0 {
			return shared.Validation("achievement", op, "mediaRefs[%d]: size cannot be negative", i)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEDIA EXTRACTION
// ══════════════════════════════════════════════════════════════════════════════

var (
	markdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)
	htmlImage     = regexp.MustCompile(`(?i)<img\s[^>]*?src\s*=\s*["']([^"']+)["']`)
)

// EmbeddedMedia returns the media referenced inside body, in order of
// appearance. Only absolute http(s) URLs are kept.
func EmbeddedMedia(body string) []MediaRef {
	var refs []MediaRef
	for _, m := range markdownImage.FindAllStringSubmatch(body, -1) {
		if isMediaURL(m[2]) {
			refs = append(refs, MediaRef{URL: m[2], Name: strings.TrimSpace(m[1])})
		}
	}
	for _, m := range htmlImage.FindAllStringSubmatch(body, -1) {
		if isMediaURL(m[1]) {
			refs = append(refs, MediaRef{URL: m[1]})
		}
	}
	return refs
}

// AllMedia merges explicit references with the ones embedded in the body,
// dropping duplicate URLs. Explicit references win.
func (c Content) AllMedia() []MediaRef {
	seen := make(map[string]bool)
	var out []MediaRef
	for _, m := range append(append([]MediaRef(nil), c.MediaRefs...), EmbeddedMedia(c.Body)...) {
		if seen[m.URL] {
			continue
		}
		seen[m.URL] = true
		if m.Name == "" {
			m.Name = mediaName(m.URL)
		}
		out = append(out, m)
	}
	return out
}

// Attachments builds the attachment set for achievementID.
func (c Content) Attachments(achievementID string, newID func() string) []Attachment {
	media := c.AllMedia()
	out := make([]Attachment, 0, len(media))
	for _, m := range media {
		out = append(out, Attachment{
			ID:            newID(),
			AchievementID: achievementID,
			URL:           m.URL,
			Name:          m.Name,
			Size:          m.Size,
		})
	}
	return out
}

func isMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func mediaName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return u.Host
	}
	return name
}
