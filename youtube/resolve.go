package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/models"
)

var videoIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// pathPrefixes lists path forms that carry the id as the following segment.
var pathPrefixes = []string{"/embed/", "/shorts/", "/live/", "/v/"}

// ValidVideoID reports whether id has the shape of a YouTube video id.
func ValidVideoID(id string) bool {
	return videoIDRE.MatchString(id)
}

// Resolve extracts a video reference from a bare id or any supported YouTube URL form.
// Accepted, in order: bare id, watch?v=ID, youtu.be/ID, /embed/ID, /shorts/ID.
func Resolve(input string) (models.VideoReference, error) {
	const op = "youtube.Resolve"

	input = strings.TrimSpace(input)
	if input == "" {
		return models.VideoReference{}, errors.InvalidURL(op, nil, "A YouTube URL or video ID is required")
	}

	if ValidVideoID(input) {
		return models.VideoReference{ID: input}, nil
	}

	candidate, ok := candidateFromURL(input)
	if !ok {
		return models.VideoReference{}, errors.InvalidURL(op, nil, "Invalid or unsupported YouTube URL: "+input)
	}
	if !ValidVideoID(candidate) {
		return models.VideoReference{}, errors.InvalidURL(op, nil, "Invalid YouTube video ID in URL: "+input)
	}

	return models.VideoReference{ID: candidate}, nil
}

func candidateFromURL(raw string) (string, bool) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case youtubeHosts[host]:
		if v, ok := u.Query()["v"]; ok {
			return first(v), true
		}
		for _, prefix := range pathPrefixes {
			if rest, found := strings.CutPrefix(u.Path, prefix); found {
				return firstSegment(rest), true
			}
		}
	case host == "youtu.be" || host == "www.youtu.be":
		return firstSegment(strings.TrimPrefix(u.Path, "/")), true
	}

	return "", false
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
