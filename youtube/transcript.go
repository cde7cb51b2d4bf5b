package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/models"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	maxPlayerBody   = 6 * 1024 * 1024
	maxCaptionBody  = 8 * 1024 * 1024
)

// Fetcher retrieves caption transcripts through the Innertube player API.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	language   string
	timeout    time.Duration
	logger     *logrus.Logger
}

type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithBaseURL points the fetcher at a different Innertube host.
func WithBaseURL(baseURL string) Option {
	return func(f *Fetcher) {
		if baseURL != "" {
			f.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLanguage sets the preferred caption language code.
func WithLanguage(lang string) Option {
	return func(f *Fetcher) {
		if lang != "" {
			f.language = lang
		}
	}
}

// WithTimeout bounds a whole fetch (player lookup plus caption download).
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:  defaultBaseURL,
		language: defaultLanguage,
		timeout:  defaultTimeout,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: f.timeout}
	}
	return f
}

// Fetch returns the transcript and title of the referenced video. A single
// attempt is made; failures are terminal for the caller.
func (f *Fetcher) Fetch(ctx context.Context, ref models.VideoReference) (*models.TranscriptDocument, error) {
	const op = "youtube.Fetch"
	logger := f.logger.WithContext(ctx).WithField("video_id", ref.ID)

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	player, err := f.player(fetchCtx, ref.ID)
	if err != nil {
		return nil, f.transportError(ctx, op, err, "Failed to reach YouTube")
	}

	if ok, reason := player.playable(); !ok {
		logger.WithField("reason", reason).Info("Video is not playable")
		msg := "Video is unavailable"
		if reason != "" {
			msg += ": " + reason
		}
		return nil, errors.TranscriptUnavailable(op, nil, msg)
	}

	tracks := player.tracks()
	if len(tracks) == 0 {
		return nil, errors.TranscriptUnavailable(op, nil, fmt.Sprintf("Captions are disabled for video %s", ref.ID))
	}

	track, ok := pickBestTrack(tracks, f.language)
	if !ok {
		return nil, errors.TranscriptUnavailable(op, nil, fmt.Sprintf("No suitable captions found for language '%s'", f.language))
	}

	text, err := f.captions(fetchCtx, track.BaseURL)
	if err != nil {
		return nil, f.transportError(ctx, op, err, "Failed to download captions")
	}
	if text == "" {
		return nil, errors.TranscriptUnavailable(op, nil, fmt.Sprintf("Transcript is empty for video %s", ref.ID))
	}

	logger.WithFields(logrus.Fields{
		"language": track.LanguageCode,
		"kind":     track.Kind,
		"chars":    len(text),
	}).Debug("Transcript fetched")

	return &models.TranscriptDocument{
		VideoID: ref.ID,
		Title:   player.title(),
		Text:    text,
	}, nil
}

// transportError separates caller cancellation from genuine network failure.
func (f *Fetcher) transportError(ctx context.Context, op string, err error, message string) error {
	if ctx.Err() != nil {
		return errors.Canceled(op, ctx.Err())
	}
	return errors.Network(op, err, message)
}

func (f *Fetcher) player(ctx context.Context, videoID string) (*playerResponse, error) {
	body, err := json.Marshal(playerRequest{
		VideoID: videoID,
		Context: playerContext{
			Client: playerClient{
				ClientName:        "ANDROID",
				ClientVersion:     androidVersion,
				AndroidSdkVersion: 30,
				Hl:                f.language,
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode player request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+playerPath+"?prettyPrint=false", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build player request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", androidUserAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", androidVersion)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "player request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Errorf("player request: http %d", resp.StatusCode)
	}

	var player playerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPlayerBody)).Decode(&player); err != nil {
		return nil, pkgerrors.Wrap(err, "decode player response")
	}
	return &player, nil
}

func (f *Fetcher) captions(ctx context.Context, baseURL string) (string, error) {
	captionURL, err := json3URL(baseURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, captionURL, nil)
	if err != nil {
		return "", pkgerrors.Wrap(err, "build caption request")
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Referer", referer)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, "caption request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.Errorf("caption request: http %d", resp.StatusCode)
	}

	var parsed json3Captions
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCaptionBody)).Decode(&parsed); err != nil {
		return "", pkgerrors.Wrap(err, "decode captions")
	}
	return joinCaptions(parsed), nil
}

// json3URL rewrites a caption track URL to request the json3 format.
func json3URL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", pkgerrors.Wrap(err, "parse caption url")
	}
	q := u.Query()
	q.Set("fmt", "json3")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// joinCaptions concatenates caption segments into a single whitespace-normalized block.
func joinCaptions(c json3Captions) string {
	var sb strings.Builder
	for _, event := range c.Events {
		for _, seg := range event.Segs {
			for _, word := range strings.Fields(seg.UTF8) {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word)
			}
		}
	}
	return sb.String()
}

// needsPoToken reports whether a caption track requires a browser-only PoToken.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

func isASR(t captionTrack) bool {
	return t.Kind == "asr" || strings.Contains(t.BaseURL, "kind=asr")
}

// pickBestTrack prefers, in the given language: a manual track, a punctuated
// auto-generated track, any auto-generated track. Failing that, any English track.
func pickBestTrack(tracks []captionTrack, lang string) (captionTrack, bool) {
	var manual, punctuated, plain *captionTrack
	for i := range tracks {
		t := &tracks[i]
		if needsPoToken(t.BaseURL) || t.LanguageCode != lang {
			continue
		}
		switch {
		case !isASR(*t):
			if manual == nil {
				manual = t
			}
		case strings.Contains(t.BaseURL, "variant=punctuated"):
			if punctuated == nil {
				punctuated = t
			}
		default:
			if plain == nil {
				plain = t
			}
		}
	}
	for _, t := range []*captionTrack{manual, punctuated, plain} {
		if t != nil {
			return *t, true
		}
	}

	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) && strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return captionTrack{}, false
}
