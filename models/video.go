package models

// VideoReference identifies a YouTube video by its 11-character id.
type VideoReference struct {
	ID string `json:"id"`
}

// WatchURL returns the canonical watch page URL for the video.
func (v VideoReference) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// TranscriptDocument is the caption text of a video with timing metadata stripped.
type TranscriptDocument struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text"`
}

// DisplayName returns the title, falling back to the video id.
func (t *TranscriptDocument) DisplayName() string {
	if t.Title != "" {
		return t.Title
	}
	return t.VideoID
}
