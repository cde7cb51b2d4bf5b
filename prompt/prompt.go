package prompt

import (
	"strings"

	"github.com/nijaru/yt-tldr/ollama"
)

// Build assembles the chat payload for one summarization: the system prompt
// verbatim, then a user message with the optional title followed by the transcript.
func Build(systemPrompt, title, transcript string) ollama.ChatRequest {
	return ollama.ChatRequest{
		Messages: []ollama.Message{
			{Role: ollama.RoleSystem, Content: systemPrompt},
			{Role: ollama.RoleUser, Content: userContent(title, transcript)},
		},
		Stream: false,
	}
}

func userContent(title, transcript string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return transcript
	}
	var sb strings.Builder
	sb.Grow(len("Title: ") + len(title) + 2 + len(transcript))
	sb.WriteString("Title: ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
	sb.WriteString(transcript)
	return sb.String()
}
