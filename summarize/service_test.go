package summarize

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/models"
	"github.com/nijaru/yt-tldr/ollama"
	"github.com/nijaru/yt-tldr/prompt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchURL = "https://www.youtube.com/watch?v=abc12345678"

type fakeFetcher struct {
	mu    sync.Mutex
	calls []models.VideoReference
	doc   *models.TranscriptDocument
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref models.VideoReference) (*models.TranscriptDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.VideoID = ref.ID
	return &doc, nil
}

type chatCall struct {
	req     ollama.ChatRequest
	model   string
	timeout time.Duration
}

type fakeChat struct {
	mu    sync.Mutex
	calls []chatCall
	reply string
	err   error
}

func (c *fakeChat) Chat(ctx context.Context, req ollama.ChatRequest, model string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, chatCall{req, model, timeout})
	return c.reply, c.err
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []models.Run
}

func (r *fakeRecorder) RecordRun(ctx context.Context, run models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func helloFetcher() *fakeFetcher {
	return &fakeFetcher{doc: &models.TranscriptDocument{Title: "My Video", Text: "Hello world."}}
}

func TestRunSummary(t *testing.T) {
	fetcher := helloFetcher()
	chat := &fakeChat{reply: "## Greeting"}
	recorder := &fakeRecorder{}
	svc := NewService(fetcher, chat, WithRecorder(recorder), WithInferenceTimeout(45*time.Second))

	result, err := svc.Run(context.Background(), models.SummarizationRequest{URL: watchURL, Model: "m1"})
	require.NoError(t, err)

	assert.Equal(t, "Hello world.", result.Subtitles)
	assert.Equal(t, "## Greeting", result.Summary)
	assert.Equal(t, "My Video", result.VideoName)

	require.Len(t, chat.calls, 1)
	call := chat.calls[0]
	assert.Equal(t, "m1", call.model)
	assert.Equal(t, 45*time.Second, call.timeout)
	assert.Equal(t, prompt.DefaultSystemPrompt, call.req.Messages[0].Content)
	assert.Equal(t, "Title: My Video\n\nHello world.", call.req.Messages[1].Content)

	require.Len(t, recorder.runs, 1)
	assert.Equal(t, models.OutcomeOK, recorder.runs[0].Outcome)
	assert.Equal(t, "abc12345678", recorder.runs[0].VideoID)
	assert.Equal(t, "m1", recorder.runs[0].Model)
}

func TestRunCaptionsDisabled(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.TranscriptUnavailable("test", nil, "Captions are disabled for video abc12345678")}
	chat := &fakeChat{reply: "unused"}
	recorder := &fakeRecorder{}

	result, err := NewService(fetcher, chat, WithRecorder(recorder)).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL, Model: "m1"})

	assert.Nil(t, result)
	assert.Equal(t, errors.KindTranscriptUnavailable, errors.KindOf(err))
	assert.Empty(t, chat.calls)
	require.Len(t, recorder.runs, 1)
	assert.Equal(t, string(errors.KindTranscriptUnavailable), recorder.runs[0].Outcome)
}

func TestRunLogsToServiceLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	fetcher := &fakeFetcher{err: errors.Network("test", nil, "Transcript service is unreachable")}
	_, err := NewService(fetcher, &fakeChat{}, WithLogger(logger)).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL})
	require.Error(t, err)

	assert.Contains(t, buf.String(), "Transcript fetch failed")
	assert.Contains(t, buf.String(), `"video_id":"abc12345678"`)
}

func TestRunDryRunNeverInvokesInference(t *testing.T) {
	fetcher := helloFetcher()
	chat := &fakeChat{reply: "unused"}

	result, err := NewService(fetcher, chat).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL, DryRun: true, TranscriptOnly: true})
	require.NoError(t, err)

	assert.Empty(t, result.Summary)
	assert.Equal(t, "Hello world.", result.Subtitles)
	assert.Len(t, fetcher.calls, 1)
	assert.Empty(t, chat.calls)
}

func TestRunTranscriptOnly(t *testing.T) {
	chat := &fakeChat{reply: "unused"}

	result, err := NewService(helloFetcher(), chat).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL, TranscriptOnly: true})
	require.NoError(t, err)

	assert.Equal(t, "Hello world.", result.Summary)
	assert.Equal(t, "Hello world.", result.Subtitles)
	assert.Empty(t, chat.calls)
}

func TestRunBackendUnavailableAfterFetch(t *testing.T) {
	fetcher := helloFetcher()
	chat := &fakeChat{err: errors.BackendUnavailable("test", nil, "Inference backend is unreachable")}

	result, err := NewService(fetcher, chat).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL, Model: "m1"})

	assert.Nil(t, result)
	assert.Equal(t, errors.KindBackendUnavailable, errors.KindOf(err))
	assert.Len(t, fetcher.calls, 1)
	assert.Len(t, chat.calls, 1)
}

func TestRunInvalidURL(t *testing.T) {
	fetcher := helloFetcher()
	_, err := NewService(fetcher, &fakeChat{}).
		Run(context.Background(), models.SummarizationRequest{URL: "https://example.com/watch?v=abc12345678"})

	assert.Equal(t, errors.KindInvalidURL, errors.KindOf(err))
	assert.Empty(t, fetcher.calls)
}

func TestRunDefaults(t *testing.T) {
	fetcher := &fakeFetcher{doc: &models.TranscriptDocument{Text: "Hello world."}}
	chat := &fakeChat{reply: "ok"}

	result, err := NewService(fetcher, chat, WithDefaultModel("llama3:8b")).
		Run(context.Background(), models.SummarizationRequest{URL: "abc12345678", Model: "  ", SystemPrompt: "\n"})
	require.NoError(t, err)

	require.Len(t, chat.calls, 1)
	assert.Equal(t, "llama3:8b", chat.calls[0].model)
	assert.Equal(t, time.Duration(0), chat.calls[0].timeout)
	assert.Equal(t, prompt.DefaultSystemPrompt, chat.calls[0].req.Messages[0].Content)
	assert.Equal(t, "Hello world.", chat.calls[0].req.Messages[1].Content)
	assert.Equal(t, "abc12345678", result.VideoName)
}

func TestRunCustomSystemPrompt(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	_, err := NewService(helloFetcher(), chat).
		Run(context.Background(), models.SummarizationRequest{URL: watchURL, SystemPrompt: "Be brief."})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", chat.calls[0].req.Messages[0].Content)
}
