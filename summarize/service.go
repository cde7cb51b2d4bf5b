package summarize

import (
	"context"
	"strings"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/middleware"
	"github.com/nijaru/yt-tldr/models"
	"github.com/nijaru/yt-tldr/ollama"
	"github.com/nijaru/yt-tldr/prompt"
	"github.com/nijaru/yt-tldr/youtube"
	"github.com/sirupsen/logrus"
)

const defaultModel = "gpt-oss:20b"

type TranscriptFetcher interface {
	Fetch(ctx context.Context, ref models.VideoReference) (*models.TranscriptDocument, error)
}

type ChatCompleter interface {
	Chat(ctx context.Context, req ollama.ChatRequest, model string, timeout time.Duration) (string, error)
}

// Recorder stores run outcome metadata. Failures to record never fail a request.
type Recorder interface {
	RecordRun(ctx context.Context, run models.Run) error
}

// Service runs the summarization pipeline for one request at a time.
// Concurrency is bounded by the caller (see the worker package).
type Service struct {
	fetcher      TranscriptFetcher
	chat         ChatCompleter
	recorder     Recorder
	defaultModel string
	timeout      time.Duration
	logger       *logrus.Logger
}

type Option func(*Service)

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithDefaultModel(model string) Option {
	return func(s *Service) {
		if model = strings.TrimSpace(model); model != "" {
			s.defaultModel = model
		}
	}
}

// WithInferenceTimeout sets the timeout applied to every inference call. Zero disables it.
func WithInferenceTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout >= 0 {
			s.timeout = timeout
		}
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(fetcher TranscriptFetcher, chat ChatCompleter, opts ...Option) *Service {
	s := &Service{
		fetcher:      fetcher,
		chat:         chat,
		defaultModel: defaultModel,
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run resolves, fetches, prompts and infers. It either returns a complete
// result or an error; partial summaries are never returned.
func (s *Service) Run(ctx context.Context, req models.SummarizationRequest) (result *models.SummarizationResult, err error) {
	start := time.Now()
	run := models.Run{
		RequestID: middleware.GetRequestID(ctx),
		Mode:      req.Mode(),
	}
	logger := middleware.LoggerFrom(ctx, s.logger).WithField("mode", run.Mode)

	defer func() {
		run.DurationMS = time.Since(start).Milliseconds()
		run.Outcome = models.OutcomeOK
		if err != nil {
			run.Outcome = string(errors.KindOf(err))
		}
		s.record(ctx, logger, run)
	}()

	ref, err := youtube.Resolve(req.URL)
	if err != nil {
		return nil, err
	}
	run.VideoID = ref.ID
	logger = logger.WithField("video_id", ref.ID)

	doc, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		logger.WithError(err).Warn("Transcript fetch failed")
		return nil, err
	}

	result = &models.SummarizationResult{
		VideoName: doc.DisplayName(),
		Subtitles: doc.Text,
	}

	switch run.Mode {
	case models.ModeDryRun:
		return result, nil
	case models.ModeTranscriptOnly:
		result.Summary = doc.Text
		return result, nil
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.defaultModel
	}
	run.Model = model

	systemPrompt := req.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = prompt.DefaultSystemPrompt
	}

	summary, err := s.chat.Chat(ctx, prompt.Build(systemPrompt, doc.Title, doc.Text), model, s.timeout)
	if err != nil {
		logger.WithError(err).WithField("model", model).Warn("Inference failed")
		return nil, err
	}
	result.Summary = summary

	logger.WithFields(logrus.Fields{
		"url":      ref.WatchURL(),
		"model":    model,
		"duration": time.Since(start).String(),
	}).Info("Summary generated")

	return result, nil
}

func (s *Service) record(ctx context.Context, logger *logrus.Entry, run models.Run) {
	if s.recorder == nil {
		return
	}
	// The run is recorded even when the caller has gone away.
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.WithError(err).Warn("Failed to record run")
	}
}
