package asylum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrFeedUnavailable covers meme/verse collaborator failures. They're
// logged and swallowed by callers; the worst a user ever sees is
// "nothing was posted".
var ErrFeedUnavailable = errors.New("feed unavailable")

// Verse is one fetched Bible verse.
type Verse struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

// Feeds holds the meme and verse HTTP collaborators behind their
// narrow fetch methods.
type Feeds struct {
	httpClient *http.Client
	config     *BroadcastConfig
	logger     *slog.Logger
}

// NewFeeds builds the feed collaborators. A nil httpClient gets a
// default client bounded by the configured request timeout.
func NewFeeds(config *BroadcastConfig, httpClient *http.Client, logger *slog.Logger) *Feeds {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		timeout := config.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultCollaboratorRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Feeds{
		httpClient: httpClient,
		config:     config,
		logger:     logger.With(loggerNameKey, "feeds"),
	}
}

// FetchMemeURL returns the URL of one meme image.
func (f *Feeds) FetchMemeURL(ctx context.Context) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := f.getJSON(ctx, f.config.MemeURL, &payload); err != nil {
		return "", err
	}
	if payload.URL == "" {
		return "", fmt.Errorf("%w: empty meme url", ErrFeedUnavailable)
	}
	return payload.URL, nil
}

// FetchVerse returns the daily verse.
func (f *Feeds) FetchVerse(ctx context.Context) (*Verse, error) {
	var verse Verse
	if err := f.getJSON(ctx, f.config.VerseURL, &verse); err != nil {
		return nil, err
	}
	if verse.Text == "" {
		return nil, fmt.Errorf("%w: empty verse", ErrFeedUnavailable)
	}
	verse.Text = strings.TrimSpace(verse.Text)
	return &verse, nil
}

func (f *Feeds) getJSON(ctx context.Context, url string, v any) error {
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"%w: %s returned %d",
			ErrFeedUnavailable,
			url,
			resp.StatusCode,
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	f.logger.DebugContext(
		ctx,
		"feed fetched",
		"url", url,
		"elapsed", time.Since(started),
	)
	return nil
}
