package asylum

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeeds(memeHandler, verseHandler http.HandlerFunc) (*Feeds, func()) {
	memeServer := httptest.NewServer(memeHandler)
	verseServer := httptest.NewServer(verseHandler)
	cfg := &BroadcastConfig{
		MemeURL:  memeServer.URL,
		VerseURL: verseServer.URL,
	}
	feeds := NewFeeds(cfg, memeServer.Client(), nil)
	return feeds, func() {
		memeServer.Close()
		verseServer.Close()
	}
}

func TestFetchMemeURL(t *testing.T) {
	feeds, cleanup := newTestFeeds(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"url": "https://i.example.com/meme.png", "title": "a meme"}`))
		},
		nil,
	)
	defer cleanup()

	url, err := feeds.FetchMemeURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://i.example.com/meme.png", url)
}

func TestFetchMemeURLFailures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "bad payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
		{
			name: "missing url",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"title": "no url here"}`))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			feeds, cleanup := newTestFeeds(tc.handler, nil)
			defer cleanup()

			_, err := feeds.FetchMemeURL(context.Background())
			assert.ErrorIs(t, err, ErrFeedUnavailable)
		})
	}
}

func TestFetchVerse(t *testing.T) {
	feeds, cleanup := newTestFeeds(
		nil,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(
				[]byte(`{"reference": "John 3:16", "text": "For God so loved the world...\n"}`),
			)
		},
	)
	defer cleanup()

	verse, err := feeds.FetchVerse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "John 3:16", verse.Reference)
	assert.Equal(t, "For God so loved the world...", verse.Text)
}

func TestFetchVerseEmptyText(t *testing.T) {
	feeds, cleanup := newTestFeeds(
		nil,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"reference": "John 3:16"}`))
		},
	)
	defer cleanup()

	_, err := feeds.FetchVerse(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestFetchUnreachableServer(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close()

	feeds := NewFeeds(
		&BroadcastConfig{MemeURL: server.URL, VerseURL: server.URL},
		nil,
		nil,
	)

	_, err := feeds.FetchMemeURL(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
