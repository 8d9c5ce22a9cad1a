package blogapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teknowguy/autopilot-backend/internal/domain"
)

type recorded struct {
	method string
	path   string
	apiKey string
	body   map[string]any
}

func newServer(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, apiKey: r.Header.Get("x-api-key")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			assert.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil), &calls
}

func samplePost() domain.Post {
	return domain.Post{
		ID:            "x1",
		Title:         "  Quantum Leap  ",
		Excerpt:       "<p>A <b>bold</b> claim</p>",
		FullBody:      "First paragraph\nSecond paragraph",
		Status:        domain.StatusScheduled,
		ContentType:   domain.ContentNews,
		ScheduledDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateDirectID(t *testing.T) {
	client, calls := newServer(t, http.StatusCreated, `{"id":"ext-1"}`)

	receipt, err := client.Create(context.Background(), " key-1 ", samplePost())
	require.NoError(t, err)
	assert.Equal(t, "ext-1", receipt.ID)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/blog/posts", call.path)
	assert.Equal(t, "key-1", call.apiKey)
	assert.Equal(t, "Quantum Leap", call.body["title"])
	assert.Equal(t, "A bold claim", call.body["excerpt"])
	assert.Equal(t, "<p>First paragraph</p>\n<p>Second paragraph</p>", call.body["content"])
	assert.Equal(t, "published", call.body["status"])
	assert.Equal(t, "", call.body["coverImage"])
	assert.Equal(t, []any{"Tech", "AI", "News"}, call.body["tags"])
	assert.Equal(t, "2024-01-01T00:00:00Z", call.body["publishedAt"])
}

func TestCreateNestedID(t *testing.T) {
	client, _ := newServer(t, http.StatusOK, `{"data":{"id":"ext-2","publishedAt":"2024-02-02T10:00:00.000Z"}}`)

	receipt, err := client.Create(context.Background(), "k", samplePost())
	require.NoError(t, err)
	assert.Equal(t, "ext-2", receipt.ID)
	require.NotNil(t, receipt.PublishedAt)
	assert.Equal(t, time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC), *receipt.PublishedAt)
}

func TestCreateNumericID(t *testing.T) {
	client, _ := newServer(t, http.StatusOK, `{"id":42}`)

	receipt, err := client.Create(context.Background(), "k", samplePost())
	require.NoError(t, err)
	assert.Equal(t, "42", receipt.ID)
}

func TestCreateWithoutIDIsHardFailure(t *testing.T) {
	for _, body := range []string{`{"ok":true}`, ``, `not json`, `{"data":{}}`} {
		client, _ := newServer(t, http.StatusOK, body)
		_, err := client.Create(context.Background(), "k", samplePost())
		assert.ErrorIs(t, err, ErrMissingRemoteID, "body %q", body)
	}
}

func TestCreateErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"error field", `{"error":"Invalid API key"}`, "Invalid API key"},
		{"message field", `{"message":"Title required"}`, "Title required"},
		{"no body", ``, "Site API Error: 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newServer(t, http.StatusBadRequest, tt.response)
			_, err := client.Create(context.Background(), "k", samplePost())

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestUpdateUsesExternalID(t *testing.T) {
	client, calls := newServer(t, http.StatusOK, `{}`)

	post := samplePost()
	post.ExternalID = "ext-1"
	post.SEOKeywords = []string{"Chips"}
	require.NoError(t, client.Update(context.Background(), "k", post))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/api/blog/posts/ext-1", call.path)
	assert.Equal(t, []any{"Chips"}, call.body["tags"])
	_, hasPublishedAt := call.body["publishedAt"]
	assert.False(t, hasPublishedAt)
}

func TestUpdateWithoutExternalIDNeverSends(t *testing.T) {
	client, calls := newServer(t, http.StatusOK, `{}`)

	err := client.Update(context.Background(), "k", samplePost())
	assert.ErrorIs(t, err, ErrNoExternalID)
	assert.Empty(t, *calls)
}

func TestUpdateErrorFallback(t *testing.T) {
	client, _ := newServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)

	post := samplePost()
	post.ExternalID = "ext-1"
	err := client.Update(context.Background(), "k", post)
	assert.EqualError(t, err, "Update Error: 502")
}

func TestListShapes(t *testing.T) {
	bodies := map[string]string{
		"array":   `[{"id":"r1","title":"T","content":"<p>x</p>","tags":["a","b"]}]`,
		"wrapped": `{"data":[{"id":"r1","title":"T","content":"<p>x</p>","tags":"a, b"}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client, calls := newServer(t, http.StatusOK, body)
			posts, err := client.List(context.Background(), "k")
			require.NoError(t, err)
			require.Len(t, posts, 1)
			assert.Equal(t, RemoteID("r1"), posts[0].ID)
			assert.Equal(t, Tags{"a", "b"}, posts[0].Tags)
			assert.Equal(t, http.MethodGet, (*calls)[0].method)
		})
	}
}

func TestListFailure(t *testing.T) {
	client, _ := newServer(t, http.StatusUnauthorized, `{"error":"nope"}`)
	_, err := client.List(context.Background(), "k")
	assert.EqualError(t, err, "Failed to fetch cloud repository: 401")
}

func TestPayloadExcerptNeverCarriesMarkup(t *testing.T) {
	excerpts := []string{
		"<script>x</script>",
		"&lt;b&gt;escaped&lt;/b&gt;",
		"",
		"a < b and c > d",
		strings.Repeat("<i>long</i> ", 200),
	}
	for _, ex := range excerpts {
		post := samplePost()
		post.Excerpt = ex
		post.FullBody = "<h1>Body</h1><p>text</p>"
		p := newPayload(post, true)
		assert.NotContains(t, p.Excerpt, "<", "excerpt %q", ex)
		assert.LessOrEqual(t, len([]rune(p.Excerpt)), 250)
	}
}

func TestPayloadCoverImageFallsBackToBodyImage(t *testing.T) {
	post := samplePost()
	post.FullBody = `<p>x</p><img src="https://cdn.example/cover.jpg">`
	assert.Equal(t, "https://cdn.example/cover.jpg", newPayload(post, false).CoverImage)

	post.ImageURL = "https://cdn.example/explicit.jpg"
	assert.Equal(t, "https://cdn.example/explicit.jpg", newPayload(post, false).CoverImage)
}
