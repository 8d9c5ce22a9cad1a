package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/blogapi"
	"github.com/teknowguy/autopilot-backend/internal/deploy"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/drafting"
	"github.com/teknowguy/autopilot-backend/internal/events"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/generator"
	"github.com/teknowguy/autopilot-backend/internal/notify"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
	"github.com/teknowguy/autopilot-backend/internal/reconcile"
	"github.com/teknowguy/autopilot-backend/internal/scheduler"
	"github.com/teknowguy/autopilot-backend/internal/social"
	"github.com/teknowguy/autopilot-backend/pkg/kv/memory"
)

// Mock Facebook publisher for testing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishToFacebook(ctx context.Context, creds domain.Credentials, text, link string) (bool, error) {
	args := m.Called(ctx, creds, text, link)
	return args.Bool(0), args.Error(1)
}

type stubGenerator struct {
	generator.Disabled
}

func (stubGenerator) Search(context.Context, string) ([]domain.Trend, error) {
	return []domain.Trend{{Title: "Chip Wars", Snippet: "Fabs", Source: "wire", URL: "https://news.example/chips"}}, nil
}

func (stubGenerator) GenerateArticle(_ context.Context, req generator.ArticleRequest) (generator.Article, error) {
	return generator.Article{
		Title:    req.Topic + ": the briefing",
		Excerpt:  "Short take",
		FullBody: "First paragraph.\nSecond paragraph.",
	}, nil
}

// blogServer fakes the blog API and records what it receives.
type blogServer struct {
	mu     sync.Mutex
	calls  []string
	status int
	body   string
	list   string
}

func (b *blogServer) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	status, body, list := b.status, b.body, b.list
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		w.Write([]byte(list))
		return
	}
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (b *blogServer) respond(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.body = status, body
}

func (b *blogServer) serveList(list string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.list = list
}

func (b *blogServer) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	router   http.Handler
	store    *poststore.Store
	gate     *gate.Gate
	notifier *notify.Notifier
	blog     *blogServer
	social   *MockPublisher
}

func newTestEnv(t *testing.T, gen generator.Generator, checks map[string]Pinger) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	blog := &blogServer{status: http.StatusOK, body: `{"id":"remote-1"}`, list: `[]`}
	srv := httptest.NewServer(http.HandlerFunc(blog.handler))
	t.Cleanup(srv.Close)

	store, err := poststore.Open(ctx, memory.New(), poststore.Options{DefaultBlogAPIKey: "blog-secret-key"})
	require.NoError(t, err)

	g := gate.New()
	n := notify.New(events.NewMemoryBus(), 8*time.Second, logger)
	client := blogapi.New(srv.URL, 5*time.Second, logger)
	seq := deploy.NewSequencer(store, client, g, n, nil, logger)
	pub := &MockPublisher{}

	h := NewHandler(Deps{
		Store:      store,
		Sequencer:  seq,
		Reconciler: reconcile.New(store, client, g, n, nil, logger),
		Drafting:   drafting.New(store, gen, g, n, logger),
		Social:     social.NewService(store, pub, n, logger),
		Notifier:   n,
		Gate:       g,
		Poller:     scheduler.New(store, seq, scheduler.Config{}, logger),
		Checks:     checks,
	}, logger)

	return &testEnv{
		router:   h.Routes(NewMiddleware(logger, nil), []string{"*"}, 0),
		store:    store,
		gate:     g,
		notifier: n,
		blog:     blog,
		social:   pub,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) seed(t *testing.T, posts ...domain.Post) {
	t.Helper()
	require.NoError(t, e.store.ReplaceAll(context.Background(), posts))
}

func scheduled(id string) domain.Post {
	return domain.Post{
		ID:            id,
		Title:         "Quantum Leap",
		Excerpt:       "Qubits",
		FullBody:      "Line one.\nLine two.",
		ContentType:   domain.ContentNews,
		Status:        domain.StatusScheduled,
		ScheduledDate: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPostLifecycle(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	rec := env.do(t, http.MethodPost, "/v1/posts", domain.Post{Title: "Hand written", Excerpt: "<b>bold</b> claim"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Post](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.Equal(t, domain.ContentNews, created.ContentType)
	assert.Equal(t, "bold claim", created.Excerpt)
	current, ok := env.notifier.Current()
	require.True(t, ok)
	assert.Equal(t, messageSaved, current.Message)

	rec = env.do(t, http.MethodGet, "/v1/posts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	created.Title = "Edited"
	created.Status = domain.StatusScheduled
	rec = env.do(t, http.MethodPut, "/v1/posts/"+created.ID, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Edited", decode[domain.Post](t, rec).Title)

	rec = env.do(t, http.MethodGet, "/v1/posts", nil)
	list := decode[PostListResponse](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, http.MethodDelete, "/v1/posts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, messagePurged, decode[MessageResponse](t, rec).Message)
	assert.Empty(t, env.store.All())

	rec = env.do(t, http.MethodDelete, "/v1/posts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, rec).Code)
}

func TestCreatePostCannotStartLive(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	rec := env.do(t, http.MethodPost, "/v1/posts", domain.Post{Title: "Sneaky", Status: domain.StatusLive})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode[ErrorResponse](t, rec).Code)
	assert.Empty(t, env.store.All())
}

func TestCreatePostRejectsTakenIdentity(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	live := scheduled("local-1")
	live.Status = domain.StatusLive
	live.ExternalID = "ext-9"
	env.seed(t, live)

	for _, id := range []string{"ext-9", "local-1"} {
		rec := env.do(t, http.MethodPost, "/v1/posts", domain.Post{ID: id, Title: "Shadow"})
		assert.Equal(t, http.StatusConflict, rec.Code, id)
		assert.Equal(t, "CONFLICT", decode[ErrorResponse](t, rec).Code)
	}
	require.Len(t, env.store.All(), 1)

	// The published post survives the next sync.
	env.blog.serveList(`{"data":[{"id":"ext-9","title":"Quantum Leap","content":"<p>x</p>"}]}`)
	rec := env.do(t, http.MethodPost, "/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posts := env.store.All()
	require.Len(t, posts, 1)
	assert.Equal(t, "ext-9", posts[0].ExternalID)
	assert.Equal(t, domain.StatusLive, posts[0].Status)
}

func TestUpdatePostRejectsManualLive(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	env.seed(t, scheduled("p1"))

	edit := scheduled("p1")
	edit.Status = domain.StatusLive
	rec := env.do(t, http.MethodPut, "/v1/posts/p1", edit)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/posts/missing", edit)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidJSON(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/posts", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, rec).Code)
}

func TestDeployCreatesRemotePost(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	env.seed(t, scheduled("p1"))

	rec := env.do(t, http.MethodPost, "/v1/posts/p1/deploy", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	deployed := decode[domain.Post](t, rec)
	assert.Equal(t, domain.StatusLive, deployed.Status)
	assert.Equal(t, "remote-1", deployed.ExternalID)
	assert.Equal(t, []string{"POST /api/blog/posts"}, env.blog.Calls())

	stored, _ := env.store.Find("p1")
	assert.Equal(t, "remote-1", stored.ExternalID)
	assert.False(t, env.gate.Busy())

	// The second deploy updates instead of creating a duplicate.
	rec = env.do(t, http.MethodPost, "/v1/posts/p1/deploy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"POST /api/blog/posts", "PUT /api/blog/posts/remote-1"}, env.blog.Calls())
}

func TestDeployWhileBusy(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	env.seed(t, scheduled("p1"))

	release, err := env.gate.TryAcquire("sync")
	require.NoError(t, err)
	defer release()

	rec := env.do(t, http.MethodPost, "/v1/posts/p1/deploy", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BUSY", decode[ErrorResponse](t, rec).Code)
	assert.Empty(t, env.blog.Calls())

	rec = env.do(t, http.MethodGet, "/v1/status", nil)
	status := decode[StatusResponse](t, rec)
	assert.True(t, status.Busy)
	require.NotNil(t, status.Holder)
	assert.Equal(t, "sync", status.Holder.Operation)
	assert.Equal(t, 1, status.Posts.Scheduled)
	assert.Equal(t, 1, status.Posts.Due)
}

func TestDeployFailureSurfacesRemoteMessage(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	env.seed(t, scheduled("p1"))
	env.blog.respond(http.StatusBadRequest, `{"error":"Title too long"}`)

	rec := env.do(t, http.MethodPost, "/v1/posts/p1/deploy", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "DEPLOY_FAILED", resp.Code)
	assert.Contains(t, resp.Message, "Title too long")

	stored, _ := env.store.Find("p1")
	assert.Equal(t, domain.StatusScheduled, stored.Status)
	assert.Empty(t, stored.ExternalID)

	current, ok := env.notifier.Current()
	require.True(t, ok)
	assert.Equal(t, "Title too long", current.Message)
}

func TestDeployUnknownPost(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	rec := env.do(t, http.MethodPost, "/v1/posts/nope/deploy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncMergesCloudPosts(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	local := scheduled("local-1")
	env.seed(t, local)
	env.blog.serveList(`{"data":[{"id":"r1","title":"From the cloud","content":"<p>Hello</p>","tags":["AI"]}]}`)

	rec := env.do(t, http.MethodPost, "/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[PostListResponse](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "local-1", list.Posts[0].ID)
	assert.Equal(t, "r1", list.Posts[1].ExternalID)
	assert.Len(t, env.store.All(), 2)
}

func TestCredentialsAreMasked(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	rec := env.do(t, http.MethodGet, "/v1/credentials", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	masked := decode[domain.Credentials](t, rec)
	assert.NotContains(t, masked.BlogAPIKey, "blog-secret")
	assert.Equal(t, domain.ConnectionDirect, masked.ConnectionMode)

	// Echoing the masked key back keeps the stored one.
	masked.FacebookToken = "fb-token-123456"
	masked.FacebookPageID = " 1234 "
	masked.AutoPilotEnabled = true
	rec = env.do(t, http.MethodPut, "/v1/credentials", masked)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := env.store.Credentials()
	assert.Equal(t, "blog-secret-key", stored.BlogAPIKey)
	assert.Equal(t, "fb-token-123456", stored.FacebookToken)
	assert.Equal(t, "1234", stored.FacebookPageID)
	assert.True(t, stored.AutoPilotEnabled)
	assert.NotContains(t, rec.Body.String(), "fb-token-123456")

	rec = env.do(t, http.MethodPut, "/v1/credentials", domain.Credentials{ConnectionMode: "carrier-pigeon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileSwitchResetsTrends(t *testing.T) {
	env := newTestEnv(t, stubGenerator{}, nil)

	rec := env.do(t, http.MethodPost, "/v1/trends/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[TrendListResponse](t, rec).Trends, 1)

	rec = env.do(t, http.MethodPut, "/v1/profile", ProfileRequest{ID: domain.ProfileRealEstate})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ProfileRealEstate, decode[ProfileResponse](t, rec).Active.ID)

	rec = env.do(t, http.MethodGet, "/v1/trends", nil)
	assert.Empty(t, decode[TrendListResponse](t, rec).Trends)

	rec = env.do(t, http.MethodPut, "/v1/profile", ProfileRequest{ID: "crypto"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/profile", nil)
	resp := decode[ProfileResponse](t, rec)
	assert.Equal(t, domain.ProfileRealEstate, resp.Active.ID)
	assert.Len(t, resp.Available, 2)
}

func TestQuickPublishSchedulesPost(t *testing.T) {
	env := newTestEnv(t, stubGenerator{}, nil)

	rec := env.do(t, http.MethodPost, "/v1/trends/quick-publish", domain.Trend{Title: "Chip Wars", URL: "https://news.example/chips"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[domain.Post](t, rec)
	assert.Equal(t, domain.StatusScheduled, post.Status)
	assert.Equal(t, "https://news.example/chips", post.SourceURL)
	assert.NotEmpty(t, post.ImageURL)

	rec = env.do(t, http.MethodPost, "/v1/trends/quick-publish", domain.Trend{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComposeWithoutModel(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	rec := env.do(t, http.MethodPost, "/v1/compose", drafting.ComposeRequest{Topic: "Edge AI"})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "GENERATOR_UNAVAILABLE", decode[ErrorResponse](t, rec).Code)
	assert.False(t, env.gate.Busy())
}

func TestDispatchVariation(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	post := scheduled("p1")
	post.Variations = []domain.SocialVariation{
		{Platform: domain.PlatformX, Content: "x", Status: domain.VariationDraft},
		{Platform: domain.PlatformFacebook, Content: "fb", Hashtags: []string{"#ai"}, Status: domain.VariationDraft},
	}
	env.seed(t, post)

	// Without credentials nothing is sent.
	rec := env.do(t, http.MethodPost, "/v1/posts/p1/variations/1/dispatch", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	require.NoError(t, env.store.SetCredentials(context.Background(), domain.Credentials{
		BlogAPIKey:     "k",
		FacebookToken:  "token",
		FacebookPageID: "page",
	}))
	env.social.On("PublishToFacebook", mock.Anything, mock.Anything, "fb\n\n#ai", "").Return(true, nil).Once()

	rec = env.do(t, http.MethodPost, "/v1/posts/p1/variations/1/dispatch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.VariationPublished, decode[DispatchResponse](t, rec).Variation.Status)
	env.social.AssertExpectations(t)

	rec = env.do(t, http.MethodPost, "/v1/posts/p1/variations/0/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_PLATFORM", decode[ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/v1/posts/p1/variations/7/dispatch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/posts/p1/variations/one/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationsCurrentAndClear(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	env.notifier.Notify(context.Background(), notify.KindBridge, "AUTO-LAUNCH: Deploying X...")

	rec := env.do(t, http.MethodGet, "/v1/notifications/current", nil)
	resp := decode[NotificationResponse](t, rec)
	require.NotNil(t, resp.Notification)
	assert.Equal(t, notify.KindBridge, resp.Notification.Kind)

	rec = env.do(t, http.MethodDelete, "/v1/notifications/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/notifications/current", nil)
	assert.Nil(t, decode[NotificationResponse](t, rec).Notification)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env = newTestEnv(t, generator.Disabled{}, map[string]Pinger{"storage": failingPinger{}})
	rec = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "storage")
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, generator.Disabled{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{gate.ErrBusy, http.StatusConflict, "BUSY"},
		{poststore.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{poststore.ErrConflict, http.StatusConflict, "CONFLICT"},
		{blogapi.ErrMissingRemoteID, http.StatusBadGateway, "UPSTREAM_FAILED"},
		{&blogapi.APIError{Op: "create", Status: 500, Message: "boom"}, http.StatusBadGateway, "UPSTREAM_FAILED"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
