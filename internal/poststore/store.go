// Package poststore is the durable record set the scheduler decides from.
// The whole state (posts, trends, credentials, profile) lives in memory and is
// re-serialised to four kv slots on every mutation.
package poststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teknowguy/autopilot-backend/internal/content"
	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/pkg/kv"
)

var (
	ErrNotFound = errors.New("post not found")
	// ErrConflict is returned when a mutation would leave two posts with the
	// same id or the same dedup key.
	ErrConflict = errors.New("post identity already in use")
)

// Slot names of the persisted layout.
const (
	SlotPosts       = "teknowguy_posts"
	SlotTrends      = "teknowguy_trends"
	SlotCredentials = "teknowguy_credentials"
	SlotProfile     = "megs_profile"
)

// Options configures Open.
type Options struct {
	KeyPrefix string
	// DefaultBlogAPIKey seeds the credentials slot when it is missing.
	DefaultBlogAPIKey string
	Logger            *zap.SugaredLogger
}

// ChangeFunc observes committed mutations with a snapshot of the posts.
type ChangeFunc func(posts []domain.Post)

type state struct {
	posts       []domain.Post
	trends      []domain.Trend
	credentials domain.Credentials
	profile     domain.Profile
}

func (s state) clone() state {
	out := state{
		credentials: s.credentials,
		profile:     s.profile,
		posts:       make([]domain.Post, len(s.posts)),
		trends:      append([]domain.Trend(nil), s.trends...),
	}
	for i, p := range s.posts {
		out.posts[i] = p.Clone()
	}
	return out
}

type Store struct {
	kv     kv.Store
	keys   [4]string
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	state state

	listenersMu sync.RWMutex
	listeners   []ChangeFunc
}

// Open loads the four slots. Missing or malformed slots fall back to defaults.
func Open(ctx context.Context, store kv.Store, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Store{
		kv:     store,
		logger: logger,
		keys: [4]string{
			opts.KeyPrefix + SlotPosts,
			opts.KeyPrefix + SlotTrends,
			opts.KeyPrefix + SlotCredentials,
			opts.KeyPrefix + SlotProfile,
		},
		state: state{
			posts:       []domain.Post{},
			trends:      []domain.Trend{},
			credentials: domain.DefaultCredentials(opts.DefaultBlogAPIKey),
			profile:     domain.DefaultProfile(),
		},
	}

	values, err := store.MGet(ctx, s.keys[:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to load post store: %w", err)
	}

	decodeSlot(logger, values[0], SlotPosts, &s.state.posts)
	decodeSlot(logger, values[1], SlotTrends, &s.state.trends)
	decodeSlot(logger, values[2], SlotCredentials, &s.state.credentials)
	decodeSlot(logger, values[3], SlotProfile, &s.state.profile)

	if s.state.posts == nil {
		s.state.posts = []domain.Post{}
	}
	if s.state.trends == nil {
		s.state.trends = []domain.Trend{}
	}
	if s.state.credentials.BlogAPIKey == "" {
		s.state.credentials.BlogAPIKey = opts.DefaultBlogAPIKey
	}
	if s.state.profile.ID == "" {
		s.state.profile = domain.DefaultProfile()
	}
	if err := checkIdentities(nil, s.state.posts); err != nil {
		logger.Warnw("Stored posts share an identity, the next sync will merge them", "error", err)
	}

	logger.Infow("Post store loaded",
		"posts", len(s.state.posts),
		"trends", len(s.state.trends),
		"profile", s.state.profile.ID,
	)
	return s, nil
}

// decodeSlot leaves dest untouched unless raw decodes cleanly.
func decodeSlot[T any](logger *zap.SugaredLogger, raw []byte, slot string, dest *T) {
	if len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warnw("Malformed slot, using default", "slot", slot, "error", err)
		return
	}
	*dest = v
}

// OnChange registers fn to run after every committed mutation.
func (s *Store) OnChange(fn ChangeFunc) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(posts []domain.Post) {
	s.listenersMu.RLock()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(posts)
	}
}

// mutate applies fn to a copy of the state, persists all slots and swaps the
// copy in. On any error the previous state is kept.
func (s *Store) mutate(ctx context.Context, fn func(st *state) error) error {
	s.mu.Lock()

	next := s.state.clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := checkIdentities(s.state.posts, next.posts); err != nil {
		s.mu.Unlock()
		return err
	}
	for i := range next.posts {
		next.posts[i].Excerpt = content.PlainText(next.posts[i].Excerpt)
	}

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.Errorw("Failed to persist post store", "error", err)
		return err
	}
	s.state = next
	snapshot := next.clone().posts
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, st state) error {
	pairs := make(map[string][]byte, len(s.keys))
	for i, v := range []any{st.posts, st.trends, st.credentials, st.profile} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", s.keys[i], err)
		}
		pairs[s.keys[i]] = raw
	}
	if err := s.kv.MSet(ctx, pairs); err != nil {
		return fmt.Errorf("failed to persist post store: %w", err)
	}
	return nil
}

// All returns a copy of every post in source order.
func (s *Store) All() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone().posts
}

func (s *Store) Find(id string) (domain.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.state.posts, id); i >= 0 {
		return s.state.posts[i].Clone(), true
	}
	return domain.Post{}, false
}

// Upsert replaces the post with the same id or appends it.
func (s *Store) Upsert(ctx context.Context, post domain.Post) error {
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	return s.mutate(ctx, func(st *state) error {
		if i := indexOf(st.posts, post.ID); i >= 0 {
			st.posts[i] = post.Clone()
		} else {
			st.posts = append(st.posts, post.Clone())
		}
		return nil
	})
}

// Prepend inserts a new post at the top of the collection.
func (s *Store) Prepend(ctx context.Context, post domain.Post) error {
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	return s.mutate(ctx, func(st *state) error {
		if indexOf(st.posts, post.ID) >= 0 {
			return fmt.Errorf("%w: post %s already exists", ErrConflict, post.ID)
		}
		st.posts = append([]domain.Post{post.Clone()}, st.posts...)
		return nil
	})
}

// ReplaceIfPresent swaps in post only when its id is still stored. It reports
// whether a replacement happened.
func (s *Store) ReplaceIfPresent(ctx context.Context, post domain.Post) (bool, error) {
	replaced := false
	err := s.mutate(ctx, func(st *state) error {
		i := indexOf(st.posts, post.ID)
		if i < 0 {
			return errSkip
		}
		st.posts[i] = post.Clone()
		replaced = true
		return nil
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	return replaced, err
}

var errSkip = errors.New("skip")

// Edit applies an editor change. The remote identity is owned by deployment
// and is carried over from the stored post.
func (s *Store) Edit(ctx context.Context, post domain.Post) (domain.Post, error) {
	var saved domain.Post
	err := s.mutate(ctx, func(st *state) error {
		i := indexOf(st.posts, post.ID)
		if i < 0 {
			return ErrNotFound
		}
		before := st.posts[i]
		if err := domain.CheckTransition(before, post); err != nil {
			return err
		}
		edited := post.Clone()
		edited.ExternalID = before.ExternalID
		if edited.PublishedAt == nil && before.PublishedAt != nil {
			t := *before.PublishedAt
			edited.PublishedAt = &t
		}
		st.posts[i] = edited
		saved = edited
		return nil
	})
	if err != nil {
		return domain.Post{}, err
	}
	saved.Excerpt = content.PlainText(saved.Excerpt)
	return saved, nil
}

// Remove deletes a post locally. It reports whether the post existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	err := s.mutate(ctx, func(st *state) error {
		i := indexOf(st.posts, id)
		if i < 0 {
			return errSkip
		}
		st.posts = append(st.posts[:i], st.posts[i+1:]...)
		return nil
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	return err == nil, err
}

// ReplaceAll swaps the whole collection.
func (s *Store) ReplaceAll(ctx context.Context, posts []domain.Post) error {
	return s.Update(ctx, func([]domain.Post) ([]domain.Post, error) {
		return posts, nil
	})
}

// Update runs a read-modify-write of the whole collection under the store lock.
func (s *Store) Update(ctx context.Context, fn func(current []domain.Post) ([]domain.Post, error)) error {
	return s.mutate(ctx, func(st *state) error {
		next, err := fn(st.posts)
		if err != nil {
			return err
		}
		st.posts = make([]domain.Post, 0, len(next))
		for _, p := range next {
			st.posts = append(st.posts, p.Clone())
		}
		return nil
	})
}

func (s *Store) Trends() []domain.Trend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Trend{}, s.state.trends...)
}

func (s *Store) SetTrends(ctx context.Context, trends []domain.Trend) error {
	return s.mutate(ctx, func(st *state) error {
		st.trends = append([]domain.Trend{}, trends...)
		return nil
	})
}

func (s *Store) Credentials() domain.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.credentials
}

func (s *Store) SetCredentials(ctx context.Context, creds domain.Credentials) error {
	return s.mutate(ctx, func(st *state) error {
		st.credentials = creds
		return nil
	})
}

func (s *Store) Profile() domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.profile
}

// SetProfile switches the active profile and clears trends gathered for the old one.
func (s *Store) SetProfile(ctx context.Context, profile domain.Profile) error {
	return s.mutate(ctx, func(st *state) error {
		if st.profile.ID != profile.ID {
			st.trends = []domain.Trend{}
		}
		st.profile = profile
		return nil
	})
}

func indexOf(posts []domain.Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

// checkIdentities rejects next when it holds an id or dedup key more than once,
// unless prev already held that duplicate. Collections loaded with a duplicate
// stay editable until a sync merges them.
func checkIdentities(prev, next []domain.Post) error {
	prevIDs, prevKeys := identityCounts(prev)
	ids, keys := identityCounts(next)
	for id, n := range ids {
		if n > 1 && prevIDs[id] < n {
			return fmt.Errorf("%w: id %s", ErrConflict, id)
		}
	}
	for key, n := range keys {
		if n > 1 && prevKeys[key] < n {
			return fmt.Errorf("%w: dedup key %s", ErrConflict, key)
		}
	}
	return nil
}

func identityCounts(posts []domain.Post) (ids, keys map[string]int) {
	ids = make(map[string]int, len(posts))
	keys = make(map[string]int, len(posts))
	for _, p := range posts {
		ids[p.ID]++
		keys[domain.DedupKey(p)]++
	}
	return ids, keys
}
