package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// GroupSource resolves the directory groups a user belongs to.
type GroupSource interface {
	Groups(ctx context.Context, user string) ([]string, error)
}

// GroupStore caches group memberships. Set writes both a fresh entry with a
// TTL and a stale copy with no expiry, so a directory outage degrades to
// slightly old memberships instead of lockout.
type GroupStore interface {
	GetFresh(ctx context.Context, user string) ([]string, bool, error)
	GetStale(ctx context.Context, user string) ([]string, bool, error)
	Set(ctx context.Context, user string, groups []string, ttl time.Duration) error
}

// HTTPGroupSource queries the directory service over its REST surface.
type HTTPGroupSource struct {
	base   string
	token  string
	client *http.Client
}

func NewHTTPGroupSource(baseURL, token string, timeout time.Duration) *HTTPGroupSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGroupSource{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPGroupSource) Groups(ctx context.Context, user string) ([]string, error) {
	u := s.base + "/v1/users/" + url.PathEscape(user) + "/groups"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup for %s: %w", user, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory lookup for %s: status %d: %s", user, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Groups []string `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("directory lookup for %s: %w", user, err)
	}
	return out.Groups, nil
}

// RedisGroupStore keeps memberships in redis under a fresh key that expires
// and a stale key that does not.
type RedisGroupStore struct {
	rdb *redis.Client
}

func NewRedisGroupStore(rdb *redis.Client) *RedisGroupStore {
	return &RedisGroupStore{rdb: rdb}
}

func freshKey(user string) string { return "authz:groups:" + user }
func staleKey(user string) string { return "authz:groups:stale:" + user }

func (s *RedisGroupStore) GetFresh(ctx context.Context, user string) ([]string, bool, error) {
	return s.get(ctx, freshKey(user))
}

func (s *RedisGroupStore) GetStale(ctx context.Context, user string) ([]string, bool, error) {
	return s.get(ctx, staleKey(user))
}

func (s *RedisGroupStore) get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var groups []string
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, false, err
	}
	return groups, true, nil
}

func (s *RedisGroupStore) Set(ctx context.Context, user string, groups []string, ttl time.Duration) error {
	raw, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, freshKey(user), raw, ttl).Err(); err != nil {
		return err
	}
	return s.rdb.Set(ctx, staleKey(user), raw, 0).Err()
}

// MemoryGroupStore is the in-process fallback when redis is not configured.
type MemoryGroupStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryGroupEntry
}

type memoryGroupEntry struct {
	groups  []string
	expires time.Time
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{now: time.Now, entries: map[string]memoryGroupEntry{}}
}

func (s *MemoryGroupStore) GetFresh(ctx context.Context, user string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[user]
	if !ok || s.now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.groups, true, nil
}

func (s *MemoryGroupStore) GetStale(ctx context.Context, user string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[user]
	if !ok {
		return nil, false, nil
	}
	return entry.groups, true, nil
}

func (s *MemoryGroupStore) Set(ctx context.Context, user string, groups []string, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[user] = memoryGroupEntry{groups: groups, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// GroupCache resolves memberships through the store first, hitting the
// directory on miss. When the directory is down it serves the stale copy.
type GroupCache struct {
	source GroupSource
	store  GroupStore
	ttl    time.Duration
	logger *log.Logger
}

func NewGroupCache(source GroupSource, store GroupStore, ttl time.Duration) *GroupCache {
	if store == nil {
		store = NewMemoryGroupStore()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &GroupCache{
		source: source,
		store:  store,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[AUTHZ] ", log.LstdFlags),
	}
}

func (g *GroupCache) Groups(ctx context.Context, user string) ([]string, error) {
	if groups, ok, err := g.store.GetFresh(ctx, user); err != nil {
		g.logger.Printf("group cache read failed for %s: %v", user, err)
	} else if ok {
		return groups, nil
	}

	groups, err := g.source.Groups(ctx, user)
	if err != nil {
		if stale, ok, serr := g.store.GetStale(ctx, user); serr == nil && ok {
			g.logger.Printf("directory unavailable for %s, serving stale groups: %v", user, err)
			return stale, nil
		}
		return nil, err
	}
	if err := g.store.Set(ctx, user, groups, g.ttl); err != nil {
		g.logger.Printf("group cache write failed for %s: %v", user, err)
	}
	return groups, nil
}

// Authorizer gates the interactive surface on an allowlist of users and
// directory groups. An empty configuration denies everyone.
type Authorizer struct {
	users  map[string]struct{}
	groups map[string]struct{}
	cache  *GroupCache
}

func NewAuthorizer(users, groups []string, cache *GroupCache) *Authorizer {
	a := &Authorizer{users: map[string]struct{}{}, groups: map[string]struct{}{}, cache: cache}
	for _, u := range users {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			a.users[u] = struct{}{}
		}
	}
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			a.groups[g] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether the identity may use the interactive surface.
func (a *Authorizer) Allowed(ctx context.Context, user string) (bool, error) {
	user = strings.ToLower(strings.TrimSpace(user))
	if user == "" {
		return false, nil
	}
	if _, ok := a.users[user]; ok {
		return true, nil
	}
	if len(a.groups) == 0 || a.cache == nil {
		return false, nil
	}
	memberships, err := a.cache.Groups(ctx, user)
	if err != nil {
		return false, err
	}
	for _, g := range memberships {
		if _, ok := a.groups[g]; ok {
			return true, nil
		}
	}
	return false, nil
}
