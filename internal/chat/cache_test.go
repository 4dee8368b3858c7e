package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rikuduo/rikuduo/internal/ai"
	"github.com/rikuduo/rikuduo/internal/models"
	"github.com/rikuduo/rikuduo/internal/store/redisstore"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) GetJSON(ctx context.Context, key string, out any) error {
	c.mu.Lock()
	raw, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return redisstore.ErrMiss
	}
	return json.Unmarshal(raw, out)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *memCache) DeletePattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func newCachedEchoService(repo *Repo, cache Cache) *Service {
	reg := ai.NewRegistry("echo")
	reg.RegisterBuiltins("", "")
	return NewService(repo, reg, cache)
}

func TestListSessions_CachesFilteredAndUnfiltered(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cache := newMemCache()
	svc := newCachedEchoService(repo, cache)
	u := seedUser(t, db)
	ctx := context.Background()

	p := &models.Project{UserID: u.ID, Name: "p"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	sess, err := svc.CreateSession(ctx, u.ID, CreateSessionInput{Title: "in-project", ProjectID: p.ID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.ListSessions(ctx, u.ID, nil); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.ListSessions(ctx, u.ID, &p.ID); err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if !cache.has(sessionListKey(u.ID, nil)) {
		t.Fatalf("unfiltered list not cached")
	}
	if !cache.has(sessionListKey(u.ID, &p.ID)) {
		t.Fatalf("filtered list not cached")
	}

	// any session mutation sweeps every listing for the user
	if _, err := svc.RenameSession(ctx, sess.ID, u.ID, "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if cache.has(sessionListKey(u.ID, nil)) || cache.has(sessionListKey(u.ID, &p.ID)) {
		t.Fatalf("stale listings survived a mutation")
	}
}

func TestAssistantAppend_InvalidatesSessionLists(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cache := newMemCache()
	svc := newCachedEchoService(repo, cache)
	u := seedUser(t, db)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, u.ID, CreateSessionInput{Title: "s"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.AppendUserMessage(ctx, sess.ID, u.ID, "hi"); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := svc.ListSessions(ctx, u.ID, nil); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !cache.has(sessionListKey(u.ID, nil)) {
		t.Fatalf("list not cached")
	}

	// the queued-reply path stores the assistant turn without a user request
	if _, err := svc.GenerateAssistantReply(ctx, sess.ID, u.ID); err != nil {
		t.Fatalf("generate reply: %v", err)
	}
	if cache.has(sessionListKey(u.ID, nil)) {
		t.Fatalf("cached list outlived the assistant append")
	}
}
