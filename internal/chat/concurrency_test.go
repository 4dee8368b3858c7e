package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/rikuduo/rikuduo/internal/models"
)

// Parallel appends on one session must produce distinct, gap-free sequence
// numbers regardless of completion order.
func TestAppendMessage_ConcurrentAppendsOneSession(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db)
	sess := seedSession(t, repo, u.ID, "hot")

	const n = 16
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			m := &models.Message{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i)}
			errs <- repo.AppendMessage(ctx, sess.ID, u.ID, m)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := repo.ListMessages(ctx, sess.ID, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}

	seqs := make([]int, 0, n)
	for _, m := range msgs {
		seqs = append(seqs, m.Sequence)
	}
	sort.Ints(seqs)
	for i, s := range seqs {
		if s != i {
			t.Fatalf("expected contiguous sequences 0..%d, got %v", n-1, seqs)
		}
	}
}

// Appends to separate sessions do not contend on each other's order.
func TestAppendMessage_ConcurrentAppendsAcrossSessions(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, db)

	const sessions = 4
	const perSession = 5
	ctx := context.Background()

	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = seedSession(t, repo, u.ID, fmt.Sprintf("s%d", i)).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for _, id := range ids {
		for j := 0; j < perSession; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				errs <- repo.AppendMessage(ctx, id, u.ID, &models.Message{Role: models.RoleUser, Content: "x"})
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	for _, id := range ids {
		msgs, err := repo.ListMessages(ctx, id, u.ID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(msgs) != perSession {
			t.Fatalf("session %s: expected %d messages, got %d", id, perSession, len(msgs))
		}
		for i, m := range msgs {
			if m.Sequence != i {
				t.Fatalf("session %s: position %d has sequence %d", id, i, m.Sequence)
			}
		}
	}
}
