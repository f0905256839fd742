package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluele/gcache"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

const day = 24 * time.Hour

func newTestRepository() (*SupportRepository, gcache.FakeClock) {
	clock := gcache.NewFakeClock()
	return newSupportRepository(64, SupportRetention, clock), clock
}

func seedChat(t *testing.T, r *SupportRepository, id, account string, at time.Time) {
	t.Helper()
	chat := &domain.SupportChat{
		ID:        id,
		AccountID: account,
		UserType:  "rider",
		Status:    domain.ChatStatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
	chat.Append(account, "rider", "hello", at)
	if err := r.Create(context.Background(), chat); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestSupportRepository_ExpiresFromCreation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, clock := newTestRepository()
	seedChat(t, r, "chat-1", "acc-1", clock.Now())

	clock.Advance(29 * day)
	if _, err := r.Update(ctx, "chat-1", func(c *domain.SupportChat) error {
		c.Append("acc-1", "rider", "still there?", clock.Now())
		return nil
	}); err != nil {
		t.Fatalf("update before expiry: %v", err)
	}

	// Writing to the chat does not extend its retention.
	clock.Advance(2 * day)
	if _, err := r.Get(ctx, "chat-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected chat to expire 30 days after creation, got %v", err)
	}
	chats, err := r.List(ctx, repository.SupportFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 0 {
		t.Errorf("expected expired chat to be unlisted, got %d", len(chats))
	}
}

func TestSupportRepository_FailedUpdateStoresNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, clock := newTestRepository()
	seedChat(t, r, "chat-1", "acc-1", clock.Now())

	boom := errors.New("boom")
	_, err := r.Update(ctx, "chat-1", func(c *domain.SupportChat) error {
		c.Status = domain.ChatStatusEnded
		c.Append("acc-1", "rider", "lost", clock.Now())
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected update error, got %v", err)
	}

	chat, err := r.Get(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if chat.Status != domain.ChatStatusActive || len(chat.Messages) != 1 {
		t.Errorf("failed update leaked into the store: %+v", chat)
	}
}

func TestSupportRepository_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, clock := newTestRepository()
	seedChat(t, r, "chat-1", "acc-1", clock.Now())

	chat, _ := r.Get(ctx, "chat-1")
	chat.Messages[0].Text = "edited"
	chat.Status = domain.ChatStatusEnded

	again, _ := r.Get(ctx, "chat-1")
	if again.Messages[0].Text != "hello" || again.Status != domain.ChatStatusActive {
		t.Errorf("stored chat was modified through a returned copy: %+v", again)
	}
}

func TestSupportRepository_CreateRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	r, clock := newTestRepository()
	seedChat(t, r, "chat-1", "acc-1", clock.Now())

	err := r.Create(context.Background(), &domain.SupportChat{ID: "chat-1"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestSupportRepository_ListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, clock := newTestRepository()
	start := clock.Now()
	seedChat(t, r, "old", "acc-1", start)
	seedChat(t, r, "new", "acc-1", start.Add(time.Hour))
	seedChat(t, r, "other", "acc-2", start.Add(2*time.Hour))
	if _, err := r.Update(ctx, "old", func(c *domain.SupportChat) error {
		c.Status = domain.ChatStatusEnded
		c.UpdatedAt = start.Add(3 * time.Hour)
		return nil
	}); err != nil {
		t.Fatalf("end old: %v", err)
	}

	testCases := []struct {
		name   string
		filter repository.SupportFilter
		want   []string
	}{
		{"everything, latest update first", repository.SupportFilter{}, []string{"old", "other", "new"}},
		{"by account", repository.SupportFilter{AccountID: "acc-1"}, []string{"old", "new"}},
		{"by status", repository.SupportFilter{Status: domain.ChatStatusActive}, []string{"other", "new"}},
		{"by user type", repository.SupportFilter{UserType: "captain"}, nil},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			chats, err := r.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(chats) != len(tc.want) {
				t.Fatalf("expected %v, got %d chats", tc.want, len(chats))
			}
			for i, id := range tc.want {
				if chats[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, chats[i].ID)
				}
			}
		})
	}
}
