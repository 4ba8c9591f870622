package listener

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaria/pcos-tracker/internal/cache"
)

func TestHandleInvalidatesUser(t *testing.T) {
	c := cache.New(true)
	user, other := uuid.New(), uuid.New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.Set(cache.PredictionKey(user, day), []byte("x"), time.Minute)
	c.Set(cache.PredictionKey(other, day), []byte("y"), time.Minute)

	Handle(`{"user_id":"`+user.String()+`"}`, c, zap.NewNop())

	if _, _, ok := c.Get(cache.PredictionKey(user, day)); ok {
		t.Fatal("want user's prediction dropped")
	}
	if _, _, ok := c.Get(cache.PredictionKey(other, day)); !ok {
		t.Fatal("want other user's prediction kept")
	}
}

func TestHandleIgnoresMalformed(t *testing.T) {
	c := cache.New(true)
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c.Set(cache.PredictionKey(uuid.New(), day), []byte("x"), time.Minute)

	for _, payload := range []string{"", "not json", `{"user_id":"nope"}`, `{}`} {
		Handle(payload, c, zap.NewNop())
	}
	if s := c.Stats(); s.TotalKeys != 1 {
		t.Fatalf("want cache untouched, got %+v", s)
	}
}
