package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSetGet(t *testing.T) {
	c := New(true)
	etag := c.Set("k", []byte(`{"a":1}`), time.Minute)

	data, got, ok := c.Get("k")
	if !ok {
		t.Fatal("want hit")
	}
	if string(data) != `{"a":1}` || got != etag {
		t.Fatalf("unexpected entry %s %s", data, got)
	}
	if _, _, ok := c.Get("missing"); ok {
		t.Fatal("want miss")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.ActiveKeys != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestExpired(t *testing.T) {
	c := New(true)
	c.Set("k", []byte("x"), -time.Second)
	if _, _, ok := c.Get("k"); ok {
		t.Fatal("want expired entry to miss")
	}
	if s := c.Stats(); s.ExpiredKeys != 1 {
		t.Fatalf("want 1 expired key, got %+v", s)
	}
}

func TestDisabled(t *testing.T) {
	c := New(false)
	etag := c.Set("k", []byte("x"), time.Minute)
	if etag == "" {
		t.Fatal("want etag even when disabled")
	}
	if _, _, ok := c.Get("k"); ok {
		t.Fatal("want disabled cache to miss")
	}
}

func TestDeletePrefix(t *testing.T) {
	c := New(true)
	alice, bob := uuid.New(), uuid.New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	c.Set(PredictionKey(alice, day), []byte("a1"), time.Minute)
	c.Set(PredictionKey(alice, day.AddDate(0, 0, 1)), []byte("a2"), time.Minute)
	c.Set(PredictionKey(bob, day), []byte("b1"), time.Minute)

	if n := c.DeletePrefix(PredictionPrefix(alice)); n != 2 {
		t.Fatalf("want 2 deleted, got %d", n)
	}
	if _, _, ok := c.Get(PredictionKey(bob, day)); !ok {
		t.Fatal("want other user's entry kept")
	}
}

func TestCheckETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("body"))
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"*", true},
		{etag, true},
		{`W/"other", ` + etag, true},
		{`W/"other"`, false},
	}
	for _, tt := range tests {
		if got := CheckETagMatch(tt.header, etag); got != tt.want {
			t.Errorf("CheckETagMatch(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
