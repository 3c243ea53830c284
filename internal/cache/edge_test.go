package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*EdgeCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewEdgeCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create edge cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewEdgeCache(t *testing.T) {
	c, _ := setupTestRedis(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewEdgeCacheRejectsBadURL(t *testing.T) {
	if _, err := NewEdgeCache("not a url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestEdgePutAndGet(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, SpeechKey("talk"), "json"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	entry := Entry{ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	if err := c.Put(ctx, SpeechKey("talk"), "json", entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := c.Get(ctx, SpeechKey("talk"), "json")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Body) != `{"ok":true}` || got.ContentType != "application/json" {
		t.Errorf("unexpected entry: %+v", got)
	}

	if _, ok, _ := c.Get(ctx, SpeechKey("talk"), "an"); ok {
		t.Error("variants are stored independently")
	}
}

func TestEdgeEntriesExpire(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Put(ctx, KeySpeechIndex, "json", Entry{Body: []byte("[]")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, ok, err := c.Get(ctx, KeySpeechIndex, "json"); err != nil || ok {
		t.Errorf("expected expired entry, got ok=%v err=%v", ok, err)
	}
}

func TestEdgeInvalidateDropsEveryVariant(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	for _, variant := range []string{"json", "an"} {
		if err := c.Put(ctx, SpeechKey("talk"), variant, Entry{Body: []byte(variant)}); err != nil {
			t.Fatalf("Put %s failed: %v", variant, err)
		}
	}
	if err := c.Put(ctx, SpeechKey("other"), "json", Entry{Body: []byte("keep")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := c.Invalidate(ctx, []string{SpeechKey("talk"), SectionKey(404)}); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	for _, variant := range []string{"json", "an"} {
		if _, ok, _ := c.Get(ctx, SpeechKey("talk"), variant); ok {
			t.Errorf("variant %s should be gone", variant)
		}
	}
	if _, ok, _ := c.Get(ctx, SpeechKey("other"), "json"); !ok {
		t.Error("unrelated key should survive")
	}
	if err := c.Invalidate(ctx, nil); err != nil {
		t.Errorf("empty invalidation should be a no-op: %v", err)
	}
}
