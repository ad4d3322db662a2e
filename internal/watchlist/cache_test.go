package watchlist

import (
	"sync"
	"testing"
)

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Replace("feed", &Snapshot{
		FreshnessToken: "tok",
		Items:          map[string]Item{"k1": {Title: "Alien"}},
		Missing:        map[string]int{},
	})

	snap := c.Get("feed")
	snap.Items["k2"] = Item{Title: "Aliens"}
	snap.FreshnessToken = "mutated"

	again := c.Get("feed")
	if len(again.Items) != 1 {
		t.Errorf("Mutating a returned snapshot must not affect the cache")
	}
	if again.FreshnessToken != "tok" {
		t.Errorf("Expected token tok, got %q", again.FreshnessToken)
	}
}

func TestCacheGetUnknownFeed(t *testing.T) {
	c := NewCache()
	if c.Get("nope") != nil {
		t.Error("Unknown feed should return nil")
	}
	if c.Token("nope") != "" {
		t.Error("Unknown feed should have an empty token")
	}
}

func TestCacheForget(t *testing.T) {
	c := NewCache()
	c.Replace("feed", &Snapshot{FreshnessToken: "tok"})
	c.Forget("feed")
	if c.Get("feed") != nil {
		t.Error("Forgotten feed should be gone")
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d feeds", c.Len())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Replace("feed", &Snapshot{FreshnessToken: "tok"})
				c.Get("feed")
				c.Token("feed")
			}
		}()
	}
	wg.Wait()
}
