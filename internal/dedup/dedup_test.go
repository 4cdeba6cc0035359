package dedup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint("Markets Rally On Rate Cut", "https://news.example.com/markets/rally")

	same := []struct {
		name  string
		title string
		url   string
	}{
		{"identical", "Markets Rally On Rate Cut", "https://news.example.com/markets/rally"},
		{"case folded", "MARKETS RALLY on rate cut", "HTTPS://NEWS.EXAMPLE.COM/markets/rally"},
		{"whitespace collapsed", "  Markets   Rally\tOn Rate Cut ", "https://news.example.com/markets/rally"},
	}
	for _, tt := range same {
		if got := Fingerprint(tt.title, tt.url); got != base {
			t.Errorf("%s: fingerprint changed: %s != %s", tt.name, got, base)
		}
	}

	if Fingerprint("Markets Rally On Rate Cut", "https://news.example.com/other") == base {
		t.Error("different URL should change the fingerprint")
	}
	if Fingerprint("Markets Slide On Rate Cut", "https://news.example.com/markets/rally") == base {
		t.Error("different title should change the fingerprint")
	}
}

func TestCheckAndInsertExactlyOnce(t *testing.T) {
	idx := Open("")
	fp := Fingerprint("One Story", "https://news.example.com/one")

	const callers = 64
	var wg sync.WaitGroup
	var isNew atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := idx.CheckAndInsert(context.Background(), fp)
			if err != nil {
				t.Errorf("CheckAndInsert: %v", err)
				return
			}
			if ok {
				isNew.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := isNew.Load(); got != 1 {
		t.Errorf("isNew=true returned %d times for one fingerprint, want exactly 1", got)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}

func TestIndexRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	fps := []string{
		Fingerprint("a", "https://a.example.com"),
		Fingerprint("b", "https://b.example.com"),
		Fingerprint("c", "https://c.example.com"),
	}

	idx := Open(path)
	for _, fp := range fps {
		if ok, _ := idx.CheckAndInsert(context.Background(), fp); !ok {
			t.Fatalf("fresh fingerprint %s reported as seen", fp)
		}
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := Open(path)
	if reopened.Len() != len(fps) {
		t.Fatalf("reopened Len() = %d, want %d", reopened.Len(), len(fps))
	}
	for _, fp := range fps {
		if ok, _ := reopened.CheckAndInsert(context.Background(), fp); ok {
			t.Errorf("persisted fingerprint %s reported as new after reload", fp)
		}
	}
}

func TestIndexCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(path, []byte("{definitely not a json array"), 0o644); err != nil {
		t.Fatal(err)
	}

	idx := Open(path)
	if idx.Len() != 0 {
		t.Errorf("corrupt file loaded %d fingerprints, want empty index", idx.Len())
	}
	if ok, _ := idx.CheckAndInsert(context.Background(), "abc"); !ok {
		t.Error("empty index should accept the first insert")
	}
}

func TestIndexEphemeralWithoutPath(t *testing.T) {
	idx := Open("")
	idx.CheckAndInsert(context.Background(), "abc")
	if err := idx.Save(); err != nil {
		t.Errorf("Save without a path should be a no-op, got %v", err)
	}
}
