package config

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = store.Update(func(cfg *Config) error {
		return cfg.Set(KeyDefaultIM, "us")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if store.Current().DefaultIM != "us" {
		t.Fatalf("update not visible: %#v", store.Current())
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DefaultIM != "us" {
		t.Fatalf("update not persisted: %#v", loaded)
	}
}

func TestStoreUpdateErrorKeepsConfig(t *testing.T) {
	store := NewStore(Config{DefaultIM: "us"})
	boom := errors.New("boom")
	err := store.Update(func(cfg *Config) error {
		cfg.DefaultIM = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if store.Current().DefaultIM != "us" {
		t.Fatalf("failed update leaked: %#v", store.Current())
	}
}

func TestStoreSwapAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	prev := store.Swap(Config{DefaultIM: "memory"})
	if prev.DefaultIM != "" {
		t.Fatalf("unexpected previous config: %#v", prev)
	}
	if err := Save(path, Config{DefaultIM: "disk"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if store.Current().DefaultIM != "disk" {
		t.Fatalf("reload did not swap: %#v", store.Current())
	}
}

func TestReloadNeverRestoresOlderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := store.Reload(); err != nil {
					t.Errorf("Reload: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		value := "im-" + strconv.Itoa(i)
		err := store.Update(func(cfg *Config) error {
			return cfg.Set(KeyDefaultIM, value)
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	wg.Wait()

	if got := store.Current().DefaultIM; got != "im-49" {
		t.Fatalf("active config = %q, want the last update", got)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DefaultIM != "im-49" {
		t.Fatalf("file = %q, want the last update", loaded.DefaultIM)
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Config{DefaultIM: "before"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reloaded := make(chan Config, 4)
	w, err := Watch(store, func(cfg Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := Save(path, Config{DefaultIM: "after"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case cfg := <-reloaded:
		if cfg.DefaultIM != "after" {
			t.Fatalf("unexpected reloaded config: %#v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not reload")
	}
	if store.Current().DefaultIM != "after" {
		t.Fatalf("store not updated: %#v", store.Current())
	}
}
