package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeConfig(t, path, "server:\n  listen_addr: ':8080'\n")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", got)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeConfig(t, path, "server:\n  log_level: shouty\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("watcher accepted an invalid initial config")
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	var mu sync.Mutex
	var gotNew *Config
	w, err := NewWatcher(path, func(_, next *Config) {
		mu.Lock()
		gotNew = next
		mu.Unlock()
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := gotNew != nil
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew == nil {
		t.Fatal("onChange never fired")
	}
	if gotNew.Server.LogLevel != LogDebug {
		t.Errorf("reloaded log_level = %q, want debug", gotNew.Server.LogLevel)
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("Current() not updated after reload")
	}
}

func TestWatcher_InvalidEditKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(_, _ *Config) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: shouty\n")

	select {
	case <-fired:
		t.Fatal("onChange fired for an invalid config")
	case <-time.After(100 * time.Millisecond):
	}
	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("Current() log_level = %q, want previous info", got)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	old := &Config{}
	old.Server.LogLevel = LogInfo
	old.Export.Dir = "./reports"

	next := &Config{}
	next.Server.LogLevel = LogDebug
	next.Export.Dir = "/var/earshot/reports"
	next.Classifier.Kind = ClassifierMock

	d := Diff(old, next)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("log level diff = %+v, want change to debug", d)
	}
	if !d.ExportDirChanged || d.NewExportDir != "/var/earshot/reports" {
		t.Errorf("export dir diff = %+v, want change", d)
	}
	if !d.RestartRequired {
		t.Error("classifier change did not flag restart")
	}

	if d := Diff(old, old); d.LogLevelChanged || d.ExportDirChanged || d.RestartRequired {
		t.Errorf("self diff reported changes: %+v", d)
	}
}
