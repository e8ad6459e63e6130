package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hismailbulut/vimim/internal/config"
	"github.com/hismailbulut/vimim/internal/ipc"
	"github.com/hismailbulut/vimim/internal/store"
	"github.com/hismailbulut/vimim/internal/switcher"
	"github.com/hismailbulut/vimim/internal/types"
)

type sentSignal struct {
	signal string
	args   []string
}

type fakeSignalClient struct {
	address  string
	sent     []sentSignal
	payloads map[string]string
	err      error
	closed   bool
}

func (c *fakeSignalClient) Send(signal string, args ...string) (string, error) {
	c.sent = append(c.sent, sentSignal{signal: signal, args: args})
	if c.err != nil {
		return "", c.err
	}
	return c.payloads[signal], nil
}

func (c *fakeSignalClient) Close() error {
	c.closed = true
	return nil
}

func fixedFactory(client *fakeSignalClient) clientFactory {
	return func(address string) (signalClient, error) {
		client.address = address
		return client, nil
	}
}

type recordingRunner struct {
	mu       sync.Mutex
	commands []string
}

func (r *recordingRunner) Run(ctx context.Context, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	return "", nil
}

func (r *recordingRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func TestDaemonCommandFlags(t *testing.T) {
	var got daemonOptions
	cmd := NewDaemonCommand(&bytes.Buffer{}, func(opts daemonOptions) error {
		got = opts
		return nil
	})
	err := cmd.Run([]string{
		"--config", "/tmp/vimim.toml",
		"--listen", "-",
		"--address", "/tmp/nvim.sock",
		"--log-file", "/tmp/vimim.log",
		"--verbose",
	})
	if err != nil {
		t.Fatalf("expected daemon run to succeed, got err=%v", err)
	}
	want := daemonOptions{
		configPath: "/tmp/vimim.toml",
		listen:     "-",
		address:    "/tmp/nvim.sock",
		logFile:    "/tmp/vimim.log",
		verbose:    true,
	}
	if got != want {
		t.Fatalf("unexpected options: %#v", got)
	}
}

func TestDaemonCommandRejectsStdioWithAddress(t *testing.T) {
	called := false
	cmd := NewDaemonCommand(&bytes.Buffer{}, func(opts daemonOptions) error {
		called = true
		return nil
	})
	if err := cmd.Run([]string{"--stdio", "--address", "/tmp/nvim.sock"}); err == nil {
		t.Fatalf("expected error")
	}
	if called {
		t.Fatalf("daemon must not start")
	}
}

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSig  string
		wantArgs []string
		wantErr  bool
	}{
		{name: "mode", args: []string{"mode", "insert"}, wantSig: ipc.SignalMode, wantArgs: []string{"insert"}},
		{name: "mode without name", args: []string{"mode"}, wantSig: ipc.SignalMode},
		{name: "key", args: []string{"key", "<Esc>"}, wantSig: ipc.SignalKey, wantArgs: []string{"<Esc>"}},
		{name: "key without key", args: []string{"key"}, wantErr: true},
		{name: "unknown target", args: []string{"buffer"}, wantErr: true},
		{name: "no target", args: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSignalClient{}
			cmd := NewSendCommand(&bytes.Buffer{}, &bytes.Buffer{}, fixedFactory(fake))
			err := cmd.Run(append([]string{"--addr", "127.0.0.1:1"}, tt.args...))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if len(fake.sent) != 0 {
					t.Fatalf("nothing should be sent, got %#v", fake.sent)
				}
				return
			}
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if fake.address != "127.0.0.1:1" || !fake.closed {
				t.Fatalf("unexpected client use: address=%q closed=%v", fake.address, fake.closed)
			}
			if len(fake.sent) != 1 {
				t.Fatalf("expected one signal, got %#v", fake.sent)
			}
			got := fake.sent[0]
			if got.signal != tt.wantSig || strings.Join(got.args, ",") != strings.Join(tt.wantArgs, ",") {
				t.Fatalf("unexpected signal: %#v", got)
			}
		})
	}
}

func TestSendCommandUsesConfiguredAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[daemon]\nlisten = \"127.0.0.1:4242\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fake := &fakeSignalClient{}
	cmd := NewSendCommand(&bytes.Buffer{}, &bytes.Buffer{}, fixedFactory(fake))
	if err := cmd.Run([]string{"--config", path, "mode", "visual"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fake.address != "127.0.0.1:4242" {
		t.Fatalf("unexpected address %q", fake.address)
	}
}

func TestSendCommandReportsRemoteError(t *testing.T) {
	fake := &fakeSignalClient{err: &ipc.RemoteError{Message: "boom"}}
	cmd := NewSendCommand(&bytes.Buffer{}, &bytes.Buffer{}, fixedFactory(fake))
	err := cmd.Run([]string{"--addr", "x", "key", "r"})
	var remote *ipc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestStatusCommandPrintsTable(t *testing.T) {
	payload, err := json.Marshal(statusPayload{
		State: switcher.State{
			InsertIM: "pinyin",
			VisualIM: "us",
			Previous: switcher.ModeInsert,
			Seq:      4,
		},
		ConfigPath: "/tmp/config.toml",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	fake := &fakeSignalClient{payloads: map[string]string{ipc.SignalStatus: string(payload)}}
	stdout := &bytes.Buffer{}
	cmd := NewStatusCommand(stdout, &bytes.Buffer{}, fixedFactory(fake))
	if err := cmd.Run([]string{"--addr", "x"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"/tmp/config.toml", "pinyin", "insert", "4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommandSendsCount(t *testing.T) {
	records := []types.CommandRecord{{
		ID:        "a",
		Kind:      types.CommandObtain,
		Mode:      "insert",
		Command:   "im-select",
		Output:    "com.apple.inputmethod.SCIM.ITABC",
		StartedAt: time.Now(),
	}}
	payload, _ := json.Marshal(records)
	fake := &fakeSignalClient{payloads: map[string]string{ipc.SignalHistory: string(payload)}}
	stdout := &bytes.Buffer{}
	cmd := NewHistoryCommand(stdout, &bytes.Buffer{}, fixedFactory(fake))
	if err := cmd.Run([]string{"--addr", "x", "-n", "5"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0].signal != ipc.SignalHistory || fake.sent[0].args[0] != "5" {
		t.Fatalf("unexpected signals %#v", fake.sent)
	}
	if !strings.Contains(stdout.String(), "com.apple.inputmethod.SCIM.ITABC") {
		t.Fatalf("history output missing obtained im:\n%s", stdout.String())
	}
}

func newTestHandler(t *testing.T, cfg config.Config) (*signalHandler, *recordingRunner) {
	t.Helper()
	runner := &recordingRunner{}
	cfgStore := config.NewStore(cfg)
	history, err := store.Open(filepath.Join(t.TempDir(), "state.db"), 10)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { history.Close() })
	sw := switcher.New(cfgStore, runner, switcher.WithPlatform(false), switcher.WithRecorder(history))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		sw.Wait()
	})
	return &signalHandler{switcher: sw, config: cfgStore, history: history}, runner
}

func settle(t *testing.T, sw *switcher.Switcher) {
	t.Helper()
	if err := sw.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	sw.Wait()
}

func TestSignalHandlerDrivesSwitcher(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultIM = "us"
	cfg.DefaultInsertIM = "pinyin"
	cfg.SwitchCmd = "im-select {im}"
	handler, runner := newTestHandler(t, cfg)

	if _, err := handler.dispatch(ipc.SignalMode, []string{"insert"}); err != nil {
		t.Fatalf("MODE: %v", err)
	}
	settle(t, handler.switcher)
	if _, err := handler.dispatch(ipc.SignalKey, []string{"<Esc>"}); err != nil {
		t.Fatalf("KEY: %v", err)
	}
	if _, err := handler.dispatch(ipc.SignalMode, nil); err != nil {
		t.Fatalf("MODE without name: %v", err)
	}
	settle(t, handler.switcher)

	got := strings.Join(runner.Commands(), "|")
	if got != "im-select pinyin|im-select us" {
		t.Fatalf("unexpected commands %q", got)
	}

	payload, err := handler.dispatch(ipc.SignalStatus, nil)
	if err != nil {
		t.Fatalf("STATUS: %v", err)
	}
	var status statusPayload
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State.Previous != switcher.ModeNormal || status.State.InsertIM != "pinyin" {
		t.Fatalf("unexpected state %#v", status.State)
	}

	payload, err = handler.dispatch(ipc.SignalHistory, []string{"1"})
	if err != nil {
		t.Fatalf("HISTORY: %v", err)
	}
	var records []types.CommandRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) != 1 || records[0].Command != "im-select us" {
		t.Fatalf("unexpected history %#v", records)
	}
}

func TestSignalHandlerErrors(t *testing.T) {
	handler, _ := newTestHandler(t, config.Default())
	tests := []struct {
		name   string
		signal string
		args   []string
	}{
		{name: "key without key", signal: ipc.SignalKey},
		{name: "bad history count", signal: ipc.SignalHistory, args: []string{"many"}},
		{name: "unknown", signal: "GOTOLINE", args: []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := handler.dispatch(tt.signal, tt.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestConfigCommandSetGetShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	run := func(args ...string) string {
		t.Helper()
		stdout := &bytes.Buffer{}
		cmd := NewConfigCommand(stdout, &bytes.Buffer{})
		if err := cmd.Run(append([]string{"--config", path}, args...)); err != nil {
			t.Fatalf("config %v: %v", args, err)
		}
		return stdout.String()
	}

	run("set", config.KeySwitchCmd, "im-select", "{im}")
	if got := strings.TrimSpace(run("get", config.KeySwitchCmd)); got != "im-select {im}" {
		t.Fatalf("get switchCmd = %q", got)
	}
	if got := strings.TrimSpace(run("path")); got != path {
		t.Fatalf("path = %q", got)
	}
	if out := run("show"); !strings.Contains(out, "im-select {im}") {
		t.Fatalf("show output missing value:\n%s", out)
	}

	cmd := NewConfigCommand(&bytes.Buffer{}, &bytes.Buffer{})
	if err := cmd.Run([]string{"--config", path, "set", "noSuchKey", "x"}); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestConfigCommandLegacyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	legacy := filepath.Join(dir, "data.json")
	if err := os.WriteFile(legacy, []byte(`{"defaultIM":"us","obtainCmd":"im-select","theme":"dark"}`), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}

	cmd := NewConfigCommand(&bytes.Buffer{}, &bytes.Buffer{})
	if err := cmd.Run([]string{"--config", path, "import", legacy}); err != nil {
		t.Fatalf("import: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultIM != "us" || cfg.ObtainCmd != "im-select" {
		t.Fatalf("unexpected imported config %#v", cfg)
	}

	if err := cmd.Run([]string{"--config", path, "set", config.KeyDefaultIM, "dvorak"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cmd.Run([]string{"--config", path, "export", legacy}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(legacy)
	if err != nil {
		t.Fatalf("read legacy: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"defaultIM":"dvorak"`) || !strings.Contains(out, `"theme":"dark"`) {
		t.Fatalf("unexpected export %s", out)
	}
}
