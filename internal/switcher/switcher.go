// Package switcher turns editor mode transitions into input method switch
// commands.
//
// All runtime state is owned by the goroutine running Switcher.Run. Host
// notifications, results of external commands and control requests are
// queued on one channel and handled strictly in order, so nothing in here
// needs a lock except the published snapshot.
package switcher

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hismailbulut/vimim/internal/config"
	"github.com/hismailbulut/vimim/internal/types"
	"github.com/hismailbulut/vimim/pkg/bench"
	"github.com/hismailbulut/vimim/pkg/logger"
)

const eventQueueSize = 256

var ErrStopped = errors.New("switcher stopped")

// ConfigSource provides the active configuration. It is read once per event.
type ConfigSource interface {
	Current() config.Config
}

// Recorder receives every finished external command.
type Recorder interface {
	Record(rec types.CommandRecord)
}

type Option func(*Switcher)

// WithPlatform overrides the platform detected from runtime.GOOS.
func WithPlatform(windows bool) Option {
	return func(s *Switcher) {
		s.state.Windows = windows
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Switcher) {
		s.recorder = r
	}
}

type eventKind int

const (
	eventMode eventKind = iota
	eventKey
	eventObtained
	eventRestore
	eventSync
)

type event struct {
	kind   eventKind
	mode   *ModeChange
	key    string
	seq    uint64
	output string
	err    error
	cache  types.IMCache
	done   chan struct{}
}

type Switcher struct {
	cfg      ConfigSource
	runner   Runner
	recorder Recorder

	events  chan event
	stopped chan struct{}
	once    sync.Once

	// Owned by the event loop
	state State
	ctx   context.Context
	// insertGen counts writes to the insert cache. Obtain results are tagged
	// with it and dropped when the cache was written after their launch.
	insertGen uint64

	snapMu sync.RWMutex
	snap   State

	procs sync.WaitGroup
}

func New(cfg ConfigSource, runner Runner, opts ...Option) *Switcher {
	s := &Switcher{
		cfg:     cfg,
		runner:  runner,
		events:  make(chan event, eventQueueSize),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
	}
	s.state.Windows = runtime.GOOS == "windows"
	for _, opt := range opts {
		opt(s)
	}
	profile := cfg.Current().Profile(s.state.Windows)
	s.state.InsertIM = firstNonEmpty(profile.InsertIM, profile.DefaultIM)
	s.state.VisualIM = firstNonEmpty(profile.VisualIM, profile.DefaultIM)
	s.state.ReplaceIM = firstNonEmpty(profile.ReplaceIM, profile.DefaultIM)
	if s.state.Windows {
		logger.Log(logger.DEBUG, "Using windows configuration")
	}
	s.publish()
	return s
}

// Run handles queued events until ctx is done. Commands launched by the loop
// are bound to ctx.
func (s *Switcher) Run(ctx context.Context) error {
	s.ctx = ctx
	defer s.once.Do(func() { close(s.stopped) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// OnModeChanged queues a mode change notification of the host.
func (s *Switcher) OnModeChanged(change *ModeChange) {
	ev := event{kind: eventMode}
	if change != nil {
		c := *change
		ev.mode = &c
	}
	s.post(ev)
}

// OnKeypress queues a key notification of the host.
func (s *Switcher) OnKeypress(key string) {
	s.post(event{kind: eventKey, key: key})
}

// Restore replaces the cached sub-mode input methods. Empty fields are
// ignored.
func (s *Switcher) Restore(cache types.IMCache) {
	s.post(event{kind: eventRestore, cache: cache})
}

// Sync returns after every event queued before the call has been handled.
func (s *Switcher) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.events <- event{kind: eventSync, done: done}:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every launched external command has finished.
func (s *Switcher) Wait() {
	s.procs.Wait()
}

// State returns a snapshot of the runtime state.
func (s *Switcher) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Switcher) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
		logger.Log(logger.DEBUG, "Switcher stopped, event dropped")
	}
}

func (s *Switcher) publish() {
	s.snapMu.Lock()
	s.snap = s.state
	s.snapMu.Unlock()
}

func (s *Switcher) handle(ev event) {
	switch ev.kind {
	case eventMode:
		s.modeChanged(ev.mode)
	case eventKey:
		s.keypress(ev.key)
	case eventObtained:
		s.obtained(ev)
	case eventRestore:
		s.restore(ev.cache)
	case eventSync:
		close(ev.done)
	}
	s.publish()
}

func (s *Switcher) modeChanged(change *ModeChange) {
	if change == nil {
		logger.Log(logger.WARN, "Empty mode change ignored")
		return
	}
	mode := ParseMode(change.Mode)
	logger.Log(logger.DEBUG, "Mode changed:", change.Mode)
	switch mode {
	case ModeInsert, ModeVisual, ModeReplace:
		s.switchTo(mode)
	default:
		if s.state.Previous == ModeNormal {
			return
		}
		s.switchToNormal()
	}
}

func (s *Switcher) keypress(key string) {
	switch key {
	case "Escape", "<Esc>":
		logger.Log(logger.DEBUG, "Press esc")
		s.switchToNormal()
	case "r":
		logger.Log(logger.DEBUG, "Press r")
		s.switchTo(ModeInsert)
	}
}

// resolveTarget picks the input method of a sub-mode: the explicit default of
// the sub-mode, then the cached one, then the generic default. The cache
// slot always takes the result.
func (s *Switcher) resolveTarget(profile config.Profile, mode Mode) string {
	slot := s.state.slot(mode)
	var explicit string
	switch mode {
	case ModeInsert:
		explicit = profile.InsertIM
	case ModeVisual:
		explicit = profile.VisualIM
	case ModeReplace:
		explicit = profile.ReplaceIM
	}
	target := firstNonEmpty(explicit, *slot, profile.DefaultIM)
	*slot = target
	return target
}

func (s *Switcher) switchTo(mode Mode) {
	profile := s.cfg.Current().Profile(s.state.Windows)
	target := s.resolveTarget(profile, mode)
	if mode == ModeInsert {
		s.insertGen++
	}
	s.state.Seq++
	logger.Log(logger.DEBUG, "Change to", mode)
	s.fire(profile.SwitchCmd, mode, target)
	s.state.Previous = mode
}

func (s *Switcher) switchToNormal() {
	profile := s.cfg.Current().Profile(s.state.Windows)
	s.state.Seq++
	logger.Log(logger.DEBUG, "Change to", ModeNormal)
	if s.state.Previous == ModeInsert {
		if profile.InsertIM != "" {
			s.state.InsertIM = profile.InsertIM
			s.insertGen++
		} else if profile.ObtainCmd != "" {
			s.obtain(profile.ObtainCmd)
		}
	}
	// Does not wait for the obtain command, the normal input method is known
	s.fire(profile.SwitchCmd, ModeNormal, profile.DefaultIM)
	s.state.Previous = ModeNormal
}

func (s *Switcher) fire(template string, mode Mode, im string) {
	command := ExpandCommand(template, im)
	if command == "" {
		return
	}
	s.launch(types.CommandRecord{
		Kind:    types.CommandSwitch,
		Mode:    mode.String(),
		IM:      im,
		Command: command,
		Seq:     s.state.Seq,
	}, nil)
}

// obtain reads the insert input method back from the system. Its output is
// adopted without trailing line terminators, so the value fits in switchCmd.
func (s *Switcher) obtain(command string) {
	s.insertGen++
	gen := s.insertGen
	s.launch(types.CommandRecord{
		Kind:    types.CommandObtain,
		Mode:    ModeInsert.String(),
		Command: command,
		Seq:     s.state.Seq,
	}, func(output string, err error) {
		ev := event{kind: eventObtained, seq: gen, output: output, err: err}
		select {
		case s.events <- ev:
		case <-s.stopped:
		}
	})
}

// launch runs rec.Command in its own goroutine. Failures end up in the log
// and in the recorder, never in the state machine.
func (s *Switcher) launch(rec types.CommandRecord, done func(output string, err error)) {
	rec.ID = uuid.NewString()
	ctx := s.ctx
	s.procs.Add(1)
	go func() {
		defer s.procs.Done()
		stop := bench.Begin()
		rec.StartedAt = time.Now()
		output, err := s.runner.Run(ctx, rec.Command)
		rec.Duration = time.Since(rec.StartedAt)
		stop(string(rec.Kind)+":"+rec.Mode, err != nil)
		rec.Output = output
		if err != nil {
			rec.Error = err.Error()
			logger.Log(logger.ERROR, rec.Kind, "error:", err)
		} else {
			logger.Log(logger.TRACE, rec.Kind, "im:", rec.Command)
		}
		if s.recorder != nil {
			s.recorder.Record(rec)
		}
		if done != nil {
			done(output, err)
		}
	}()
}

func (s *Switcher) obtained(ev event) {
	if ev.err != nil {
		return
	}
	if ev.seq != s.insertGen {
		logger.Log(logger.DEBUG, "Discarding stale obtained im", strings.TrimSpace(ev.output), "from generation", ev.seq, "current", s.insertGen)
		return
	}
	s.state.InsertIM = strings.TrimRight(ev.output, "\r\n")
	logger.Log(logger.DEBUG, "Obtain im:", s.state.InsertIM)
}

func (s *Switcher) restore(cache types.IMCache) {
	if cache.InsertIM != "" {
		s.state.InsertIM = cache.InsertIM
		s.insertGen++
	}
	if cache.VisualIM != "" {
		s.state.VisualIM = cache.VisualIM
	}
	if cache.ReplaceIM != "" {
		s.state.ReplaceIM = cache.ReplaceIM
	}
	logger.Log(logger.DEBUG, "Restored im cache:", s.state.InsertIM, s.state.VisualIM, s.state.ReplaceIM)
}

// Cache returns the sub-mode input methods of a state.
func (st State) Cache() types.IMCache {
	return types.IMCache{
		InsertIM:  st.InsertIM,
		VisualIM:  st.VisualIM,
		ReplaceIM: st.ReplaceIM,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
