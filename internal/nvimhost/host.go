// Package nvimhost connects the switcher to a running neovim.
package nvimhost

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/neovim/go-client/nvim"

	"github.com/hismailbulut/vimim/internal/config"
	"github.com/hismailbulut/vimim/internal/switcher"
	"github.com/hismailbulut/vimim/pkg/logger"
)

//go:embed vimim.vim
var RuntimeScript string

const minimumMinorVersion = 8

// Sink receives the mode and key notifications of neovim.
type Sink interface {
	OnModeChanged(change *switcher.ModeChange)
	OnKeypress(key string)
}

type Options struct {
	// Serve neovim through stdin and stdout, used when started with jobstart.
	Stdio bool
	// Where :VimImSet persists options. Nil disables the command.
	Store   *config.Store
	Name    string
	Version logger.Version
}

type Host struct {
	handle *nvim.Nvim
	sink   Sink
	store  *config.Store
	done   chan struct{}
	once   sync.Once
}

// Connect attaches to neovim, installs the runtime script and starts
// forwarding notifications to sink.
func Connect(address string, sink Sink, opts Options) (*Host, error) {
	host := &Host{
		sink:  sink,
		store: opts.Store,
		done:  make(chan struct{}),
	}

	var err error
	if opts.Stdio {
		host.handle, err = nvim.New(os.Stdin, os.Stdout, os.Stdout, func(format string, args ...interface{}) {
			logger.LogF(logger.DEBUG, format, args...)
		})
		if err != nil {
			return nil, fmt.Errorf("stdio connection: %w", err)
		}
		logger.Log(logger.TRACE, "Serving neovim through stdio")
	} else {
		host.handle, err = nvim.Dial(address,
			nvim.DialServe(false),
			nvim.DialLogf(func(format string, args ...interface{}) {
				logger.LogF(logger.DEBUG, format, args...)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to neovim at %s: %w", address, err)
		}
		logger.Log(logger.TRACE, "Connected to neovim at address:", address)
	}

	if err := host.registerHandlers(); err != nil {
		host.handle.Close()
		return nil, err
	}

	go func() {
		if err := host.handle.Serve(); err != nil {
			logger.Log(logger.DEBUG, "Neovim connection closed:", err)
		}
		host.finish()
	}()

	if err := host.setup(opts); err != nil {
		host.Close()
		return nil, err
	}
	return host, nil
}

func (host *Host) registerHandlers() error {
	handlers := map[string]interface{}{
		"VimImModeChanged": host.modeChanged,
		"VimImKeypress":    host.keypress,
		"VimImOptionSet":   host.optionSet,
		"VimImLeave": func() {
			logger.Log(logger.DEBUG, "VimLeave")
			host.finish()
		},
	}
	for name, handler := range handlers {
		if err := host.handle.RegisterHandler(name, handler); err != nil {
			return fmt.Errorf("register handler for '%s': %w", name, err)
		}
	}
	return nil
}

func (host *Host) setup(opts Options) error {
	info, err := host.handle.APIInfo()
	if err != nil {
		return fmt.Errorf("api information: %w", err)
	}
	major, minor, patch, err := apiVersion(info)
	if err != nil {
		return err
	}
	logger.Log(logger.TRACE, "Neovim version", fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if major == 0 && minor < minimumMinorVersion {
		return fmt.Errorf("neovim 0.%d.0 or newer is required, found %d.%d.%d", minimumMinorVersion, major, minor, patch)
	}

	source := prepareRuntimeScript(RuntimeScript, host.handle.ChannelID())
	if _, err := host.handle.Exec(source, false); err != nil {
		return fmt.Errorf("execute runtime script: %w", err)
	}

	version := nvim.ClientVersion{
		Major: opts.Version.Major,
		Minor: opts.Version.Minor,
		Patch: opts.Version.Patch,
	}
	name := opts.Name
	if name == "" {
		name = "vimim"
	}
	// SetClientInfo blocks until neovim answers, the daemon does not need the
	// result.
	go func() {
		err := host.handle.SetClientInfo(name, version, nvim.RemoteClientType, nil, nvim.ClientAttributes{})
		if err != nil {
			logger.Log(logger.WARN, "Failed to set client information:", err)
		}
	}()
	logger.Log(logger.DEBUG, "Runtime script installed on channel", host.handle.ChannelID())
	return nil
}

func apiVersion(info []interface{}) (major, minor, patch int, err error) {
	if len(info) < 2 {
		return 0, 0, 0, fmt.Errorf("unexpected api information")
	}
	dict, ok := info[1].(map[string]interface{})
	if !ok {
		return 0, 0, 0, fmt.Errorf("unexpected api information type %T", info[1])
	}
	v, ok := dict["version"].(map[string]interface{})
	if !ok {
		return 0, 0, 0, fmt.Errorf("api information has no version")
	}
	return toInt(v["major"]), toInt(v["minor"]), toInt(v["patch"]), nil
}

func toInt(v interface{}) int {
	switch v := v.(type) {
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func prepareRuntimeScript(source string, channel int) string {
	// Replace \r\n to \n (windows)
	source = strings.ReplaceAll(source, "\r\n", "\n")
	// Remove starting lines with # (comments)
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			lines[i] = ""
		}
	}
	source = strings.Join(lines, "\n")
	return strings.ReplaceAll(source, "$(CHANID)", strconv.Itoa(channel))
}

// translateMode turns a mode code of neovim into a mode name of the switcher.
func translateMode(code string) string {
	if code == "" {
		return ""
	}
	switch code[0] {
	case 'i':
		return "insert"
	case 'R':
		return "replace"
	case 'v', 'V', '\x16', 's', 'S', '\x13':
		return "visual"
	}
	return "normal"
}

func (host *Host) modeChanged(args ...string) {
	if len(args) == 0 || args[0] == "" {
		host.sink.OnModeChanged(nil)
		return
	}
	host.sink.OnModeChanged(&switcher.ModeChange{Mode: translateMode(args[0])})
}

func (host *Host) keypress(args ...string) {
	if len(args) == 0 {
		return
	}
	host.sink.OnKeypress(args[0])
}

// optionSet handles ":VimImSet key value". The value is the rest of the line.
func (host *Host) optionSet(args ...string) {
	if len(args) == 0 {
		return
	}
	if host.store == nil {
		logger.Log(logger.WARN, "Option", args[0], "ignored, no configuration store")
		return
	}
	key, value := args[0], strings.Join(args[1:], " ")
	err := host.store.Update(func(cfg *config.Config) error {
		return cfg.Set(key, value)
	})
	if err != nil {
		logger.Log(logger.WARN, "Failed to set option", key+":", err)
		return
	}
	logger.Log(logger.DEBUG, "Option", key, "is", value)
}

func (host *Host) finish() {
	host.once.Do(func() { close(host.done) })
}

// Done is closed when neovim leaves or the connection drops.
func (host *Host) Done() <-chan struct{} {
	return host.done
}

func (host *Host) Close() error {
	err := host.handle.Close()
	host.finish()
	return err
}
