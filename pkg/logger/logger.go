package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sqweek/dialog"
)

const crashFileName = "vimim_crash.log"

var guard sync.Mutex
var cache struct {
	initTime time.Time // Time when logger was initialized
	name     string    // Name of the program using this logger
	version  Version   // Version of the program using this logger
	minLevel LogLevel  // Messages below this level are dropped
	out      io.Writer // Console output, stdout when nil
	file     *os.File  // File to write logs to
	color    bool      // Whether to use color in the output
	dialogs  bool      // Whether fatal errors open a message box
}

func Init(name string, version Version, color bool) {
	guard.Lock()
	defer guard.Unlock()
	cache.initTime = time.Now()
	cache.name = name
	cache.version = version
	cache.color = color
}

func SetLevel(level LogLevel) {
	guard.Lock()
	defer guard.Unlock()
	cache.minLevel = level
}

// SetOutput changes the console output. When vimim runs as an rpc job of
// neovim the stdout belongs to the rpc connection and logs must go to stderr.
func SetOutput(w io.Writer) {
	guard.Lock()
	defer guard.Unlock()
	cache.out = w
}

func EnableDialogs(enabled bool) {
	guard.Lock()
	defer guard.Unlock()
	cache.dialogs = enabled
}

func timeString(t time.Time) string {
	return fmt.Sprintf("%s %d", t.UTC().Format("2006-01-02 15:04:05"), t.UnixMilli())
}

func InitFile(filename string) error {
	guard.Lock()
	defer guard.Unlock()
	if cache.file != nil {
		return nil
	}
	path, err := filepath.Abs(filename)
	if err != nil {
		return fmt.Errorf("log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("log file dir: %w", err)
	}
	cache.file, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0666)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	fmt.Fprintf(cache.file, "%s %s LOG %s\n", cache.name, cache.version, timeString(time.Now()))
	return nil
}

// This function should be deferred after Init because it captures panics
func Shutdown() {
	// This will capture the panic and turns it to a fatal
	if pmsg := recover(); pmsg != nil {
		Log(FATAL, pmsg)
	} else {
		cleanup()
	}
}

func cleanup() {
	guard.Lock()
	defer guard.Unlock()
	if cache.file != nil {
		fmt.Fprintf(cache.file, "END OF LOG %s\n", timeString(time.Now()))
		cache.file.Close()
		cache.file = nil
	}
	if cache.color {
		fmt.Fprint(output(), AnsiReset)
	}
}

// Must be called with guard held.
func output() io.Writer {
	if cache.out == nil {
		return os.Stdout
	}
	return cache.out
}

func createCrashReport(msg string) {
	guard.Lock()
	defer guard.Unlock()
	crash_file, err := os.Create(crashFileName)
	if err != nil {
		return
	}
	defer crash_file.Close()
	fmt.Fprintf(crash_file, "%s %s Crash Report\n", cache.name, cache.version)
	fmt.Fprintf(crash_file, "Start Time: %s\n", timeString(cache.initTime))
	fmt.Fprintf(crash_file, "Crash Time: %s\n", timeString(time.Now()))
	fmt.Fprintf(crash_file, "\n%s %s\n", cache.name, "is crashed because of the following reason:")
	fmt.Fprintf(crash_file, "%s\n", msg)
	fmt.Fprintf(crash_file, "\n%s\n", "Stack trace:")
	stackTrace := make([]byte, 1<<15)
	stackLen := runtime.Stack(stackTrace, true)
	crash_file.Write(stackTrace[:stackLen])
}

func Log(logLevel LogLevel, message ...any) {
	guard.Lock()
	if logLevel < cache.minLevel {
		guard.Unlock()
		return
	}

	messageStr := strings.TrimRight(fmt.Sprintln(message...), "\n\t ")
	logString := fmt.Sprintf("%s %s", logLevel, messageStr)

	if cache.color {
		fmt.Fprintf(output(), "%s%s%s\n", string(logLevel.Color()), logString, AnsiReset)
	} else {
		fmt.Fprintf(output(), "%s\n", logString)
	}

	if cache.file != nil {
		fmt.Fprintf(cache.file, "%s %s\n", timeString(time.Now()), logString)
	}
	dialogs, name := cache.dialogs, cache.name
	guard.Unlock()

	if logLevel == FATAL {
		createCrashReport(logString)
		if dialogs {
			dialog.Message("%s", logString).Title(name).Error()
		}
		cleanup()
		os.Exit(1)
	}
}

func LogF(level LogLevel, format string, args ...any) {
	Log(level, fmt.Sprintf(format, args...))
}
