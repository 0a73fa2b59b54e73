// Package player opens downloaded videos in an external media player.
package player

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mmcdole/tagflow/internal/domain"
)

// ErrNoMedia is returned for videos without a file on disk
var ErrNoMedia = errors.New("video has no media file")

// Launcher starts an external player for a video's file
type Launcher struct {
	command string   // configured player command, empty to auto-detect
	args    []string // extra arguments placed before the file
	logger  *slog.Logger

	// Swappable for tests
	lookPath func(string) (string, error)
	start    func(name string, args ...string) error
}

// launchPath is one way to start a player on a platform
type launchPath struct {
	path      string   // "mpv", or "open-a:AppName" for macOS bundles
	openFlags []string // flags for the macOS open command
}

// players maps a player name to its launch paths per GOOS
var players = map[string]map[string][]launchPath{
	"mpv": {
		"darwin":  {{path: "mpv"}},
		"linux":   {{path: "mpv"}},
		"windows": {{path: "mpv"}},
	},
	"vlc": {
		"darwin":  {{path: "vlc"}, {path: "open-a:VLC"}},
		"linux":   {{path: "vlc"}},
		"windows": {{path: "vlc"}},
	},
	"iina": {
		"darwin": {{path: "open-a:IINA", openFlags: []string{"-n"}}},
	},
	"celluloid": {
		"linux": {{path: "celluloid"}},
	},
}

// candidates is the detection order per GOOS
var candidates = map[string][]string{
	"darwin":  {"iina", "mpv", "vlc"},
	"linux":   {"mpv", "celluloid", "vlc"},
	"windows": {"mpv", "vlc"},
}

// NewLauncher creates a launcher for command, or for the first detected
// player when command is empty
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command:  command,
		args:     args,
		logger:   logger,
		lookPath: exec.LookPath,
		start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
}

// Play opens v's file. The player runs detached; Play returns once it started.
func (l *Launcher) Play(v domain.Video) error {
	if v.FilePath == "" {
		return fmt.Errorf("%w: %s", ErrNoMedia, v.DisplayTitle())
	}
	target := filepath.Clean(v.FilePath)

	if l.command != "" {
		return l.launchConfigured(target)
	}
	if name, err := l.detect(target); err == nil {
		l.logger.Info("launched detected player", "player", name, "video_id", v.ID)
		return nil
	}
	l.logger.Info("no known player found, using system default")
	return l.launchDefault(target)
}

func (l *Launcher) launchConfigured(target string) error {
	args := append(append([]string{}, l.args...), target)
	l.logger.Info("launching player", "command", l.command, "args", args)

	// GUI bundles on macOS are not on PATH
	if runtime.GOOS == "darwin" {
		if _, err := l.lookPath(l.command); err != nil {
			return l.start("open", openArgs(l.command, nil, l.args, target)...)
		}
	}
	return l.start(l.command, args...)
}

func (l *Launcher) detect(target string) (string, error) {
	names, ok := candidates[runtime.GOOS]
	if !ok {
		names = candidates["linux"]
	}
	for _, name := range names {
		for _, lp := range players[name][runtime.GOOS] {
			var err error
			if app, ok := strings.CutPrefix(lp.path, "open-a:"); ok {
				err = l.start("open", openArgs(app, lp.openFlags, l.args, target)...)
			} else if _, err = l.lookPath(lp.path); err == nil {
				err = l.start(lp.path, append(append([]string{}, l.args...), target)...)
			}
			if err == nil {
				return name, nil
			}
			l.logger.Debug("launch path unavailable", "player", name, "path", lp.path, "error", err)
		}
	}
	return "", errors.New("no candidate players found")
}

func (l *Launcher) launchDefault(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return l.start("open", target)
	case "windows":
		return l.start("cmd", "/c", "start", "", target)
	default:
		return l.start("xdg-open", target)
	}
}

// openArgs builds arguments for macOS "open -a"
func openArgs(app string, flags, playerArgs []string, target string) []string {
	args := append([]string{}, flags...)
	args = append(args, "-a", app)
	if len(playerArgs) > 0 {
		args = append(args, "--args")
		args = append(args, playerArgs...)
	}
	return append(args, target)
}
