package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"quakebot/internal/quake"
)

// renderImage runs the configured external command and returns the artifact
// path. Empty path with nil error means artifacts are disabled.
func (r *Renderer) renderImage(ctx context.Context, ev quake.Event) (string, error) {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()

	if len(cfg.ImageCommand) == 0 {
		return "", nil
	}

	dir := cfg.ArtifactDir
	if dir == "" {
		dir = os.TempDir()
	}
	// The id is feed-derived; the artifact name must stay inside dir.
	id := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, ev.ID)
	out := filepath.Join(dir, "quake-"+id+".png")

	repl := strings.NewReplacer(
		"{longitude}", strconv.FormatFloat(ev.Longitude, 'f', -1, 64),
		"{latitude}", strconv.FormatFloat(ev.Latitude, 'f', -1, 64),
		"{place}", ev.Place,
		"{magnitude}", quake.FormatMagnitude(ev.Magnitude),
		"{output}", out,
	)
	argv := make([]string, len(cfg.ImageCommand))
	for i, a := range cfg.ImageCommand {
		argv[i] = repl.Replace(a)
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.ImageTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	if outB, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("image command %s: %w: %s", argv[0], err, strings.TrimSpace(string(outB)))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("image command %s produced no artifact: %w", argv[0], err)
	}
	return out, nil
}
