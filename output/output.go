// Package output lays a run out on disk. Every item lands in its own
// directory, which appears only once all of its frames are written.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

var ErrExists = errors.New("output: item exists")

const (
	ParameterFile = "parameter.txt"
	ConditionFile = "condition.png"
)

// RunName names a run after its schedule temperatures.
func RunName(p schedule.Params) string {
	return fmt.Sprintf("gen_inference_t%.2f_auto_t%.2f", p.InferenceTemp, p.AutoTemp)
}

type Run struct {
	Dir string
}

// Open creates the run directory under root, if needed, and records the
// schedule parameters in it.
func Open(root string, p schedule.Params) (*Run, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(root, RunName(p))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "inference_temp: %s\n", formatFloat(p.InferenceTemp))
	fmt.Fprintf(&sb, "auto_temp: %s\n", formatFloat(p.AutoTemp))
	if err := os.WriteFile(filepath.Join(dir, ParameterFile), []byte(sb.String()), 0o644); err != nil {
		return nil, err
	}

	return &Run{Dir: dir}, nil
}

// formatFloat always keeps a decimal point, so 1 reads as 1.0.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ItemDir is the final directory of an item.
func (r *Run) ItemDir(name string, index int) string {
	return filepath.Join(r.Dir, name, strconv.Itoa(index))
}

func (r *Run) partialDir(name string, index int) string {
	return filepath.Join(r.Dir, name, "."+strconv.Itoa(index)+".partial")
}

// Exists reports whether an item has already been produced.
func (r *Run) Exists(name string, index int) bool {
	_, err := os.Stat(r.ItemDir(name, index))
	return err == nil
}

// Begin prepares a staging directory for an item. It returns ErrExists if
// the item is already done and discards leftovers of an interrupted attempt.
func (r *Run) Begin(name string, index int) (*Writer, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid item name %q", name)
	}

	if r.Exists(name, index) {
		return nil, fmt.Errorf("%w: %s", ErrExists, r.ItemDir(name, index))
	}

	partial := r.partialDir(name, index)
	if _, err := os.Stat(partial); err == nil {
		slog.Info("removing incomplete output", "path", partial)
		if err := os.RemoveAll(partial); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(partial, 0o755); err != nil {
		return nil, err
	}

	return &Writer{partial: partial, final: r.ItemDir(name, index)}, nil
}

// Partial lists the staging directories left behind by interrupted items.
func (r *Run) Partial() ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(r.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasSuffix(d.Name(), ".partial") {
			dirs = append(dirs, path)
			return filepath.SkipDir
		}
		return nil
	})
	return dirs, err
}

// Writer stages the files of one item.
type Writer struct {
	partial string
	final   string
	done    bool
}

// WriteFrames writes frames as 0.png, 1.png, ... in order.
func (w *Writer) WriteFrames(frames []view.View) error {
	for i, f := range frames {
		if err := view.SavePNG(f.Image, filepath.Join(w.partial, strconv.Itoa(i)+".png")); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func (w *Writer) WriteCondition(v view.View) error {
	return view.SavePNG(v.Image, filepath.Join(w.partial, ConditionFile))
}

// Commit moves the staged files into place.
func (w *Writer) Commit() error {
	if err := os.Rename(w.partial, w.final); err != nil {
		return err
	}
	w.done = true
	return nil
}

// Abort discards the staged files. It is a no-op after Commit.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	return os.RemoveAll(w.partial)
}

func (w *Writer) Dir() string {
	return w.final
}
