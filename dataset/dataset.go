// Package dataset finds the input photos a run turns into turntables.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"

	"github.com/ollama/turntable/view"
)

// DefaultPattern locates the condition image of a rendered object.
const DefaultPattern = `{{.Root}}/{{.Name}}/{{printf "%03d" .Index}}.png`

var ErrNoItems = errors.New("dataset: no items")

// Matte selects how the alpha channel of an input is removed.
type Matte int

const (
	// MatteComposite blends the image over white using alpha as coverage.
	MatteComposite Matte = iota
	// MatteFill paints fully transparent pixels white and drops alpha.
	MatteFill
)

func (m Matte) String() string {
	switch m {
	case MatteFill:
		return "fill"
	default:
		return "composite"
	}
}

// Item is one object to turn.
type Item struct {
	Name  string
	Index int
	Path  string
	Matte Matte
}

// Load reads the item image, removes its background and scales it to h×w.
func (it Item) Load(h, w int) (view.View, error) {
	img, err := view.Load(it.Path)
	if err != nil {
		return view.View{}, fmt.Errorf("%s: %w", it.Name, err)
	}

	var rgba image.Image
	switch it.Matte {
	case MatteFill:
		rgba = view.FillTransparent(img, view.White)
	default:
		rgba = view.Composite(img, view.White)
	}

	return view.View{Image: view.FromImage(rgba, h, w)}, nil
}

// Directory lists every image in dir. An item is named after its file up
// to the first dot.
func Directory(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var items []Item
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}

		name, _, _ := strings.Cut(e.Name(), ".")
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%s and %s both name item %q", prev, e.Name(), name)
		}
		seen[name] = e.Name()

		items = append(items, Item{
			Name:  name,
			Path:  filepath.Join(dir, e.Name()),
			Matte: MatteComposite,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoItems, dir)
	}
	return items, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}

// Manifest reads a JSON or YAML mapping of object name to the index of its
// condition rendering. Image paths are built from pattern, which may refer
// to .Root (the manifest directory), .Name and .Index. Items are sorted by
// name.
func Manifest(path, pattern string) ([]Item, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	tmpl, err := template.New("path").Option("missingkey=error").Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("path pattern: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := make(map[string]conditionIndex)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoItems, path)
	}

	names := maps.Keys(m)
	slices.Sort(names)

	root := filepath.Dir(path)
	items := make([]Item, 0, len(names))
	for _, name := range names {
		index := int(m[name])
		if index < 0 {
			return nil, fmt.Errorf("%s: negative index %d", name, index)
		}

		var b bytes.Buffer
		if err := tmpl.Execute(&b, struct {
			Root  string
			Name  string
			Index int
		}{root, name, index}); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		items = append(items, Item{
			Name:  name,
			Index: index,
			Path:  filepath.FromSlash(b.String()),
			Matte: MatteFill,
		})
	}

	return items, nil
}

// conditionIndex accepts both 12 and "12".
type conditionIndex int

func (i *conditionIndex) set(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid condition index %q", s)
	}
	*i = conditionIndex(n)
	return nil
}

func (i *conditionIndex) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return i.set(s)
	}
	return i.set(string(b))
}

func (i *conditionIndex) UnmarshalYAML(node *yaml.Node) error {
	return i.set(node.Value)
}
