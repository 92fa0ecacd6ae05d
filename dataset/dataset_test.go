package dataset

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"

	"github.com/ollama/turntable/view"
)

// encode returns a 4x4 PNG whose left half is opaque red and right half
// fully transparent black.
func encode(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 2 {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, img))
	return b.Bytes()
}

func TestDirectory(t *testing.T) {
	raw := encode(t)
	dir := fs.NewDir(t, "real",
		fs.WithFile("mug.png", "", fs.WithBytes(raw)),
		fs.WithFile("chair.rgba.png", "", fs.WithBytes(raw)),
		fs.WithFile("notes.txt", "not an image"),
		fs.WithDir("nested.png"),
	)

	items, err := Directory(dir.Path())
	require.NoError(t, err)

	assert.Equal(t, []Item{
		{Name: "chair", Path: dir.Join("chair.rgba.png"), Matte: MatteComposite},
		{Name: "mug", Path: dir.Join("mug.png"), Matte: MatteComposite},
	}, items)
}

func TestDirectoryEmpty(t *testing.T) {
	dir := fs.NewDir(t, "real", fs.WithFile("notes.txt", ""))

	_, err := Directory(dir.Path())
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = Directory(dir.Join("missing"))
	assert.Error(t, err)
}

func TestDirectoryDuplicateNames(t *testing.T) {
	raw := encode(t)
	dir := fs.NewDir(t, "real",
		fs.WithFile("mug.jpg", "", fs.WithBytes(raw)),
		fs.WithFile("mug.png", "", fs.WithBytes(raw)),
	)

	_, err := Directory(dir.Path())
	assert.ErrorContains(t, err, `mug.jpg and mug.png both name item "mug"`)
}

func TestManifest(t *testing.T) {
	cases := []struct {
		name     string
		manifest string
	}{
		{"manifest.json", `{"shoe": 7, "bowl": "12"}`},
		{"manifest.yaml", "shoe: 7\nbowl: \"12\"\n"},
		{"manifest.yml", "bowl: 12\nshoe: 7\n"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			dir := fs.NewDir(t, "renderings", fs.WithFile(tt.name, tt.manifest))

			items, err := Manifest(dir.Join(tt.name), "")
			require.NoError(t, err)

			assert.Equal(t, []Item{
				{Name: "bowl", Index: 12, Path: dir.Join("bowl", "012.png"), Matte: MatteFill},
				{Name: "shoe", Index: 7, Path: dir.Join("shoe", "007.png"), Matte: MatteFill},
			}, items)
		})
	}
}

func TestManifestPattern(t *testing.T) {
	dir := fs.NewDir(t, "renderings", fs.WithFile("list.json", `{"shoe": 3}`))

	items, err := Manifest(dir.Join("list.json"), `/data/{{.Name}}_{{.Index}}.png`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, filepath.FromSlash("/data/shoe_3.png"), items[0].Path)
}

func TestManifestErrors(t *testing.T) {
	dir := fs.NewDir(t, "renderings",
		fs.WithFile("empty.json", `{}`),
		fs.WithFile("bad.json", `{"shoe": "seven"}`),
		fs.WithFile("negative.yaml", `shoe: -1`),
		fs.WithFile("ok.json", `{"shoe": 1}`),
	)

	_, err := Manifest(dir.Join("empty.json"), "")
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = Manifest(dir.Join("bad.json"), "")
	assert.ErrorContains(t, err, "invalid condition index")

	_, err = Manifest(dir.Join("negative.yaml"), "")
	assert.ErrorContains(t, err, "negative index")

	_, err = Manifest(dir.Join("ok.json"), "{{.Missing}}")
	assert.Error(t, err)

	_, err = Manifest(dir.Join("ok.json"), "{{")
	assert.ErrorContains(t, err, "path pattern")

	_, err = Manifest(dir.Join("missing.json"), "")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	raw := encode(t)
	dir := fs.NewDir(t, "real", fs.WithFile("mug.png", "", fs.WithBytes(raw)))

	for _, matte := range []Matte{MatteComposite, MatteFill} {
		t.Run(matte.String(), func(t *testing.T) {
			v, err := Item{Name: "mug", Path: dir.Join("mug.png"), Matte: matte}.Load(4, 4)
			require.NoError(t, err)
			assert.Equal(t, 0.0, v.Angle)

			data, err := view.Pixels(v.Image)
			require.NoError(t, err)
			require.Len(t, data, view.Channels*16)

			// opaque red stays red, transparent pixels become white
			assert.InDelta(t, 1, data[0], 1e-6)
			assert.InDelta(t, -1, data[16], 1e-6)
			assert.InDelta(t, -1, data[32], 1e-6)
			for _, c := range []int{0, 16, 32} {
				assert.InDelta(t, 1, data[c+3], 1e-6)
			}
		})
	}

	_, err := Item{Name: "gone", Path: dir.Join("gone.png")}.Load(4, 4)
	assert.ErrorContains(t, err, "gone")
}
