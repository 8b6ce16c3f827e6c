package imageprocessor

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"proofcheck/fixtures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestPreprocessProducesCanonicalImage(t *testing.T) {
	dir := t.TempDir()
	src, err := fixtures.Write(dir, "photo.jpg", fixtures.Scene(800, 600, 1))
	require.NoError(t, err)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	tmpDir := t.TempDir()
	p := NewPreprocessor(512, tmpDir)
	norm := p.Preprocess(src)
	require.False(t, norm.Fallback)
	assert.NotEqual(t, src, norm.Path)

	img, err := LoadImage(norm.Path)
	require.NoError(t, err)
	assert.Equal(t, 512, img.Rows())
	assert.Equal(t, 512, img.Cols())
	assert.Equal(t, 3, img.Channels())
	img.Close()

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after, "original must not be mutated")

	norm.Close()
	_, err = os.Stat(norm.Path)
	assert.True(t, os.IsNotExist(err), "temp file must be removed on Close")
	norm.Close()
}

func TestPreprocessFallsBackOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not a png"), 0o644))

	tmpDir := t.TempDir()
	norm := NewPreprocessor(512, tmpDir).Preprocess(bad)
	assert.True(t, norm.Fallback)
	assert.Equal(t, bad, norm.Path)
	norm.Close()

	_, err := os.Stat(bad)
	assert.NoError(t, err, "fallback Close must not remove the original")

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp file may leak")
}

func TestPreprocessMissingFile(t *testing.T) {
	norm := NewPreprocessor(512, t.TempDir()).Preprocess("/does/not/exist.png")
	assert.True(t, norm.Fallback)
	assert.Equal(t, "/does/not/exist.png", norm.Path)
}

func TestLoadGIFThroughGoDecoder(t *testing.T) {
	path, err := fixtures.Write(t.TempDir(), "anim.gif", fixtures.Scene(64, 48, 2))
	require.NoError(t, err)

	img, err := LoadImage(path)
	require.NoError(t, err)
	defer img.Close()
	assert.Equal(t, 48, img.Rows())
	assert.Equal(t, 64, img.Cols())
	assert.Equal(t, 3, img.Channels())
}

func TestLoadImageUnreadable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "x.jpg")
	require.NoError(t, os.WriteFile(bad, []byte{0, 1, 2}, 0o644))

	_, err := LoadImage(bad)
	assert.ErrorIs(t, err, ErrUnreadableImage)

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrUnreadableImage)
}

func TestAverageHash(t *testing.T) {
	dir := t.TempDir()
	a, err := fixtures.Write(dir, "a.png", fixtures.Scene(300, 200, 3))
	require.NoError(t, err)
	b, err := fixtures.Write(dir, "b.png", fixtures.Solid(300, 200, color.Black))
	require.NoError(t, err)

	imgA, err := LoadImage(a)
	require.NoError(t, err)
	defer imgA.Close()
	imgB, err := LoadImage(b)
	require.NoError(t, err)
	defer imgB.Close()

	hashA, err := ComputeAverageHash(imgA, 16)
	require.NoError(t, err)
	assert.Equal(t, 256, hashA.Bits)
	assert.Len(t, hashA.String(), 64)

	again, err := ComputeAverageHash(imgA, 16)
	require.NoError(t, err)
	d, err := HammingDistance(hashA, again)
	require.NoError(t, err)
	assert.Zero(t, d)

	hashB, err := ComputeAverageHash(imgB, 16)
	require.NoError(t, err)
	d, err = HammingDistance(hashA, hashB)
	require.NoError(t, err)
	assert.Greater(t, d, 0)

	small, err := ComputeAverageHash(imgA, 8)
	require.NoError(t, err)
	_, err = HammingDistance(hashA, small)
	assert.Error(t, err)
}

func TestAverageHashReportsConversionError(t *testing.T) {
	twoChannel := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC2)
	defer twoChannel.Close()

	_, err := ComputeAverageHash(twoChannel, 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grayscale conversion")
}

func TestFormats(t *testing.T) {
	assert.Equal(t, FormatJPEG, GetFileFormat("x.JPEG"))
	assert.Equal(t, FormatWEBP, GetFileFormat("x.webp"))
	assert.Equal(t, FormatUnknown, GetFileFormat("x.tiff"))
	assert.True(t, IsAllowedFormat("a.gif"))
	assert.False(t, IsAllowedFormat("a.bmp"))
}

func TestCanLoad(t *testing.T) {
	dir := t.TempDir()
	png, err := fixtures.Write(dir, "ok.png", fixtures.Scene(16, 16, 3))
	require.NoError(t, err)
	bmp := filepath.Join(dir, "scan.bmp")
	require.NoError(t, os.WriteFile(bmp, []byte("BM"), 0o644))

	assert.True(t, CanLoad(png))
	assert.False(t, CanLoad(bmp))
	assert.False(t, CanLoad(filepath.Join(dir, "missing.png")))

	r := &ImageLoaderRegistry{}
	assert.False(t, r.CanLoadFile(png))
	r.RegisterLoader(&GoImageLoader{})
	assert.True(t, r.CanLoadFile(png))
}
