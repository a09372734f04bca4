package cloud

import (
	"bytes"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCloud() *PointCloud {
	return &PointCloud{Points: []Point{
		{Position: r3.Vector{X: 0.5, Y: -1.25, Z: 3}, Color: color.RGBA{R: 255, G: 0, B: 17, A: 255}},
		{Position: r3.Vector{X: -0.001, Y: 2, Z: 10.75}, Color: color.RGBA{R: 1, G: 2, B: 3, A: 255}},
		{Position: r3.Vector{X: 0, Y: 0, Z: 0.125}, Color: color.RGBA{A: 255}},
	}}
}

func TestEncodePLYHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePLY(&buf, sampleCloud()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 10+3)
	assert.Equal(t, []string{
		"ply",
		"format ascii 1.0",
		"element vertex 3",
		"property float x",
		"property float y",
		"property float z",
		"property uchar red",
		"property uchar green",
		"property uchar blue",
		"end_header",
	}, lines[:10])
	assert.Equal(t, "0.5 -1.25 3 255 0 17", lines[10])
	assert.Equal(t, "0 0 0.125 0 0 0", lines[12])
}

func TestEncodePLYEmptyCloud(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePLY(&buf, &PointCloud{}))
	assert.Contains(t, buf.String(), "element vertex 0\n")
	assert.True(t, strings.HasSuffix(buf.String(), "end_header\n"))

	pc, err := DecodePLY(&buf)
	require.NoError(t, err)
	assert.Zero(t, pc.Len())
}

func TestEncodePLYNonFiniteCoordinates(t *testing.T) {
	pc := &PointCloud{Points: []Point{
		{Position: r3.Vector{X: math.Inf(1), Y: math.Inf(-1), Z: math.NaN()}, Color: color.RGBA{R: 9, G: 8, B: 7, A: 255}},
	}}
	var buf bytes.Buffer
	require.NoError(t, EncodePLY(&buf, pc))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, "+Inf -Inf NaN 9 8 7", lines[10])

	got, err := DecodePLY(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.True(t, math.IsInf(got.Points[0].Position.X, 1))
	assert.True(t, math.IsInf(got.Points[0].Position.Y, -1))
	assert.True(t, math.IsNaN(got.Points[0].Position.Z))
	assert.Equal(t, pc.Points[0].Color, got.Points[0].Color)
}

func TestWritePLYRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	want := sampleCloud()
	require.NoError(t, WritePLY(path, want))

	got, err := ReadPLY(path)
	require.NoError(t, err)
	require.Equal(t, want.Len(), got.Len())
	for i := range want.Points {
		assert.InDelta(t, want.Points[i].Position.X, got.Points[i].Position.X, 1e-6)
		assert.InDelta(t, want.Points[i].Position.Y, got.Points[i].Position.Y, 1e-6)
		assert.InDelta(t, want.Points[i].Position.Z, got.Points[i].Position.Z, 1e-6)
		assert.Equal(t, want.Points[i].Color, got.Points[i].Color)
	}
}

func TestWritePLYOverwritesPreviousFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)

	require.NoError(t, WritePLY(path, sampleCloud()))
	require.NoError(t, WritePLY(path, &PointCloud{Points: sampleCloud().Points[:1]}))

	got, err := ReadPLY(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWritePLYMissingDirectory(t *testing.T) {
	err := WritePLY(filepath.Join(t.TempDir(), "missing", DefaultFileName), sampleCloud())
	assert.Error(t, err)
}

func TestDecodePLYRejectsMalformedInput(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, EncodePLY(&good, sampleCloud()))
	text := good.String()

	tests := []struct {
		name  string
		input string
	}{
		{"binary format", strings.Replace(text, "format ascii 1.0", "format binary_little_endian 1.0", 1)},
		{"count too high", strings.Replace(text, "element vertex 3", "element vertex 4", 1)},
		{"count too low", strings.Replace(text, "element vertex 3", "element vertex 2", 1)},
		{"color out of range", strings.Replace(text, "255 0 17", "256 0 17", 1)},
		{"missing field", strings.Replace(text, "1 2 3\n", "1 2\n", 1)},
		{"bad float", strings.Replace(text, "0.5 -1.25", "0.5 abc", 1)},
		{"truncated header", "ply\nformat ascii 1.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePLY(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadPLYMissingFile(t *testing.T) {
	_, err := ReadPLY(filepath.Join(t.TempDir(), "nope.ply"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
