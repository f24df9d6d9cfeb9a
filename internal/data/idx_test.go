package data

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oh-jka/PDCED/internal/tensor"
)

func idxImages(n, rows, cols uint32, pixels []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, [4]uint32{idxImagesMagic, n, rows, cols})
	buf.Write(pixels)
	return buf.Bytes()
}

func idxLabels(labels []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, [2]uint32{idxLabelsMagic, uint32(len(labels))})
	buf.Write(labels)
	return buf.Bytes()
}

func TestReadIDX(t *testing.T) {
	images := idxImages(2, 2, 2, []byte{0, 255, 51, 102, 255, 0, 0, 0})
	labels := idxLabels([]byte{7, 1})

	ds, err := ReadIDX(bytes.NewReader(images), bytes.NewReader(labels))
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, tensor.Shape{2, 2}, ds.SampleShape())
	x, y := ds.Get(0)
	assert.InDeltaSlice(t, []float32{0, 1, 0.2, 0.4}, x, 1e-6)
	assert.Equal(t, int32(7), y)
	_, y = ds.Get(1)
	assert.Equal(t, int32(1), y)
}

func TestReadIDX_Errors(t *testing.T) {
	images := idxImages(2, 2, 2, make([]byte, 8))

	tests := []struct {
		name           string
		images, labels []byte
	}{
		{"bad image magic", idxLabels([]byte{1, 2}), idxLabels([]byte{1, 2})},
		{"bad label magic", images, images},
		{"truncated images", images[:len(images)-1], idxLabels([]byte{1, 2})},
		{"truncated labels", images, idxLabels([]byte{1, 2})[:9]},
		{"count mismatch", images, idxLabels([]byte{1, 2, 3})},
		{"empty image", idxImages(1, 0, 3, nil), idxLabels([]byte{1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadIDX(bytes.NewReader(tt.images), bytes.NewReader(tt.labels))
			assert.Error(t, err)
		})
	}
}

func TestLoadIDX(t *testing.T) {
	dir := t.TempDir()
	imagesPath := filepath.Join(dir, "images-idx3-ubyte")
	labelsPath := filepath.Join(dir, "labels-idx1-ubyte")
	require.NoError(t, os.WriteFile(imagesPath, idxImages(1, 1, 3, []byte{0, 0, 255}), 0o600))
	require.NoError(t, os.WriteFile(labelsPath, idxLabels([]byte{4}), 0o600))

	ds, err := LoadIDX(imagesPath, labelsPath)
	require.NoError(t, err)
	x, y := ds.Get(0)
	assert.Equal(t, []float32{0, 0, 1}, x)
	assert.Equal(t, int32(4), y)

	_, err = LoadIDX(filepath.Join(dir, "missing"), labelsPath)
	assert.Error(t, err)
}
