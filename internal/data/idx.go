package data

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// IDX magic numbers of unsigned-byte image and label files.
const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// LoadIDX reads an MNIST-style image/label file pair into an InMemory
// dataset. Pixels are scaled to [0, 1]; each sample has shape [rows, cols].
func LoadIDX(imagesPath, labelsPath string) (*InMemory, error) {
	imagesFile, err := os.Open(imagesPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open images")
	}
	defer imagesFile.Close()

	labelsFile, err := os.Open(labelsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open labels")
	}
	defer labelsFile.Close()

	return ReadIDX(imagesFile, labelsFile)
}

// ReadIDX is LoadIDX for already opened streams.
func ReadIDX(images, labels io.Reader) (*InMemory, error) {
	pixels, shape, err := readIDXImages(images)
	if err != nil {
		return nil, errors.Wrap(err, "images")
	}
	raw, err := readIDXLabels(labels)
	if err != nil {
		return nil, errors.Wrap(err, "labels")
	}
	if len(raw)*shape.NumElements() != len(pixels) {
		return nil, errors.Errorf("%d labels for %d images", len(raw), len(pixels)/shape.NumElements())
	}

	inputs := make([]float32, len(pixels))
	for i, p := range pixels {
		inputs[i] = float32(p) / 255
	}
	ys := make([]int32, len(raw))
	for i, y := range raw {
		ys[i] = int32(y)
	}
	return NewInMemory(inputs, ys, shape)
}

// readIDXImages reads an image file:
//
//	magic number: 0x00000803 (2051)
//	number of images, rows, cols: 4 bytes each, big endian
//	pixel data: unsigned bytes
func readIDXImages(r io.Reader) ([]byte, tensor.Shape, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}
	if header[0] != idxImagesMagic {
		return nil, nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], idxImagesMagic)
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if rows == 0 || cols == 0 {
		return nil, nil, errors.Errorf("invalid image size %dx%d", rows, cols)
	}

	pixels := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read %d images", n)
	}
	return pixels, tensor.Shape{rows, cols}, nil
}

// readIDXLabels reads a label file:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes, big endian
//	label data: unsigned bytes
func readIDXLabels(r io.Reader) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	if header[0] != idxLabelsMagic {
		return nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], idxLabelsMagic)
	}

	labels := make([]byte, header[1])
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d labels", header[1])
	}
	return labels, nil
}
