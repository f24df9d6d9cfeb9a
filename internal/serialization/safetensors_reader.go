package serialization

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// MaxHeaderSize bounds the JSON header accepted by ReadSafeTensors.
const MaxHeaderSize = 100 << 20

// ReadSafeTensors loads every tensor of a SafeTensors file onto the CPU and
// returns them with the file metadata. Offsets are validated and, when
// present, the data checksum is verified.
func ReadSafeTensors(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: File path comes from user input
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read file")
	}
	return DecodeSafeTensors(content)
}

// DecodeSafeTensors parses a SafeTensors encoding held in memory.
func DecodeSafeTensors(content []byte) (map[string]*tensor.RawTensor, map[string]string, error) {
	if len(content) < 8 {
		return nil, nil, errors.New("file too short for header size")
	}
	headerSize := binary.LittleEndian.Uint64(content[:8])
	if headerSize > MaxHeaderSize || headerSize > uint64(len(content)-8) {
		return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	payload := content[8+headerSize:]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(content[8:8+headerSize], &fields); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse header")
	}

	var meta map[string]string
	if rawMeta, ok := fields["__metadata__"]; ok {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, nil, errors.Wrap(err, "failed to parse metadata")
		}
		delete(fields, "__metadata__")
	}
	if stored, ok := meta[checksumKey]; ok {
		if err := ValidateChecksum(payload, stored); err != nil {
			return nil, nil, err
		}
	}

	headers := make(map[string]SafeTensorHeader, len(fields))
	for name, raw := range fields {
		var h SafeTensorHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse header of tensor %q", name)
		}
		headers[name] = h
	}
	if err := validateOffsets(headers, int64(len(payload))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]*tensor.RawTensor, len(headers))
	for name, h := range headers {
		raw, err := decodeTensor(name, h, payload)
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = raw
	}
	return tensors, meta, nil
}

// decodeTensor copies one tensor out of payload. Half-precision data is
// widened to float32. The shape is checked against the byte range before
// anything is allocated.
func decodeTensor(name string, h SafeTensorHeader, payload []byte) (*tensor.RawTensor, error) {
	half := h.DType == "F16"
	dtype, elemSize := tensor.Float32, 2
	if !half {
		var err error
		if dtype, err = safeTensorsToDType(h.DType); err != nil {
			return nil, errors.Wrapf(err, "tensor %q", name)
		}
		elemSize = dtype.Size()
	}

	shape, err := checkedShape(h.Shape, elemSize, h.DataOffsets[1]-h.DataOffsets[0])
	if err != nil {
		return nil, &ValidationError{Type: "size_mismatch", Tensor: name, Err: ErrOutOfBounds, Details: err.Error()}
	}
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", name)
	}

	src := payload[h.DataOffsets[0]:h.DataOffsets[1]]
	if !half {
		copy(raw.Data(), src)
		return raw, nil
	}
	dst := raw.AsFloat32()
	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32()
	}
	return raw, nil
}

// checkedShape converts header dimensions to a Shape whose byte size,
// at elemSize bytes per element, is exactly size.
func checkedShape(dims []int64, elemSize int, size int64) (tensor.Shape, error) {
	shape := make(tensor.Shape, len(dims))
	n := int64(elemSize)
	for i, d := range dims {
		if d <= 0 {
			return nil, errors.Errorf("invalid dimension %d at index %d", d, i)
		}
		if n > size/d {
			return nil, errors.Errorf("shape %v needs more than the %d bytes stored", dims, size)
		}
		n *= d
		shape[i] = int(d)
	}
	if n != size {
		return nil, errors.Errorf("shape %v needs %d bytes, %d stored", dims, n, size)
	}
	return shape, nil
}

// validateOffsets checks that tensor byte ranges are in bounds and disjoint.
func validateOffsets(headers map[string]SafeTensorHeader, dataSize int64) error {
	type span struct {
		name       string
		start, end int64
	}
	spans := make([]span, 0, len(headers))
	for name, h := range headers {
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return &ValidationError{
				Type: "out_of_bounds", Tensor: name, Err: ErrOutOfBounds,
				Details: "offsets outside data section",
			}
		}
		spans = append(spans, span{name, start, end})
	}
	slices.SortFunc(spans, func(a, b span) int {
		return int(a.start - b.start)
	})
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return &ValidationError{
				Type: "offset_overlap", Tensor: spans[i].name, Err: ErrOffsetOverlap,
				Details: "overlaps " + spans[i-1].name,
			}
		}
	}
	return nil
}
