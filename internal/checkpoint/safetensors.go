// Package checkpoint reads and writes parameter state in SafeTensors
// format.
//
// File layout:
//
//	[8 bytes: header size, uint64 LE]
//	[header: JSON, tensor names to dtype/shape/offsets]
//	[tensor data: raw bytes, alphabetical by name]
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/floe-ml/floe/internal/tensor"
)

// tensorInfo describes one tensor in the header.
type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

const maxHeaderSize = 100 << 20

func dtypeName(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.BFloat16:
		return "BF16", nil
	case tensor.Float16:
		return "F16", nil
	case tensor.Float32:
		return "F32", nil
	default:
		return "", errors.Errorf("checkpoint: unsupported dtype %s", dt)
	}
}

func dtypeFromName(name string) (tensor.DataType, error) {
	switch name {
	case "BF16":
		return tensor.BFloat16, nil
	case "F16":
		return tensor.Float16, nil
	case "F32":
		return tensor.Float32, nil
	default:
		return 0, errors.Errorf("checkpoint: unsupported dtype %q", name)
	}
}

// Save writes tensors to path in SafeTensors format. Tensor data is laid
// out in alphabetical name order.
func Save(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		dt, err := dtypeName(t.DType())
		if err != nil {
			return errors.Wrapf(err, "tensor %q", name)
		}
		shape := t.Shape()
		dims := make([]int64, len(shape))
		for i, d := range shape {
			dims[i] = int64(d)
		}
		size := int64(t.ByteSize())
		header[name] = tensorInfo{
			DType:       dt,
			Shape:       dims,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "checkpoint: marshal header")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "checkpoint: create")
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "checkpoint: write header size")
	}
	if _, err := f.Write(headerJSON); err != nil {
		return errors.Wrap(err, "checkpoint: write header")
	}
	for _, name := range names {
		if _, err := f.Write(tensors[name].Data()); err != nil {
			return errors.Wrapf(err, "checkpoint: write tensor %q", name)
		}
	}
	return f.Close()
}

// Load reads all tensors from a SafeTensors file into host memory and
// returns them with the file's metadata.
func Load(path string) (map[string]*tensor.RawTensor, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "checkpoint: open")
	}
	defer f.Close()

	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, errors.Wrap(err, "checkpoint: read header size")
	}
	if headerSize == 0 || headerSize > maxHeaderSize {
		return nil, nil, errors.Errorf("checkpoint: invalid header size %d", headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerJSON); err != nil {
		return nil, nil, errors.Wrap(err, "checkpoint: read header")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, errors.Wrap(err, "checkpoint: parse header")
	}
	var metadata map[string]string
	if meta, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(meta, &metadata); err != nil {
			return nil, nil, errors.Wrap(err, "checkpoint: parse metadata")
		}
		delete(raw, "__metadata__")
	}

	dataStart := int64(8 + headerSize)
	tensors := make(map[string]*tensor.RawTensor, len(raw))
	for name, msg := range raw {
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, nil, errors.Wrapf(err, "checkpoint: tensor %q", name)
		}
		dt, err := dtypeFromName(info.DType)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tensor %q", name)
		}
		shape := make(tensor.Shape, len(info.Shape))
		for i, d := range info.Shape {
			shape[i] = int(d)
		}
		t, err := tensor.NewRaw(shape, dt, tensor.Host)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "checkpoint: tensor %q", name)
		}
		size := info.DataOffsets[1] - info.DataOffsets[0]
		if size != int64(t.ByteSize()) {
			return nil, nil, errors.Errorf("checkpoint: tensor %q: %d bytes for shape %v", name, size, shape)
		}
		if _, err := f.ReadAt(t.Data(), dataStart+info.DataOffsets[0]); err != nil {
			return nil, nil, errors.Wrapf(err, "checkpoint: read tensor %q", name)
		}
		tensors[name] = t
	}
	return tensors, metadata, nil
}
