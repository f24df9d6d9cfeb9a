// Package device handles explicit data placement around the training loop.
//
// Only the host CPU is available; accelerator names parse but are rejected
// with ErrUnsupportedDevice.
package device

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	"github.com/oh-jka/PDCED/internal/tensor"
)

// ErrUnsupportedDevice is returned for devices this build cannot place data on.
var ErrUnsupportedDevice = errors.New("unsupported device")

// Parse maps a device name ("cpu", "cuda", "cuda:1", "webgpu") to a
// tensor.Device.
func Parse(name string) (tensor.Device, error) {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(name)), ":")
	switch base {
	case "cpu":
		return tensor.CPU, nil
	case "cuda", "gpu":
		return tensor.CUDA, nil
	case "webgpu":
		return tensor.WebGPU, nil
	}
	return tensor.CPU, errors.Errorf("unknown device %q", name)
}

// Check returns ErrUnsupportedDevice unless data can be placed on d.
func Check(d tensor.Device) error {
	if d != tensor.CPU {
		return errors.Wrapf(ErrUnsupportedDevice, "%s", d)
	}
	return nil
}

// ToDevice places raw on d. Tensors already on d are returned as is.
func ToDevice(raw *tensor.RawTensor, d tensor.Device) (*tensor.RawTensor, error) {
	if raw.Device() == d {
		return raw, nil
	}
	if err := Check(d); err != nil {
		return nil, err
	}
	return raw.CopyTo(d), nil
}

// ToHost returns host-resident copies of the tensors not yet on the CPU.
// Host tensors are passed through.
func ToHost(raws []*tensor.RawTensor) []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(raws))
	for i, r := range raws {
		if r.Device() == tensor.CPU {
			out[i] = r
			continue
		}
		out[i] = r.CopyTo(tensor.CPU)
	}
	return out
}

// Describe returns a one-line summary of the host CPU.
func Describe() string {
	var features []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			features = append(features, f.String())
		}
	}
	return fmt.Sprintf("%s (%d physical / %d logical cores) [%s]",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, strings.Join(features, " "))
}
