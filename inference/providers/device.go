// Package providers - Compute device selection and ONNX Runtime session options.
package providers

import (
	"fmt"
	"runtime"
	"strings"
)

// Device names a compute target for inference.
type Device string

const (
	// DeviceAuto picks the best accelerator for the platform and falls back to CPU.
	DeviceAuto Device = "auto"
	// DeviceCPU runs on the default CPU provider.
	DeviceCPU Device = "cpu"
	// DeviceCUDA uses NVIDIA CUDA for GPU acceleration.
	DeviceCUDA Device = "cuda"
	// DeviceCoreML uses Apple CoreML for macOS acceleration.
	DeviceCoreML Device = "coreml"
	// DeviceOpenVINO uses Intel OpenVINO for inference optimization.
	DeviceOpenVINO Device = "openvino"
)

// ParseDevice converts a configuration value into a Device. An empty value means auto.
//
// Arguments:
//   - s: The configured device name, case insensitive.
//
// Returns:
//   - Device: The parsed device.
//   - error: An error if the name is unknown.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DeviceAuto, nil
	case DeviceAuto, DeviceCPU, DeviceCUDA, DeviceCoreML, DeviceOpenVINO:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// Candidates returns the devices to try, in order, for the requested device. An explicit
// device is tried alone. Auto tries the platform accelerator first and always ends with CPU.
func Candidates(d Device, goos, goarch string) []Device {
	if d != DeviceAuto {
		return []Device{d}
	}
	switch {
	case goos == "darwin" && goarch == "arm64":
		return []Device{DeviceCoreML, DeviceCPU}
	case goos == "linux" || goos == "windows":
		return []Device{DeviceCUDA, DeviceCPU}
	default:
		return []Device{DeviceCPU}
	}
}

// DefaultLibraryPath returns where the onnxruntime shared library is expected for the
// current platform when no path is configured.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
}
