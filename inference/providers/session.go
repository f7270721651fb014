package providers

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/zlog"
)

// Config selects the device and threading for an ONNX Runtime session.
type Config struct {
	Device Device
	// IntraOpThreads parallelizes work inside a node. Zero lets the runtime decide.
	IntraOpThreads int
	// InterOpThreads parallelizes independent nodes. Zero lets the runtime decide.
	InterOpThreads int
	CUDA           CUDAOptions
	CoreML         CoreMLOptions
	OpenVINO       OpenVINOOptions
}

// DefaultConfig returns the provider defaults for the given device.
func DefaultConfig(device Device) Config {
	return Config{
		Device:   device,
		CUDA:     DefaultCUDAOptions(),
		OpenVINO: DefaultOpenVINOOptions(),
	}
}

var envMu sync.Mutex

// InitEnvironment points the runtime at its shared library and initializes it. It is safe
// to call more than once; later calls are no-ops.
//
// Arguments:
//   - libPath: The onnxruntime shared library. Empty means DefaultLibraryPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		libPath = DefaultLibraryPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing onnxruntime environment")
	}
	return nil
}

// SessionOptions builds session options for cfg. With DeviceAuto each candidate
// accelerator is tried in turn and CPU is used when none can be appended; an explicit
// device that cannot be appended is an error.
//
// Arguments:
//   - cfg: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller must Destroy them.
//   - Device: The device the options will run on.
//   - error: An error if the options cannot be created or the explicit device is unavailable.
func SessionOptions(cfg Config) (*ort.SessionOptions, Device, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, "", errors.Wrap(err, "error creating session options")
	}

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, "", errors.Wrap(err, "error setting graph optimization level")
	}
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		options.Destroy()
		return nil, "", errors.Wrap(err, "error setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		options.Destroy()
		return nil, "", errors.Wrap(err, "error setting inter-op threads")
	}

	device := cfg.Device
	if device == "" {
		device = DeviceAuto
	}

	for _, candidate := range Candidates(device, runtime.GOOS, runtime.GOARCH) {
		err := appendProvider(options, candidate, cfg)
		if err == nil {
			return options, candidate, nil
		}
		if device != DeviceAuto {
			options.Destroy()
			return nil, "", errors.Wrapf(err, "error enabling %s", candidate)
		}
		zlog.Warn("execution provider unavailable, trying next",
			zap.String("device", string(candidate)), zap.Error(err))
	}

	return options, DeviceCPU, nil
}

func appendProvider(options *ort.SessionOptions, device Device, cfg Config) error {
	switch device {
	case DeviceCPU:
		return nil
	case DeviceCUDA:
		cuda, err := cfg.CUDA.ToNativeProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return options.AppendExecutionProviderCUDA(cuda)
	case DeviceCoreML:
		return options.AppendExecutionProviderCoreML(cfg.CoreML.Flags())
	case DeviceOpenVINO:
		return options.AppendExecutionProviderOpenVINO(cfg.OpenVINO.toMap())
	default:
		return fmt.Errorf("unsupported device %q", device)
	}
}

// Session is an ONNX Runtime session with one preallocated float32 input and output.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
	Device  Device
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// Input and output node names expected by the model.
	InputName  string
	OutputName string
	// Tensor shapes, e.g. [1, 3, 224, 224] and [1, 4].
	InputShape  []int64
	OutputShape []int64
	Provider    Config
}

// NewSession creates a session with preallocated input and output tensors bound to it.
// InitEnvironment must have succeeded first.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session. Close releases its native resources.
//   - error: An error if tensor allocation, options or model loading fail.
func NewSession(args NewSessionArgs) (*Session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(args.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(args.OutputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	var session *ort.AdvancedSession
	device, err := openWithFallback(args.Provider, func(cfg Config) (Device, error) {
		options, device, err := SessionOptions(cfg)
		if err != nil {
			return "", err
		}
		defer options.Destroy()

		session, err = ort.NewAdvancedSession(
			args.ModelPath,
			[]string{args.InputName},
			[]string{args.OutputName},
			[]ort.Value{input},
			[]ort.Value{output},
			options,
		)
		if err != nil {
			return device, errors.Wrapf(err, "error creating onnxruntime session on %s", device)
		}
		return device, nil
	})
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	return &Session{Session: session, Input: input, Output: output, Device: device}, nil
}

// openWithFallback calls open with cfg. When cfg.Device is auto and open fails after
// picking an accelerator, for instance because the provider appended but no device is
// present, it is called once more on the CPU.
//
// Arguments:
//   - cfg: The provider configuration.
//   - open: Creates the session and reports the device it tried; "" if it got no further
//     than building options.
//
// Returns:
//   - Device: The device the session runs on.
//   - error: The last error from open.
func openWithFallback(cfg Config, open func(Config) (Device, error)) (Device, error) {
	device, err := open(cfg)
	if err == nil {
		return device, nil
	}
	if (cfg.Device != DeviceAuto && cfg.Device != "") || device == "" || device == DeviceCPU {
		return "", err
	}

	zlog.Warn("session creation failed on accelerator, retrying on cpu",
		zap.String("device", string(device)), zap.Error(err))
	cpu := cfg
	cpu.Device = DeviceCPU
	device, err = open(cpu)
	if err != nil {
		return "", err
	}
	return device, nil
}

// Run executes the session on the bound tensors.
func (s *Session) Run() error {
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying onnxruntime session")
		}
	}
	return nil
}
