package providers

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in   string
		want Device
		err  bool
	}{
		{"", DeviceAuto, false},
		{"auto", DeviceAuto, false},
		{"CPU", DeviceCPU, false},
		{" cuda ", DeviceCUDA, false},
		{"coreml", DeviceCoreML, false},
		{"openvino", DeviceOpenVINO, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDevice(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []Device{DeviceCoreML, DeviceCPU}, Candidates(DeviceAuto, "darwin", "arm64"))
	assert.Equal(t, []Device{DeviceCPU}, Candidates(DeviceAuto, "darwin", "amd64"))
	assert.Equal(t, []Device{DeviceCUDA, DeviceCPU}, Candidates(DeviceAuto, "linux", "amd64"))
	assert.Equal(t, []Device{DeviceCPU}, Candidates(DeviceAuto, "freebsd", "amd64"))
	assert.Equal(t, []Device{DeviceOpenVINO}, Candidates(DeviceOpenVINO, "linux", "amd64"))
}

func TestProviderOptionMaps(t *testing.T) {
	cuda := DefaultCUDAOptions().toMap()
	assert.Equal(t, "0", cuda["device_id"])
	assert.Equal(t, "1", cuda["do_copy_in_default_stream"])
	assert.Equal(t, "HEURISTIC", cuda["cudnn_conv_algo_search"])
	assert.NotContains(t, cuda, "gpu_mem_limit")

	vino := OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 4}.toMap()
	assert.Equal(t, map[string]string{"device_type": "GPU", "precision": "FP16", "num_of_threads": "4"}, vino)

	assert.Equal(t, uint32(0), CoreMLOptions{}.Flags())
	assert.Equal(t, CoreMLFlagUseCPUOnly|CoreMLFlagOnlyEnableDeviceWithANE,
		CoreMLOptions{UseCPUOnly: true, RequireANE: true}.Flags())
}

func TestInitEnvironmentMissingLibrary(t *testing.T) {
	err := InitEnvironment(t.TempDir() + "/libonnxruntime-missing.so")
	assert.Error(t, err)
}

func TestDefaultLibraryPath(t *testing.T) {
	assert.NotEmpty(t, DefaultLibraryPath())
}

func TestOpenWithFallback(t *testing.T) {
	fail := errors.New("no CUDA-capable device is detected")

	t.Run("auto retries on cpu", func(t *testing.T) {
		var tried []Device
		device, err := openWithFallback(Config{Device: DeviceAuto}, func(cfg Config) (Device, error) {
			tried = append(tried, cfg.Device)
			if cfg.Device == DeviceAuto {
				return DeviceCUDA, fail
			}
			return DeviceCPU, nil
		})
		require.NoError(t, err)
		assert.Equal(t, DeviceCPU, device)
		assert.Equal(t, []Device{DeviceAuto, DeviceCPU}, tried)
	})

	t.Run("explicit device does not retry", func(t *testing.T) {
		calls := 0
		_, err := openWithFallback(Config{Device: DeviceCUDA}, func(Config) (Device, error) {
			calls++
			return DeviceCUDA, fail
		})
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, 1, calls)
	})

	t.Run("cpu failure is final", func(t *testing.T) {
		calls := 0
		_, err := openWithFallback(Config{}, func(Config) (Device, error) {
			calls++
			return DeviceCPU, fail
		})
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, 1, calls)
	})

	t.Run("options failure is final", func(t *testing.T) {
		calls := 0
		_, err := openWithFallback(Config{Device: DeviceAuto}, func(Config) (Device, error) {
			calls++
			return "", fail
		})
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, 1, calls)
	})
}
