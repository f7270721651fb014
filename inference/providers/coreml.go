package providers

// CoreML flags accepted by AppendExecutionProviderCoreML.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
const (
	// CoreMLFlagUseCPUOnly limits CoreML to running on CPU only.
	CoreMLFlagUseCPUOnly uint32 = 0x001
	// CoreMLFlagEnableOnSubgraph enables CoreML on subgraphs of control flow operators.
	CoreMLFlagEnableOnSubgraph uint32 = 0x002
	// CoreMLFlagOnlyEnableDeviceWithANE only runs on devices with an Apple Neural Engine.
	CoreMLFlagOnlyEnableDeviceWithANE uint32 = 0x004
)

// CoreMLOptions contains arguments for the CoreML provider.
type CoreMLOptions struct {
	// UseCPUOnly keeps CoreML off the GPU and the Neural Engine.
	UseCPUOnly bool `json:"useCPUOnly" toml:"useCPUOnly"`
	// EnableOnSubgraph lets CoreML take nodes inside Loop, Scan and If bodies.
	EnableOnSubgraph bool `json:"enableOnSubgraph" toml:"enableOnSubgraph"`
	// RequireANE only enables CoreML on devices with a Neural Engine.
	RequireANE bool `json:"requireANE" toml:"requireANE"`
}

// Flags packs the options into the bitmask the runtime expects.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.UseCPUOnly {
		flags |= CoreMLFlagUseCPUOnly
	}
	if o.EnableOnSubgraph {
		flags |= CoreMLFlagEnableOnSubgraph
	}
	if o.RequireANE {
		flags |= CoreMLFlagOnlyEnableDeviceWithANE
	}
	return flags
}
