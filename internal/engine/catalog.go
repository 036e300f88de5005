package engine

import "enginectl/pkg/types"

// Known engines. Default is an alias for LlamaCPP.
const (
	LlamaCPP    = "cortex.llamacpp"
	ONNX        = "cortex.onnx"
	TensorRTLLM = "cortex.tensorrt-llm"
	Default     = "default"
)

// aliases maps short engine names to their canonical form.
var aliases = map[string]string{
	"":             LlamaCPP,
	Default:        LlamaCPP,
	"llamacpp":     LlamaCPP,
	"onnx":         ONNX,
	"tensorrt-llm": TensorRTLLM,
}

// Canonical resolves an alias and reports whether name is known.
func Canonical(name string) (string, bool) {
	if canon, ok := aliases[name]; ok {
		return canon, true
	}
	for _, e := range knownEngines() {
		if e.Name == name {
			return name, true
		}
	}
	return name, false
}

// supportsAcceleration reports whether the engine can use the CUDA toolkit.
func supportsAcceleration(name string) bool {
	return name == LlamaCPP || name == TensorRTLLM
}

func knownEngines() []types.EngineRecord {
	return []types.EngineRecord{
		{
			Name:        LlamaCPP,
			Description: "This extension enables chat completion API calls using the LlamaCPP engine",
			ProductName: "LlamaCPP Inference Engine",
		},
		{
			Name:        ONNX,
			Description: "This extension enables chat completion API calls using the Onnx engine",
			ProductName: "Onnx Inference Engine",
		},
		{
			Name:        TensorRTLLM,
			Description: "This extension enables chat completion API calls using the TensorrtLLM engine",
			ProductName: "TensorrtLLM Inference Engine",
		},
	}
}
