package domain

// Embedding is a fixed-length, L2-normalized vector for one input text.
type Embedding = []float32

// ExecutionProvider names an ONNX runtime execution backend. Providers are
// tried in the order the caller lists them; the runtime keeps its CPU
// provider as the final fallback.
type ExecutionProvider string

const (
	ProviderCPU      ExecutionProvider = "cpu"
	ProviderCUDA     ExecutionProvider = "cuda"
	ProviderTensorRT ExecutionProvider = "tensorrt"
	ProviderCoreML   ExecutionProvider = "coreml"
	ProviderDirectML ExecutionProvider = "directml"
)

// TokenizerFiles holds the raw artifact bytes needed to build a tokenizer.
// Each buffer is consumed exactly once during construction and not retained.
type TokenizerFiles struct {
	// tokenizer.json
	TokenizerFile []byte
	// config.json
	ConfigFile []byte
	// special_tokens_map.json
	SpecialTokensMapFile []byte
	// tokenizer_config.json
	TokenizerConfigFile []byte
}

// SessionConfig carries the execution configuration for an inference session.
type SessionConfig struct {
	// ordered backend preferences; empty means CPU only
	ExecutionProviders []ExecutionProvider
	// intra-op threads; 0 means number of CPUs
	Threads int
	// if true, this session will skip shutting down the ONNX runtime on close.
	// This is useful if multiple encoders are used in the same process.
	// In that case, the application should manage the ONNX runtime lifecycle.
	// Default: false (each session shuts the runtime down on Close)
	GlobalRuntime bool
}
