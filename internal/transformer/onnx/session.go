package onnx

import (
	"errors"
	"fmt"
	"log"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hankgalt/textembed/pkg/domain"
)

const (
	inputNameIDs     = "input_ids"
	inputNameMask    = "attention_mask"
	inputNameTypeIDs = "token_type_ids"
	outputNameHidden = "last_hidden_state"
)

// Session owns a configured inference session over loaded network weights.
// Immutable after construction; Run is safe for concurrent callers.
type Session struct {
	sess             *ort.DynamicAdvancedSession
	inputNames       []string
	needTokenTypeIDs bool
	hiddenSize       int
	globalRuntime    bool
}

// NewSessionFromFile builds a session from an ONNX weights file.
func NewSessionFromFile(path string, cfg domain.SessionConfig) (*Session, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: missing model path", domain.ErrEngineBuild)
	}
	// Initialize global ORT env once per process (safe to call multiple times).
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: init ORT env: %v", domain.ErrEngineBuild, err)
	}

	infosIn, infosOut, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: GetInputOutputInfo: %v", domain.ErrEngineBuild, err)
	}

	return newSession(infosIn, infosOut, cfg, func(inputNames []string, opts *ort.SessionOptions) (*ort.DynamicAdvancedSession, error) {
		return ort.NewDynamicAdvancedSession(path, inputNames, []string{outputNameHidden}, opts)
	})
}

// NewSessionFromMemory builds a session from in-memory ONNX model bytes,
// for user-supplied models that never touch the filesystem.
func NewSessionFromMemory(modelData []byte, cfg domain.SessionConfig) (*Session, error) {
	if len(modelData) == 0 {
		return nil, fmt.Errorf("%w: empty model data", domain.ErrEngineBuild)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: init ORT env: %v", domain.ErrEngineBuild, err)
	}

	infosIn, infosOut, err := ort.GetInputOutputInfoWithONNXData(modelData)
	if err != nil {
		return nil, fmt.Errorf("%w: GetInputOutputInfo: %v", domain.ErrEngineBuild, err)
	}

	return newSession(infosIn, infosOut, cfg, func(inputNames []string, opts *ort.SessionOptions) (*ort.DynamicAdvancedSession, error) {
		return ort.NewDynamicAdvancedSessionWithONNXData(modelData, inputNames, []string{outputNameHidden}, opts)
	})
}

func newSession(
	infosIn, infosOut []ort.InputOutputInfo,
	cfg domain.SessionConfig,
	build func(inputNames []string, opts *ort.SessionOptions) (*ort.DynamicAdvancedSession, error),
) (*Session, error) {
	hiddenSize, err := resolveHiddenSize(infosOut)
	if err != nil {
		return nil, err
	}

	// The network's declared inputs decide whether the pipeline must
	// assemble and send the token_type_ids tensor.
	needTokenTypeIDs := false
	for _, info := range infosIn {
		if info.Name == inputNameTypeIDs {
			needTokenTypeIDs = true
			break
		}
	}
	inputNames := []string{inputNameIDs, inputNameMask}
	if needTokenTypeIDs {
		inputNames = append(inputNames, inputNameTypeIDs)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", domain.ErrEngineBuild, err)
	}
	defer opts.Destroy()

	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("%w: optimization level: %v", domain.ErrEngineBuild, err)
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("%w: intra-op threads: %v", domain.ErrEngineBuild, err)
	}
	if err := applyExecutionProviders(opts, cfg.ExecutionProviders); err != nil {
		return nil, err
	}

	sess, err := build(inputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: NewDynamicAdvancedSession: %v", domain.ErrEngineBuild, err)
	}

	return &Session{
		sess:             sess,
		inputNames:       inputNames,
		needTokenTypeIDs: needTokenTypeIDs,
		hiddenSize:       hiddenSize,
		globalRuntime:    cfg.GlobalRuntime,
	}, nil
}

// resolveHiddenSize reads the H dimension from the declared
// last_hidden_state output shape [B, T, H].
func resolveHiddenSize(infosOut []ort.InputOutputInfo) (int, error) {
	for i := range infosOut {
		if infosOut[i].Name != outputNameHidden {
			continue
		}
		dims := infosOut[i].Dimensions
		if len(dims) != 3 {
			return 0, fmt.Errorf("%w: output %q has rank %d, want 3", domain.ErrEngineBuild, outputNameHidden, len(dims))
		}
		if dims[2] <= 0 {
			return 0, fmt.Errorf("%w: can't resolve hidden size from dims %v", domain.ErrEngineBuild, dims)
		}
		return int(dims[2]), nil
	}
	return 0, fmt.Errorf("%w: output %q not found in model", domain.ErrEngineBuild, outputNameHidden)
}

// applyExecutionProviders appends backend preferences in caller order; the
// runtime picks the first compatible one and keeps CPU as final fallback.
// An unavailable provider is skipped with a warning rather than failing the
// build, so one binary can run across heterogeneous hosts.
func applyExecutionProviders(opts *ort.SessionOptions, providers []domain.ExecutionProvider) error {
	for _, p := range providers {
		var err error
		switch p {
		case domain.ProviderCPU:
			// always registered by the runtime itself
		case domain.ProviderCUDA:
			var cudaOpts *ort.CUDAProviderOptions
			cudaOpts, err = ort.NewCUDAProviderOptions()
			if err == nil {
				err = opts.AppendExecutionProviderCUDA(cudaOpts)
				cudaOpts.Destroy()
			}
		case domain.ProviderTensorRT:
			var trtOpts *ort.TensorRTProviderOptions
			trtOpts, err = ort.NewTensorRTProviderOptions()
			if err == nil {
				err = opts.AppendExecutionProviderTensorRT(trtOpts)
				trtOpts.Destroy()
			}
		case domain.ProviderCoreML:
			err = opts.AppendExecutionProviderCoreML(0)
		case domain.ProviderDirectML:
			err = opts.AppendExecutionProviderDirectML(0)
		default:
			return fmt.Errorf("%w: unknown execution provider %q", domain.ErrEngineBuild, p)
		}
		if err != nil {
			log.Printf("execution provider %q unavailable, skipping: %v", p, err)
		}
	}
	return nil
}

// NeedTokenTypeIDs reports whether the network declares a token_type_ids
// input.
func (s *Session) NeedTokenTypeIDs() bool {
	return s.needTokenTypeIDs
}

// HiddenSize returns the H dimension of the last_hidden_state output.
func (s *Session) HiddenSize() int {
	return s.hiddenSize
}

// Run feeds the named [batch, seqLen] int64 input tensors to the network and
// returns the flattened last_hidden_state of shape [batch, seqLen, hidden].
func (s *Session) Run(inputs map[string][]int64, batch, seqLen int) ([]float32, error) {
	if s.sess == nil {
		return nil, fmt.Errorf("%w: session not initialized", domain.ErrInference)
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	values := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for _, name := range s.inputNames {
		data, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing input tensor %q", domain.ErrTensorShape, name)
		}
		if len(data) != batch*seqLen {
			return nil, fmt.Errorf("%w: input %q has %d elements, want %d", domain.ErrTensorShape, name, len(data), batch*seqLen)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s tensor: %v", domain.ErrInference, name, err)
		}
		values = append(values, tensor)
	}

	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(seqLen), int64(s.hiddenSize)))
	if err != nil {
		return nil, fmt.Errorf("%w: alloc out tensor: %v", domain.ErrInference, err)
	}
	defer outTensor.Destroy()

	if err := s.sess.Run(values, []ort.Value{outTensor}); err != nil {
		return nil, fmt.Errorf("%w: ORT Run: %v", domain.ErrInference, err)
	}

	data := outTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// Close destroys the session and, unless GlobalRuntime was set, shuts the
// process-wide ONNX runtime down.
func (s *Session) Close() error {
	var err error
	if s.sess != nil {
		err = s.sess.Destroy()
		s.sess = nil
	}
	if s.globalRuntime {
		return err
	}
	if eErr := ort.DestroyEnvironment(); eErr != nil {
		if err != nil {
			return errors.Join(err, eErr)
		}
		return eErr
	}
	return err
}
