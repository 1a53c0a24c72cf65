package domain

import "errors"

// Error kinds surfaced by the embedding core. Wrapped values carry context
// (file, field, batch index) and are matched with errors.Is.
var (
	// ErrRepository indicates a required file is missing or unreachable in
	// the model repository.
	ErrRepository = errors.New("model repository error")
	// ErrDataFormat indicates a malformed configuration or tokenizer
	// definition buffer, or a missing/mistyped required field.
	ErrDataFormat = errors.New("invalid model data format")
	// ErrEngineBuild indicates the inference engine failed to load weights
	// or configure execution.
	ErrEngineBuild = errors.New("inference engine build failed")
	// ErrEncoding indicates the tokenizer failed to encode a batch.
	ErrEncoding = errors.New("batch encoding failed")
	// ErrTensorShape indicates assembled or returned tensors do not match
	// the expected shape.
	ErrTensorShape = errors.New("unexpected tensor shape")
	// ErrInference indicates the engine's run call failed.
	ErrInference = errors.New("inference run failed")
)
