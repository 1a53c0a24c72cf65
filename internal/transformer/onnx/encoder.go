package onnx

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hankgalt/textembed/pkg/domain"
)

// DefaultBatchSize is used when the caller does not specify one.
const DefaultBatchSize = 256

// BatchTokenizer encodes a batch of texts into rectangular model-ready
// arrays, one Encoding per input, in input order.
type BatchTokenizer interface {
	EncodeBatch(texts []string) ([]Encoding, error)
}

// Runner executes the network over named [batch, seqLen] int64 input tensors
// and returns the flattened last_hidden_state of shape [batch, seqLen, H].
type Runner interface {
	Run(inputs map[string][]int64, batch, seqLen int) ([]float32, error)
	NeedTokenTypeIDs() bool
	HiddenSize() int
}

// Encoder orchestrates the batched embedding pipeline: partition, tokenize,
// assemble tensors, run inference, pool position 0 and normalize. The
// tokenizer and runner are shared read-only across workers.
type Encoder struct {
	tok  BatchTokenizer
	sess Runner
	// worker pool size; 0 means number of CPUs
	workers int
}

// NewEncoder returns a pipeline over a configured tokenizer and session.
func NewEncoder(tok BatchTokenizer, sess Runner) (*Encoder, error) {
	if tok == nil {
		return nil, fmt.Errorf("nil tokenizer")
	}
	if sess == nil {
		return nil, fmt.Errorf("nil session")
	}
	return &Encoder{tok: tok, sess: sess}, nil
}

// Encode embeds texts, batchSize at a time. batchSize <= 0 selects
// DefaultBatchSize. Output order matches input order; any batch failure
// aborts the whole call with no partial results.
func (e *Encoder) Encode(ctx context.Context, texts []string, batchSize int) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return []domain.Embedding{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	numBatches := (len(texts) + batchSize - 1) / batchSize
	perBatch := make([][]domain.Embedding, numBatches)

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > numBatches {
		workers = numBatches
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				start := b * batchSize
				end := start + batchSize
				if end > len(texts) {
					end = len(texts)
				}
				embs, err := e.encodeBatch(texts[start:end])
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("batch %d: %w", b, err)
					}
				} else {
					perBatch[b] = embs
				}
				mu.Unlock()
			}
		}()
	}
	for b := 0; b < numBatches; b++ {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// Ordering is restored by batch index, not by worker completion order.
	out := make([]domain.Embedding, 0, len(texts))
	for _, embs := range perBatch {
		out = append(out, embs...)
	}
	return out, nil
}

// encodeBatch runs one batch through tokenize -> tensors -> inference ->
// position-0 pooling -> normalization.
func (e *Encoder) encodeBatch(batch []string) ([]domain.Embedding, error) {
	encs, err := e.tok.EncodeBatch(batch)
	if err != nil {
		return nil, err
	}
	if len(encs) == 0 {
		return nil, fmt.Errorf("%w: no encodings for batch of %d", domain.ErrEncoding, len(batch))
	}

	// All sequences share the padded length of the first encoding.
	B := len(batch)
	T := len(encs[0].IDs)
	needTypeIDs := e.sess.NeedTokenTypeIDs()

	ids := make([]int64, 0, B*T)
	mask := make([]int64, 0, B*T)
	var typeIDs []int64
	if needTypeIDs {
		typeIDs = make([]int64, 0, B*T)
	}
	for i := range encs {
		ids = append(ids, encs[i].IDs...)
		mask = append(mask, encs[i].AttentionMask...)
		if needTypeIDs {
			typeIDs = append(typeIDs, encs[i].TypeIDs...)
		}
	}
	if len(ids) != B*T || len(mask) != B*T {
		return nil, fmt.Errorf("%w: flattened %d ids / %d mask, want %d", domain.ErrTensorShape, len(ids), len(mask), B*T)
	}

	inputs := map[string][]int64{
		inputNameIDs:  ids,
		inputNameMask: mask,
	}
	if needTypeIDs {
		if len(typeIDs) != B*T {
			return nil, fmt.Errorf("%w: flattened %d type ids, want %d", domain.ErrTensorShape, len(typeIDs), B*T)
		}
		inputs[inputNameTypeIDs] = typeIDs
	}

	hidden, err := e.sess.Run(inputs, B, T)
	if err != nil {
		return nil, err
	}

	H := e.sess.HiddenSize()
	if len(hidden) != B*T*H {
		return nil, fmt.Errorf("%w: output has %d elements, want %d", domain.ErrTensorShape, len(hidden), B*T*H)
	}

	embs := make([]domain.Embedding, B)
	strideBT := T * H
	for b := 0; b < B; b++ {
		row := firstTokenRow(hidden[b*strideBT:(b+1)*strideBT], H)
		embs[b] = Normalize(row)
	}
	return embs, nil
}
