// Package textembed generates text embeddings for retrieval and search:
// texts are tokenized, run through a transformer encoder via ONNX runtime,
// and reduced to fixed-length, L2-normalized vectors.
package textembed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/comfforts/logger"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/hankgalt/textembed/internal/hub"
	"github.com/hankgalt/textembed/internal/transformer/onnx"
	"github.com/hankgalt/textembed/pkg/domain"
)

const (
	// DefaultBatchSize is used by Embed when batchSize <= 0.
	DefaultBatchSize = onnx.DefaultBatchSize
	// DefaultMaxLength caps tokenized sequence length unless overridden.
	DefaultMaxLength = 512
	// DefaultCacheDir receives downloaded model files.
	DefaultCacheDir = ".textembed_cache"
	// DefaultEmbeddingModel is the model used by DefaultInitOptions.
	DefaultEmbeddingModel = domain.BGESmallENV15
)

// InitOptions configures construction of a TextEmbedding from a named
// supported model.
type InitOptions struct {
	Model                domain.EmbeddingModel
	ExecutionProviders   []domain.ExecutionProvider
	MaxLength            int
	CacheDir             string
	ShowDownloadProgress bool
	// leave the process-wide ONNX runtime up on Close; for processes
	// running several encoders
	GlobalRuntime bool
}

// DefaultInitOptions returns the default construction options.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		Model:                DefaultEmbeddingModel,
		MaxLength:            DefaultMaxLength,
		CacheDir:             DefaultCacheDir,
		ShowDownloadProgress: true,
	}
}

// InitOptionsUserDefined configures construction from user-supplied model
// bytes, where no repository retrieval happens.
type InitOptionsUserDefined struct {
	ExecutionProviders []domain.ExecutionProvider
	MaxLength          int
	GlobalRuntime      bool
}

// DefaultInitOptionsUserDefined returns the defaults for user-defined models.
func DefaultInitOptionsUserDefined() InitOptionsUserDefined {
	return InitOptionsUserDefined{MaxLength: DefaultMaxLength}
}

// UserDefined converts InitOptions for use with a user-defined model, so the
// same options can drive both construction paths.
func (o InitOptions) UserDefined() InitOptionsUserDefined {
	return InitOptionsUserDefined{
		ExecutionProviders: o.ExecutionProviders,
		MaxLength:          o.MaxLength,
		GlobalRuntime:      o.GlobalRuntime,
	}
}

// UserDefinedEmbeddingModel carries "bring your own model" file bytes.
type UserDefinedEmbeddingModel struct {
	OnnxFile       []byte
	TokenizerFiles domain.TokenizerFiles
}

// TextEmbedding embeds batches of texts with a loaded transformer encoder.
// Safe for concurrent Embed calls on the same instance.
type TextEmbedding struct {
	encoder *onnx.Encoder
	sess    *onnx.Session
}

// NewTextEmbedding builds a TextEmbedding for a named supported model,
// fetching model and tokenizer files through the cache directory.
func NewTextEmbedding(ctx context.Context, opts InitOptions) (*TextEmbedding, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if err := setSharedLibraryPath(); err != nil {
		l.Error("NewTextEmbedding - missing path to onnxruntime")
		return nil, err
	}

	if opts.Model == "" {
		opts.Model = DefaultEmbeddingModel
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir
	}

	info, err := domain.GetModelInfo(opts.Model)
	if err != nil {
		l.Error("NewTextEmbedding - unsupported model", "error", err.Error())
		return nil, err
	}

	repo, err := hub.NewRepo(hub.Config{
		RepoID:       info.ModelCode,
		CacheDir:     opts.CacheDir,
		ShowProgress: opts.ShowDownloadProgress,
	})
	if err != nil {
		l.Error("NewTextEmbedding - error building model repo", "error", err.Error())
		return nil, err
	}

	modelPath, err := repo.Get(info.ModelFile)
	if err != nil {
		l.Error("NewTextEmbedding - error retrieving model file", "file", info.ModelFile, "error", err.Error())
		return nil, err
	}
	// Some models split their weights; every side-file must be present
	// before the session loads the primary file.
	for _, name := range info.AdditionalFiles {
		if _, err := repo.Get(name); err != nil {
			l.Error("NewTextEmbedding - error retrieving side file", "file", name, "error", err.Error())
			return nil, err
		}
	}

	files, err := loadTokenizerFiles(repo)
	if err != nil {
		l.Error("NewTextEmbedding - error retrieving tokenizer files", "error", err.Error())
		return nil, err
	}

	sess, err := onnx.NewSessionFromFile(modelPath, domain.SessionConfig{
		ExecutionProviders: opts.ExecutionProviders,
		GlobalRuntime:      opts.GlobalRuntime,
	})
	if err != nil {
		l.Error("NewTextEmbedding - error building session", "error", err.Error())
		return nil, err
	}

	te, err := newTextEmbedding(files, opts.MaxLength, sess)
	if err != nil {
		l.Error("NewTextEmbedding - error building encoder", "error", err.Error())
		return nil, err
	}
	return te, nil
}

// NewTextEmbeddingFromUserDefined builds a TextEmbedding from model files
// provided by the caller as bytes.
func NewTextEmbeddingFromUserDefined(ctx context.Context, model UserDefinedEmbeddingModel, opts InitOptionsUserDefined) (*TextEmbedding, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if err := setSharedLibraryPath(); err != nil {
		l.Error("NewTextEmbeddingFromUserDefined - missing path to onnxruntime")
		return nil, err
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	sess, err := onnx.NewSessionFromMemory(model.OnnxFile, domain.SessionConfig{
		ExecutionProviders: opts.ExecutionProviders,
		GlobalRuntime:      opts.GlobalRuntime,
	})
	if err != nil {
		l.Error("NewTextEmbeddingFromUserDefined - error building session", "error", err.Error())
		return nil, err
	}

	te, err := newTextEmbedding(model.TokenizerFiles, opts.MaxLength, sess)
	if err != nil {
		l.Error("NewTextEmbeddingFromUserDefined - error building encoder", "error", err.Error())
		return nil, err
	}
	return te, nil
}

// newTextEmbedding finishes construction shared by both entry points. It
// owns sess on failure.
func newTextEmbedding(files domain.TokenizerFiles, maxLength int, sess *onnx.Session) (*TextEmbedding, error) {
	tok, err := onnx.BuildTokenizer(files, maxLength)
	if err != nil {
		sess.Close()
		return nil, err
	}

	enc, err := onnx.NewEncoder(tok, sess)
	if err != nil {
		sess.Close()
		return nil, err
	}

	return &TextEmbedding{encoder: enc, sess: sess}, nil
}

// Embed returns one L2-normalized embedding per input text, in input order.
// batchSize <= 0 selects DefaultBatchSize. A failure in any batch aborts the
// whole call; no partial results are returned.
func (t *TextEmbedding) Embed(ctx context.Context, texts []string, batchSize int) ([]domain.Embedding, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if t.encoder == nil {
		l.Error("TextEmbedding:Embed - nil encoder")
		return nil, errors.New("nil encoder")
	}

	return t.encoder.Encode(ctx, texts, batchSize)
}

// Close releases the inference session and, unless GlobalRuntime was set,
// shuts the ONNX runtime down.
func (t *TextEmbedding) Close(ctx context.Context) error {
	if t.sess != nil {
		return t.sess.Close()
	}
	return nil
}

// ListSupportedModels returns descriptors for all supported models.
func ListSupportedModels() []domain.ModelInfo {
	return domain.SupportedModels()
}

// GetModelInfo returns the descriptor for a model identifier.
func GetModelInfo(model domain.EmbeddingModel) (domain.ModelInfo, error) {
	return domain.GetModelInfo(model)
}

// ReadFileToBytes reads a whole file, e.g. to constitute a
// UserDefinedEmbeddingModel from cached model files.
func ReadFileToBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// setSharedLibraryPath points the ONNX binding at the shared library named
// by ONNXRUNTIME_SHARED_LIBRARY_PATH.
func setSharedLibraryPath() error {
	p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	if p == "" {
		return errors.New("missing path to onnxruntime")
	}
	ort.SetSharedLibraryPath(p)
	return nil
}

// loadTokenizerFiles fetches the four tokenizer artifacts through the repo
// handle and returns their bytes.
func loadTokenizerFiles(repo *hub.Repo) (domain.TokenizerFiles, error) {
	var files domain.TokenizerFiles
	for _, f := range []struct {
		name string
		dst  *[]byte
	}{
		{"tokenizer.json", &files.TokenizerFile},
		{"config.json", &files.ConfigFile},
		{"special_tokens_map.json", &files.SpecialTokensMapFile},
		{"tokenizer_config.json", &files.TokenizerConfigFile},
	} {
		path, err := repo.Get(f.name)
		if err != nil {
			return files, err
		}
		data, err := ReadFileToBytes(path)
		if err != nil {
			return files, fmt.Errorf("%w: reading %s: %v", domain.ErrRepository, f.name, err)
		}
		*f.dst = data
	}
	return files, nil
}
