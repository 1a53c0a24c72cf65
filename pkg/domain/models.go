package domain

import "fmt"

// EmbeddingModel identifies a supported embedding model.
type EmbeddingModel string

const (
	AllMiniLML6V2           EmbeddingModel = "fast-all-MiniLM-L6-v2"
	BGEBaseENV15            EmbeddingModel = "fast-bge-base-en-v1.5"
	BGELargeENV15           EmbeddingModel = "fast-bge-large-en-v1.5"
	BGESmallENV15           EmbeddingModel = "fast-bge-small-en-v1.5"
	BGESmallZHV15           EmbeddingModel = "fast-bge-small-zh-v1.5"
	NomicEmbedTextV1        EmbeddingModel = "fast-nomic-embed-text-v1"
	ParaphraseMLMiniLML12V2 EmbeddingModel = "fast-paraphrase-multilingual-MiniLM-L12-v2"
	MultilingualE5Small     EmbeddingModel = "fast-multilingual-e5-small"
	MultilingualE5Large     EmbeddingModel = "fast-multilingual-e5-large"
	MxbaiEmbedLargeV1       EmbeddingModel = "fast-mxbai-embed-large-v1"
)

// ModelInfo describes a supported embedding model. Instances come from the
// static registry and are never mutated.
type ModelInfo struct {
	Model       EmbeddingModel
	Dim         int
	Description string
	// repository name in the model hub, e.g. "Xenova/bge-small-en-v1.5"
	ModelCode string
	// primary weights file within the repository
	ModelFile string
	// extra files some models require alongside the weights,
	// e.g. an external data blob for very large models
	AdditionalFiles []string
}

// supportedModels is the static registry. Built once; accessors hand out
// copies so callers can't mutate it.
var supportedModels = []ModelInfo{
	{
		Model:       AllMiniLML6V2,
		Dim:         384,
		Description: "Sentence Transformer model, MiniLM-L6-v2",
		ModelCode:   "Qdrant/all-MiniLM-L6-v2-onnx",
		ModelFile:   "model.onnx",
	},
	{
		Model:       BGESmallENV15,
		Dim:         384,
		Description: "v1.5 release of the fast and default English model",
		ModelCode:   "Xenova/bge-small-en-v1.5",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       BGEBaseENV15,
		Dim:         768,
		Description: "v1.5 release of the base English model",
		ModelCode:   "Xenova/bge-base-en-v1.5",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       BGELargeENV15,
		Dim:         1024,
		Description: "v1.5 release of the large English model",
		ModelCode:   "Xenova/bge-large-en-v1.5",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       BGESmallZHV15,
		Dim:         512,
		Description: "v1.5 release of the small Chinese model",
		ModelCode:   "Xenova/bge-small-zh-v1.5",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       NomicEmbedTextV1,
		Dim:         768,
		Description: "8192 context length english model",
		ModelCode:   "nomic-ai/nomic-embed-text-v1",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       ParaphraseMLMiniLML12V2,
		Dim:         384,
		Description: "Multi-lingual model",
		ModelCode:   "Xenova/paraphrase-multilingual-MiniLM-L12-v2",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       MultilingualE5Small,
		Dim:         384,
		Description: "Small model of multilingual E5 Text Embeddings",
		ModelCode:   "intfloat/multilingual-e5-small",
		ModelFile:   "onnx/model.onnx",
	},
	{
		Model:       MultilingualE5Large,
		Dim:         1024,
		Description: "Large model of multilingual E5 Text Embeddings",
		ModelCode:   "Qdrant/multilingual-e5-large-onnx",
		ModelFile:   "model.onnx",
		// weights are split; the external data blob must sit next to model.onnx
		AdditionalFiles: []string{"model.onnx_data"},
	},
	{
		Model:       MxbaiEmbedLargeV1,
		Dim:         1024,
		Description: "Large English embedding model from mixedbread.ai",
		ModelCode:   "mixedbread-ai/mxbai-embed-large-v1",
		ModelFile:   "onnx/model.onnx",
	},
}

var modelsByID = func() map[EmbeddingModel]ModelInfo {
	m := make(map[EmbeddingModel]ModelInfo, len(supportedModels))
	for _, info := range supportedModels {
		m[info.Model] = info
	}
	return m
}()

// SupportedModels returns the registry of supported models.
func SupportedModels() []ModelInfo {
	out := make([]ModelInfo, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// GetModelInfo returns the descriptor for a model identifier.
func GetModelInfo(model EmbeddingModel) (ModelInfo, error) {
	info, ok := modelsByID[model]
	if !ok {
		return ModelInfo{}, fmt.Errorf("unsupported embedding model %q", model)
	}
	return info, nil
}

// String returns the model's hub repository name.
func (m EmbeddingModel) String() string {
	if info, ok := modelsByID[m]; ok {
		return info.ModelCode
	}
	return string(m)
}
