package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedModels(t *testing.T) {
	t.Parallel()

	models := SupportedModels()
	require.NotEmpty(t, models)

	seen := make(map[EmbeddingModel]bool)
	for _, info := range models {
		assert.False(t, seen[info.Model], "duplicate model %s", info.Model)
		seen[info.Model] = true
		assert.Greater(t, info.Dim, 0, "%s", info.Model)
		assert.NotEmpty(t, info.ModelCode, "%s", info.Model)
		assert.NotEmpty(t, info.ModelFile, "%s", info.Model)
	}

	// the registry is not writable through the returned slice
	models[0].ModelCode = "mutated"
	fresh := SupportedModels()
	assert.NotEqual(t, "mutated", fresh[0].ModelCode)
}

func TestGetModelInfo(t *testing.T) {
	t.Parallel()

	info, err := GetModelInfo(BGESmallENV15)
	require.NoError(t, err)
	assert.Equal(t, 384, info.Dim)
	assert.Equal(t, "Xenova/bge-small-en-v1.5", info.ModelCode)

	_, err = GetModelInfo(EmbeddingModel("no-such-model"))
	require.Error(t, err)
}

func TestAdditionalFiles(t *testing.T) {
	t.Parallel()

	info, err := GetModelInfo(MultilingualE5Large)
	require.NoError(t, err)
	assert.Equal(t, []string{"model.onnx_data"}, info.AdditionalFiles)

	info, err = GetModelInfo(BGESmallENV15)
	require.NoError(t, err)
	assert.Empty(t, info.AdditionalFiles)
}

func TestEmbeddingModelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Xenova/bge-small-en-v1.5", BGESmallENV15.String())
	assert.Equal(t, "unknown", EmbeddingModel("unknown").String())
}
