package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hankgalt/textembed/pkg/domain"
)

func validTokenizerFiles(t *testing.T) domain.TokenizerFiles {
	t.Helper()
	tokJSON, err := os.ReadFile(filepath.Join("testdata", "tokenizer.json"))
	require.NoError(t, err)
	return domain.TokenizerFiles{
		TokenizerFile:        tokJSON,
		ConfigFile:           []byte(`{"pad_token_id": 0}`),
		SpecialTokensMapFile: []byte(`{"pad_token": "[PAD]", "unk_token": "[UNK]"}`),
		TokenizerConfigFile:  []byte(`{"pad_token": "[PAD]", "model_max_length": 512}`),
	}
}

func TestParseTokenizerSettings(t *testing.T) {
	t.Parallel()

	base := func() domain.TokenizerFiles {
		return domain.TokenizerFiles{
			ConfigFile:           []byte(`{"pad_token_id": 7}`),
			SpecialTokensMapFile: []byte(`{}`),
			TokenizerConfigFile:  []byte(`{"pad_token": "<pad>", "model_max_length": 20}`),
		}
	}

	t.Run("model max length caps the request", func(t *testing.T) {
		t.Parallel()

		settings, err := parseTokenizerSettings(base(), 50)
		require.NoError(t, err)
		assert.Equal(t, 20, settings.maxLen)
	})

	t.Run("request caps an unbounded model sentinel", func(t *testing.T) {
		t.Parallel()

		files := base()
		// the sentinel some models declare for "unbounded"
		files.TokenizerConfigFile = []byte(`{"pad_token": "<pad>", "model_max_length": 1000000000000000019884624838656}`)
		settings, err := parseTokenizerSettings(files, 10)
		require.NoError(t, err)
		assert.Equal(t, 10, settings.maxLen)
	})

	t.Run("pad token and id resolved", func(t *testing.T) {
		t.Parallel()

		settings, err := parseTokenizerSettings(base(), 50)
		require.NoError(t, err)
		assert.Equal(t, "<pad>", settings.padToken)
		assert.Equal(t, 7, settings.padID)
	})

	t.Run("pad_token_id defaults to 0", func(t *testing.T) {
		t.Parallel()

		files := base()
		files.ConfigFile = []byte(`{}`)
		settings, err := parseTokenizerSettings(files, 50)
		require.NoError(t, err)
		assert.Equal(t, 0, settings.padID)
	})

	t.Run("missing pad_token fails", func(t *testing.T) {
		t.Parallel()

		files := base()
		files.TokenizerConfigFile = []byte(`{"model_max_length": 20}`)
		_, err := parseTokenizerSettings(files, 50)
		require.ErrorIs(t, err, domain.ErrDataFormat)
		assert.Contains(t, err.Error(), "pad_token")
	})

	t.Run("non-numeric model_max_length fails", func(t *testing.T) {
		t.Parallel()

		files := base()
		files.TokenizerConfigFile = []byte(`{"pad_token": "<pad>", "model_max_length": "very long"}`)
		_, err := parseTokenizerSettings(files, 50)
		require.ErrorIs(t, err, domain.ErrDataFormat)
		assert.Contains(t, err.Error(), "model_max_length")
	})

	t.Run("malformed buffers fail with the file name", func(t *testing.T) {
		t.Parallel()

		for name, mutate := range map[string]func(*domain.TokenizerFiles){
			"config.json":             func(f *domain.TokenizerFiles) { f.ConfigFile = []byte("{") },
			"tokenizer_config.json":   func(f *domain.TokenizerFiles) { f.TokenizerConfigFile = []byte("not json") },
			"special_tokens_map.json": func(f *domain.TokenizerFiles) { f.SpecialTokensMapFile = []byte("[") },
		} {
			files := base()
			mutate(&files)
			_, err := parseTokenizerSettings(files, 50)
			require.ErrorIs(t, err, domain.ErrDataFormat, name)
			assert.Contains(t, err.Error(), name)
		}
	})
}

func TestParseSpecialTokens(t *testing.T) {
	t.Parallel()

	t.Run("string entry gets default attributes", func(t *testing.T) {
		t.Parallel()

		specials, err := parseSpecialTokens(map[string]any{"unk_token": "[UNK]"})
		require.NoError(t, err)
		require.Len(t, specials, 1)
		assert.Equal(t, "[UNK]", specials[0].Content)
	})

	t.Run("object entry carries explicit attributes", func(t *testing.T) {
		t.Parallel()

		specials, err := parseSpecialTokens(map[string]any{
			"mask_token": map[string]any{
				"content":     "<mask>",
				"single_word": false,
				"lstrip":      true,
				"rstrip":      false,
				"normalized":  true,
			},
		})
		require.NoError(t, err)
		require.Len(t, specials, 1)
		assert.Equal(t, "<mask>", specials[0].Content)
		assert.False(t, specials[0].SingleWord)
		assert.True(t, specials[0].LStrip)
		assert.False(t, specials[0].RStrip)
		assert.True(t, specials[0].Normalized)
	})

	t.Run("object entry missing lstrip fails", func(t *testing.T) {
		t.Parallel()

		_, err := parseSpecialTokens(map[string]any{
			"mask_token": map[string]any{
				"content":     "<mask>",
				"single_word": false,
				"rstrip":      false,
				"normalized":  true,
			},
		})
		require.ErrorIs(t, err, domain.ErrDataFormat)
		assert.Contains(t, err.Error(), "lstrip")
	})

	t.Run("object entry with mistyped attribute fails", func(t *testing.T) {
		t.Parallel()

		_, err := parseSpecialTokens(map[string]any{
			"mask_token": map[string]any{
				"content":     "<mask>",
				"single_word": "yes",
				"lstrip":      true,
				"rstrip":      false,
				"normalized":  true,
			},
		})
		require.ErrorIs(t, err, domain.ErrDataFormat)
	})

	t.Run("object entry missing content fails", func(t *testing.T) {
		t.Parallel()

		_, err := parseSpecialTokens(map[string]any{
			"mask_token": map[string]any{"lstrip": true},
		})
		require.ErrorIs(t, err, domain.ErrDataFormat)
		assert.Contains(t, err.Error(), "content")
	})
}

func TestBuildTokenizer(t *testing.T) {
	t.Parallel()

	t.Run("builds from artifact bytes", func(t *testing.T) {
		t.Parallel()

		tok, err := BuildTokenizer(validTokenizerFiles(t), 128)
		require.NoError(t, err)
		require.NotNil(t, tok)
		assert.Equal(t, 128, tok.MaxLength())
	})

	t.Run("malformed tokenizer.json fails", func(t *testing.T) {
		t.Parallel()

		files := validTokenizerFiles(t)
		files.TokenizerFile = []byte("not a tokenizer")
		_, err := BuildTokenizer(files, 128)
		require.ErrorIs(t, err, domain.ErrDataFormat)
	})
}

func TestHFTokenizerEncodeBatch(t *testing.T) {
	t.Parallel()

	tok, err := BuildTokenizer(validTokenizerFiles(t), 128)
	require.NoError(t, err)

	t.Run("pads to batch longest", func(t *testing.T) {
		t.Parallel()

		encs, err := tok.EncodeBatch([]string{"hello world this is a test", "hello"})
		require.NoError(t, err)
		require.Len(t, encs, 2)

		T := len(encs[0].IDs)
		require.Greater(t, T, 0)
		for i := range encs {
			assert.Len(t, encs[i].IDs, T, "encoding %d", i)
			assert.Len(t, encs[i].AttentionMask, T, "encoding %d", i)
			assert.Len(t, encs[i].TypeIDs, T, "encoding %d", i)
		}

		// the short sequence ends in padding: PAD id, mask 0
		last := len(encs[1].IDs) - 1
		assert.Equal(t, int64(0), encs[1].IDs[last])
		assert.Equal(t, int64(0), encs[1].AttentionMask[last])
		// real positions are attended
		assert.Equal(t, int64(1), encs[0].AttentionMask[0])
		assert.Equal(t, int64(1), encs[1].AttentionMask[0])
	})

	t.Run("truncates to the effective max length", func(t *testing.T) {
		t.Parallel()

		small, err := BuildTokenizer(validTokenizerFiles(t), 4)
		require.NoError(t, err)

		encs, err := small.EncodeBatch([]string{"hello world this is a test of the embedding pipeline"})
		require.NoError(t, err)
		require.Len(t, encs, 1)
		assert.LessOrEqual(t, len(encs[0].IDs), 4)
	})

	t.Run("preserves input order", func(t *testing.T) {
		t.Parallel()

		encs, err := tok.EncodeBatch([]string{"hello", "world"})
		require.NoError(t, err)
		require.Len(t, encs, 2)
		assert.NotEqual(t, encs[0].IDs, encs[1].IDs)

		flipped, err := tok.EncodeBatch([]string{"world", "hello"})
		require.NoError(t, err)
		assert.Equal(t, encs[0].IDs, flipped[1].IDs)
		assert.Equal(t, encs[1].IDs, flipped[0].IDs)
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		encs, err := tok.EncodeBatch(nil)
		require.NoError(t, err)
		assert.Empty(t, encs)
	})

	t.Run("empty string still yields one encoding", func(t *testing.T) {
		t.Parallel()

		encs, err := tok.EncodeBatch([]string{""})
		require.NoError(t, err)
		require.Len(t, encs, 1)
		assert.NotEmpty(t, encs[0].IDs)
	})
}
