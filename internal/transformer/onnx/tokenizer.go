package onnx

import (
	"encoding/json"
	"fmt"
	"os"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/hankgalt/textembed/pkg/domain"
)

// Encoding holds one sequence's model-ready arrays, all padded to the batch
// sequence length.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// HFTokenizer wraps a HuggingFace tokenizer configured for batch encoding
// with pad-to-batch-longest and truncation to an effective max length.
// Immutable after construction; safe for concurrent use.
type HFTokenizer struct {
	tok      *tk.Tokenizer
	padID    int
	padToken string
	maxLen   int
}

// tokenizerSettings is everything read out of the config artifacts before
// the base tokenizer is constructed.
type tokenizerSettings struct {
	padID    int
	padToken string
	// min(requested max length, model-declared max length)
	maxLen   int
	specials []tk.AddedToken
}

// BuildTokenizer constructs a ready-to-use tokenizer from raw artifact bytes.
// maxLen is the caller-requested truncation length; the model's own declared
// model_max_length caps it.
func BuildTokenizer(files domain.TokenizerFiles, maxLen int) (*HFTokenizer, error) {
	settings, err := parseTokenizerSettings(files, maxLen)
	if err != nil {
		return nil, err
	}

	base, err := tokenizerFromBytes(files.TokenizerFile)
	if err != nil {
		return nil, err
	}

	base.WithPadding(&tk.PaddingParams{
		Strategy:  *tk.NewPaddingStrategy(),
		Direction: tk.Right,
		PadId:     settings.padID,
		PadTypeId: 0,
		PadToken:  settings.padToken,
	})
	base.WithTruncation(&tk.TruncationParams{
		MaxLength: settings.maxLen,
		Strategy:  tk.LongestFirst,
	})
	if len(settings.specials) > 0 {
		base.AddSpecialTokens(settings.specials)
	}

	return &HFTokenizer{
		tok:      base,
		padID:    settings.padID,
		padToken: settings.padToken,
		maxLen:   settings.maxLen,
	}, nil
}

// tokenizerFromBytes loads a tokenizer definition from tokenizer.json bytes.
// The pretrained loader only reads files, so the bytes are staged through a
// temp file.
func tokenizerFromBytes(data []byte) (*tk.Tokenizer, error) {
	f, err := os.CreateTemp("", "textembed-tokenizer-*.json")
	if err != nil {
		return nil, fmt.Errorf("%w: staging tokenizer.json: %v", domain.ErrDataFormat, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: staging tokenizer.json: %v", domain.ErrDataFormat, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: staging tokenizer.json: %v", domain.ErrDataFormat, err)
	}

	base, err := pretrained.FromFile(f.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: could not read tokenizer.json: %v", domain.ErrDataFormat, err)
	}
	return base, nil
}

// parseTokenizerSettings reads padding, truncation and special-token
// configuration out of the artifact buffers. pad_token_id defaults to 0;
// every other field is required and fails loudly when missing or mistyped.
func parseTokenizerSettings(files domain.TokenizerFiles, maxLen int) (tokenizerSettings, error) {
	var settings tokenizerSettings

	var config map[string]any
	if err := json.Unmarshal(files.ConfigFile, &config); err != nil {
		return settings, fmt.Errorf("%w: could not read config.json: %v", domain.ErrDataFormat, err)
	}
	var tokenizerConfig map[string]any
	if err := json.Unmarshal(files.TokenizerConfigFile, &tokenizerConfig); err != nil {
		return settings, fmt.Errorf("%w: could not read tokenizer_config.json: %v", domain.ErrDataFormat, err)
	}
	var specialTokensMap map[string]any
	if err := json.Unmarshal(files.SpecialTokensMapFile, &specialTokensMap); err != nil {
		return settings, fmt.Errorf("%w: could not read special_tokens_map.json: %v", domain.ErrDataFormat, err)
	}

	// Some models declare an astronomically large model_max_length sentinel
	// meaning "unbounded"; comparing in float64 keeps that from overflowing.
	modelMaxLen, ok := tokenizerConfig["model_max_length"].(float64)
	if !ok {
		return settings, fmt.Errorf("%w: missing or non-numeric model_max_length in tokenizer_config.json", domain.ErrDataFormat)
	}
	settings.maxLen = maxLen
	if modelMaxLen < float64(maxLen) {
		settings.maxLen = int(modelMaxLen)
	}

	settings.padID = 0
	if v, ok := config["pad_token_id"].(float64); ok {
		settings.padID = int(v)
	}

	padToken, ok := tokenizerConfig["pad_token"].(string)
	if !ok {
		return settings, fmt.Errorf("%w: missing pad_token in tokenizer_config.json", domain.ErrDataFormat)
	}
	settings.padToken = padToken

	specials, err := parseSpecialTokens(specialTokensMap)
	if err != nil {
		return settings, err
	}
	settings.specials = specials

	return settings, nil
}

// parseSpecialTokens converts special_tokens_map.json entries into added
// tokens. A plain-string entry gets default attributes; an object entry must
// carry content plus all four attribute fields with the right types.
func parseSpecialTokens(specialTokensMap map[string]any) ([]tk.AddedToken, error) {
	var specials []tk.AddedToken
	for key, value := range specialTokensMap {
		switch v := value.(type) {
		case string:
			specials = append(specials, tk.AddedToken{Content: v, Normalized: true})
		case map[string]any:
			content, ok := v["content"].(string)
			if !ok {
				return nil, fmt.Errorf("%w: special token %q: missing content", domain.ErrDataFormat, key)
			}
			at := tk.AddedToken{Content: content}
			for field, dst := range map[string]*bool{
				"single_word": &at.SingleWord,
				"lstrip":      &at.LStrip,
				"rstrip":      &at.RStrip,
				"normalized":  &at.Normalized,
			} {
				b, ok := v[field].(bool)
				if !ok {
					return nil, fmt.Errorf("%w: special token %q: missing or non-boolean %s", domain.ErrDataFormat, key, field)
				}
				*dst = b
			}
			specials = append(specials, at)
		}
	}
	return specials, nil
}

// MaxLength returns the effective truncation length.
func (h *HFTokenizer) MaxLength() int {
	return h.maxLen
}

// EncodeBatch encodes texts into rectangular [B][T] arrays, right-padded to
// the longest sequence in the batch and truncated to the effective max
// length. Returns one Encoding per input, in input order.
func (h *HFTokenizer) EncodeBatch(texts []string) ([]Encoding, error) {
	if h.tok == nil {
		return nil, fmt.Errorf("%w: tokenizer nil", domain.ErrEncoding)
	}
	if len(texts) == 0 {
		return []Encoding{}, nil
	}

	inputs := make([]tk.EncodeInput, 0, len(texts))
	for _, s := range texts {
		if s == "" {
			// the underlying encoder can't represent an empty sequence
			s = h.padToken
		}
		inputs = append(inputs, tk.NewSingleEncodeInput(tk.NewInputSequence(s)))
	}
	encs, err := h.tok.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	if len(encs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d encodings for %d texts", domain.ErrEncoding, len(encs), len(texts))
	}

	// Final T: longest raw sequence, capped by the effective max length.
	longest := 0
	for i := range encs {
		if l := len(encs[i].Ids); l > longest {
			longest = l
		}
	}
	T := longest
	if T > h.maxLen {
		T = h.maxLen
	}

	out := make([]Encoding, len(encs))
	for i := range encs {
		e := Encoding{
			IDs:           make([]int64, T),
			AttentionMask: make([]int64, T),
			TypeIDs:       make([]int64, T),
		}
		L := len(encs[i].Ids)
		if L > T {
			L = T
		}
		for t := 0; t < L; t++ {
			e.IDs[t] = int64(encs[i].Ids[t])
			if t < len(encs[i].AttentionMask) {
				e.AttentionMask[t] = int64(encs[i].AttentionMask[t])
			} else {
				e.AttentionMask[t] = 1
			}
			if t < len(encs[i].TypeIds) {
				e.TypeIDs[t] = int64(encs[i].TypeIds[t])
			}
		}
		// Remaining positions: ids -> PAD id, mask -> 0, type ids -> 0
		for t := L; t < T; t++ {
			e.IDs[t] = int64(h.padID)
		}
		out[i] = e
	}
	return out, nil
}
