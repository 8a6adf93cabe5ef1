package embedding

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// WordTokenizer splits on whitespace and hashes each word into the vocabulary range.
type WordTokenizer struct{}

// Tokenize produces [CLS] words... [SEP], padded with zeros to maxTokens.
func (t *WordTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(hashWord(word) % vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sepToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

func hashWord(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(s)))
	return h.Sum32()
}

// Truncator cuts text to a token budget using the cl100k_base encoding.
type Truncator struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewTruncator creates a truncator for inputs of at most maxTokens tokens.
func NewTruncator(maxTokens int) (*Truncator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	return &Truncator{codec: codec, maxTokens: maxTokens}, nil
}

// Count returns the number of tokens in text.
func (t *Truncator) Count(text string) (int, error) {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Truncate returns text unchanged when it fits, or its first maxTokens tokens otherwise.
// Text the encoder rejects is passed through for the provider to judge.
func (t *Truncator) Truncate(text string) string {
	ids, _, err := t.codec.Encode(text)
	if err != nil || len(ids) <= t.maxTokens {
		return text
	}
	out, err := t.codec.Decode(ids[:t.maxTokens])
	if err != nil {
		return text
	}
	return out
}
