// Package embedding implements the local fallback sentence-encoder behind
// the LLM provider interface's optional Embed method, used when a provider
// (e.g. Anthropic, which has no first-party embeddings endpoint) returns
// llm.ErrUnsupported. Since no ML runtime is available in-process, it
// implements the text-to-fixed-size-vector call as a deterministic
// hashing-trick bag-of-words encoder rather than an HTTP call to an
// external embedding model.
package embedding

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimensions matches config.StorageConfig's VectorDimensions default.
const DefaultDimensions = 768

var reToken = regexp.MustCompile(`[a-z0-9]+`)

// Encoder is a deterministic local fallback: each token is hashed into one
// of Dimensions buckets (the hashing trick), accumulated with its sign
// determined by a second hash to reduce collision bias, then L2-normalized
// so cosine similarity behaves the same as a model-backed embedding.
type Encoder struct {
	Dimensions int
}

// New constructs an Encoder. dims <= 0 falls back to DefaultDimensions.
func New(dims int) *Encoder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Encoder{Dimensions: dims}
}

// Embed implements the shape of llm.Provider.Embed so it can be used
// interchangeably as a storage/vector.EmbedFunc.
func (e *Encoder) Embed(text string) []float32 {
	vec := make([]float64, e.Dimensions)
	tokens := reToken.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		bucket, sign := hashToken(tok, e.Dimensions)
		vec[bucket] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, e.Dimensions)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// hashToken maps a token to a bucket index and a +1/-1 sign, both derived
// from independent FNV-1a hashes so the sign isn't correlated with the
// bucket (standard feature-hashing construction).
func hashToken(tok string, dims int) (int, float64) {
	h1 := fnv.New32a()
	_, _ = h1.Write([]byte(tok))
	bucket := int(h1.Sum32()) % dims
	if bucket < 0 {
		bucket += dims
	}
	h2 := fnv.New32a()
	_, _ = h2.Write([]byte("sign:" + tok))
	sign := 1.0
	if h2.Sum32()%2 == 0 {
		sign = -1.0
	}
	return bucket, sign
}
