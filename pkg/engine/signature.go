package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
)

// Signature is a derived equality key: two nodes with the same signature
// represent the same unit of work.
type Signature string

// MetadataNormalizer reduces a node's metadata bag to a canonical string for
// signature computation. Metadata semantics belong to the caller, so equality
// over metadata is caller-supplied; the default normalizer treats metadata as
// canonical JSON (map keys are marshaled in sorted order).
type MetadataNormalizer func(metadata map[string]interface{}) string

// DefaultMetadataNormalizer renders metadata as canonical JSON.
func DefaultMetadataNormalizer(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		// Unmarshalable metadata still needs a stable key; fall back to the
		// sorted key list so equal-shaped bags compare equal.
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		raw, _ = json.Marshal(keys)
	}
	return string(raw)
}

// computeSignatures derives a signature for every node in the graph. A node's
// signature covers its type, normalized metadata, and the signature set of its
// dependencies, so equivalent work at equivalent positions hashes identically.
// Computed in topological order; the graph must be acyclic.
func computeSignatures(g *Graph, normalize MetadataNormalizer) (map[string]Signature, error) {
	if normalize == nil {
		normalize = DefaultMetadataNormalizer
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	sigs := make(map[string]Signature, len(order))
	for _, id := range order {
		node := g.Node(id)

		depSigs := make([]string, 0, len(node.Dependencies))
		for _, dep := range node.Dependencies {
			if sig, ok := sigs[dep.NodeID]; ok {
				depSigs = append(depSigs, string(sig))
			}
		}
		sort.Strings(depSigs)

		h := sha256.New()
		h.Write([]byte(node.Type))
		h.Write([]byte{0})
		h.Write([]byte(normalize(node.Metadata)))
		for _, ds := range depSigs {
			h.Write([]byte{0})
			h.Write([]byte(ds))
		}
		sigs[id] = Signature(hex.EncodeToString(h.Sum(nil)))
	}

	return sigs, nil
}

// SignatureCache maps signatures of completed work to their results. It is
// scoped to a single orchestration run and cleared at run end; there is no
// cross-run shared state.
type SignatureCache struct {
	mu      sync.RWMutex
	results map[Signature]*ExecutionResult
}

// NewSignatureCache creates an empty signature cache.
func NewSignatureCache() *SignatureCache {
	return &SignatureCache{
		results: make(map[Signature]*ExecutionResult),
	}
}

// Get returns the cached result for a signature, if present.
func (c *SignatureCache) Get(sig Signature) (*ExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[sig]
	return result, ok
}

// Put records a completed result under its signature.
func (c *SignatureCache) Put(sig Signature, result *ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[sig] = result
}

// Has reports whether the signature has a cached result.
func (c *SignatureCache) Has(sig Signature) bool {
	_, ok := c.Get(sig)
	return ok
}

// Len returns the number of cached results.
func (c *SignatureCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Clear drops all cached results.
func (c *SignatureCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[Signature]*ExecutionResult)
}
