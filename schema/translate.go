// Package schema converts raw, often malformed, JSON Schema tool descriptors
// into validated parameter schemas. Translation is a pure function over the
// serialized form of the input, memoized in a content-addressed cache.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "schema")

// Issue records one corrective patch applied to a schema node.
type Issue struct {
	// Path is the dotted location of the node, e.g. "root.filters.status".
	Path string `json:"path"`
	// Patch describes the corrective action taken.
	Patch string `json:"patch"`
}

func (i Issue) String() string {
	return i.Path + ": " + i.Patch
}

// Translation is the validated result of the general patch pass. Identical
// raw input always yields an identical Translation.
type Translation struct {
	// Raw is the canonical serialized form of the input schema.
	Raw json.RawMessage `json:"raw"`
	// Doc is the patched schema tree; nil when the root is not an object.
	Doc map[string]any `json:"doc,omitempty"`
	// PatchCount is the number of corrective actions taken.
	PatchCount int `json:"patch_count"`
	// Issues lists the corrective actions in application order.
	Issues []Issue `json:"issues,omitempty"`
	// StrictPatchCount is the number of nullability rewrites applied by the
	// strict pass; zero for general translations.
	StrictPatchCount int `json:"strict_patch_count,omitempty"`
	// StrictIssues lists the strict-pass rewrites in application order.
	StrictIssues []Issue `json:"strict_issues,omitempty"`
}

// Usable reports whether the input had an object root. When false the
// caller falls back to PermissiveSchema.
func (t *Translation) Usable() bool {
	return t.Doc != nil
}

// JSON returns the patched schema document, or nil when unusable.
func (t *Translation) JSON() []byte {
	if t.Doc == nil {
		return nil
	}
	js, _ := json.Marshal(t.Doc)
	return js
}

// Parameters returns the function-parameters schema for the calling agent.
// Unusable translations yield the permissive fallback.
func (t *Translation) Parameters() *jsonschema.Schema {
	if !t.Usable() {
		return PermissiveSchema()
	}
	sc, err := FromAny(t.Doc)
	if err != nil {
		// Doc round-tripped through JSON already; this should not happen.
		logger.KV(xlog.ERROR, "reason", "schema_conversion_failed", "err", err.Error())
		return PermissiveSchema()
	}
	return sc
}

// Translator applies the deterministic patch sequence with a
// content-addressed cache. Construct one per service; tests get isolated
// instances with their own cache and counters.
type Translator struct {
	cache Cache

	traversals atomic.Uint64
	cacheHits  atomic.Uint64
}

// TranslatorOption customizes a Translator.
type TranslatorOption func(*Translator)

// WithCache overrides the default in-memory cache, e.g. with a Redis-backed
// one shared across replicas.
func WithCache(cache Cache) TranslatorOption {
	return func(t *Translator) {
		t.cache = cache
	}
}

// NewTranslator creates a Translator with an in-memory cache.
func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		cache: NewMemoryCache(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats reports traversal and cache-hit counts since construction.
type Stats struct {
	Traversals uint64
	CacheHits  uint64
}

// Stats returns the Translator's counters.
func (t *Translator) Stats() Stats {
	return Stats{
		Traversals: t.traversals.Load(),
		CacheHits:  t.cacheHits.Load(),
	}
}

// Translate applies the general patch pass to the raw schema. The result is
// memoized by the serialized form of the input: structural equality, not
// reference equality. Non-object roots short-circuit with zero patches.
func (t *Translator) Translate(ctx context.Context, raw any) *Translation {
	serialized, err := json.Marshal(raw)
	if err != nil {
		// Not representable as JSON; treat as absent.
		logger.ContextKV(ctx, xlog.WARNING, "reason", "unserializable_schema", "err", err.Error())
		return &Translation{}
	}

	key := cacheKey(serialized)
	if cached, ok := t.cache.Get(ctx, key); ok {
		t.cacheHits.Add(1)
		metricskey.StatsSchemaCacheHits.IncrCounter(1)
		return cached
	}

	result := t.translate(serialized)
	t.cache.Set(ctx, key, result)

	if result.PatchCount > 0 {
		metricskey.StatsSchemaPatches.IncrCounter(float64(result.PatchCount), "general")
		logger.ContextKV(ctx, xlog.DEBUG,
			"patches", result.PatchCount,
			"issues", fmt.Sprintf("%v", result.Issues),
		)
	}
	return result
}

func (t *Translator) translate(serialized []byte) *Translation {
	t.traversals.Add(1)

	// Decoding the canonical form doubles as a deep copy, so the caller's
	// tree is never mutated.
	var root any
	_ = json.Unmarshal(serialized, &root)

	doc, ok := root.(map[string]any)
	if !ok {
		return &Translation{Raw: serialized}
	}

	result := &Translation{
		Raw: serialized,
		Doc: doc,
	}
	patchNode(doc, "root", result)
	return result
}

// patchNode applies, in fixed order: missing array items, missing object
// type inference, and scalar enum wrapping; then recurses into properties
// and items.
func patchNode(node map[string]any, path string, result *Translation) {
	if node["type"] == "array" {
		if _, ok := node["items"]; !ok {
			node["items"] = map[string]any{}
			result.record(path, "added permissive items to array")
		}
	}

	properties, hasProperties := node["properties"].(map[string]any)
	if hasProperties {
		if _, ok := node["type"]; !ok {
			node["type"] = "object"
			result.record(path, "inferred object type from properties")
		}
	}

	if enum, ok := node["enum"]; ok {
		if _, isList := enum.([]any); !isList {
			node["enum"] = []any{enum}
			result.record(path, "wrapped scalar enum into a list")
		}
	}

	for name, prop := range properties {
		if child, ok := prop.(map[string]any); ok {
			patchNode(child, path+"."+name, result)
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		patchNode(items, path+".items", result)
	}
}

func (t *Translation) record(path, patch string) {
	t.PatchCount++
	t.Issues = append(t.Issues, Issue{Path: path, Patch: patch})
}

func (t *Translation) recordStrict(path, patch string) {
	t.StrictPatchCount++
	t.StrictIssues = append(t.StrictIssues, Issue{Path: path, Patch: patch})
}

func cacheKey(serialized []byte) string {
	return strconv.FormatUint(xxhash.Sum64(serialized), 16)
}

// PermissiveSchema is the fallback parameter schema used when a tool
// declares no usable object schema: a single optional free-form input.
func PermissiveSchema() *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	properties.Set("input", &jsonschema.Schema{
		Type:        "string",
		Description: "Free-form input for the tool.",
	})
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
	}
}

// FromAny converts a decoded schema tree into a jsonschema.Schema by
// round-tripping through JSON.
func FromAny(t any) (*jsonschema.Schema, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	sc := &jsonschema.Schema{}
	err = json.Unmarshal(js, sc)
	if err != nil {
		return nil, err
	}
	return sc, nil
}
