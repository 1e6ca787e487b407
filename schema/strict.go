package schema

import (
	"context"

	"github.com/effective-security/mcpbridge/pkg/metricskey"
)

// Strict applies the nullability pass on top of the general translation:
// every optional scalar property gains "null" in its type list, so strict
// structured-output validators accept omitted fields sent as null. The pass
// is idempotent and leaves required properties untouched.
//
// The returned Translation reports the two passes separately: PatchCount and
// Issues carry the general corrective patches, StrictPatchCount and
// StrictIssues only the nullability rewrites.
func (t *Translator) Strict(ctx context.Context, raw any) *Translation {
	base := t.Translate(ctx, raw)
	if !base.Usable() {
		return base
	}

	// Re-decode the canonical form so the cached general translation is
	// never mutated.
	strict := t.translate(base.Raw)
	relaxOptional(strict.Doc, "root", strict)
	if strict.StrictPatchCount > 0 {
		metricskey.StatsSchemaPatches.IncrCounter(float64(strict.StrictPatchCount), "strict")
	}
	return strict
}

// relaxOptional rewrites scalar types of optional properties to
// ["<type>", "null"] and recurses into nested objects and array items.
func relaxOptional(node map[string]any, path string, result *Translation) {
	required := map[string]bool{}
	if names, ok := node["required"].([]any); ok {
		for _, n := range names {
			if s, ok := n.(string); ok {
				required[s] = true
			}
		}
	}

	properties, _ := node["properties"].(map[string]any)
	for name, prop := range properties {
		child, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		childPath := path + "." + name
		if !required[name] {
			if typ, ok := child["type"].(string); ok && typ != "object" && typ != "array" {
				child["type"] = []any{typ, "null"}
				result.recordStrict(childPath, "allowed null for optional property")
			}
		}
		relaxOptional(child, childPath, result)
	}
	if items, ok := node["items"].(map[string]any); ok {
		relaxOptional(items, path+".items", result)
	}
}
