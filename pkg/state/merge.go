package state

// CloneDocument deep copies a decoded JSON/CBOR document.
func CloneDocument(document map[string]any) map[string]any {
	if document == nil {
		return nil
	}

	out := make(map[string]any, len(document))
	for key, value := range document {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneDocument(typed)
	case Params:
		return CloneDocument(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}

// MergeDeep overlays patch onto a copy of base. Where both sides hold a map
// the merge recurses, otherwise the patch value replaces the base value
// (including type changes and whole slices). base and patch are left
// untouched.
func MergeDeep(base map[string]any, patch map[string]any) map[string]any {
	result := CloneDocument(base)
	if result == nil {
		result = make(map[string]any, len(patch))
	}

	for key, value := range patch {
		patchMap, patchIsMap := value.(map[string]any)
		baseMap, baseIsMap := result[key].(map[string]any)
		if patchIsMap && baseIsMap {
			result[key] = MergeDeep(baseMap, patchMap)
			continue
		}

		result[key] = cloneValue(value)
	}

	return result
}
