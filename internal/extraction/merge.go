package extraction

import (
	"reflect"
	"unicode/utf8"

	"github.com/zombor/handwriting-extractor/internal/scanning"
)

// Merge reconciles two extractions of the same document, key by key over the
// union of both sides. Agreement wins, nested objects merge recursively, a
// missing or "unreadable" value yields to the other side, and of two
// disagreeing strings the longer one is kept (a on ties). Anything else
// keeps a's value when present.
//
// Preferring the longer string is a heuristic: it can't tell a truncated read
// from genuinely extra content.
func Merge(a, b map[string]any) map[string]any {
	result := make(map[string]any, max(len(a), len(b)))

	for key, va := range a {
		vb, inB := b[key]
		if !inB {
			result[key] = va
			continue
		}
		result[key] = mergeValue(va, vb)
	}
	for key, vb := range b {
		if _, inA := a[key]; !inA {
			result[key] = vb
		}
	}

	return result
}

func mergeValue(va, vb any) any {
	if reflect.DeepEqual(va, vb) {
		return va
	}

	ma, aIsMap := va.(map[string]any)
	mb, bIsMap := vb.(map[string]any)
	if aIsMap && bIsMap {
		return Merge(ma, mb)
	}

	if isBlank(va) {
		return vb
	}
	if isBlank(vb) {
		return va
	}

	sa, aIsString := va.(string)
	sb, bIsString := vb.(string)
	if aIsString && bIsString {
		if utf8.RuneCountInString(sa) >= utf8.RuneCountInString(sb) {
			return sa
		}
		return sb
	}

	return va
}

// isBlank reports a null value or the unreadable sentinel
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == scanning.Unreadable
}
