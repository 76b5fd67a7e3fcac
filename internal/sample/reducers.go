package sample

import (
	"fmt"
	"slices"
	"strings"
)

func builtinReducers() map[string]Reducer {
	return map[string]Reducer{
		AttrFiles:         UnionStrings,
		AttrMeta:          MergeMaps,
		AttrFailureReason: JoinLines,
		AttrProcessed:     All,
	}
}

// UnionStrings returns the ordered union of two string slices.
func UnionStrings(a, b any) any {
	left, _ := a.([]string)
	right, _ := b.([]string)
	out := make([]string, 0, len(left)+len(right))
	for _, item := range slices.Concat(left, right) {
		if !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// MergeMaps deep-merges two string-keyed maps. Nested maps merge
// recursively; for any other key present in both, the right value wins.
func MergeMaps(a, b any) any {
	left, _ := a.(map[string]any)
	right, _ := b.(map[string]any)
	return mergeMaps(left, right)
}

func mergeMaps(left, right map[string]any) map[string]any {
	out := cloneMap(left)
	if out == nil {
		out = make(map[string]any, len(right))
	}
	for k, rv := range right {
		if lv, ok := out[k]; ok {
			lm, lok := lv.(map[string]any)
			rm, rok := rv.(map[string]any)
			if lok && rok {
				out[k] = mergeMaps(lm, rm)
				continue
			}
		}
		out[k] = cloneValue(rv)
	}
	return out
}

// JoinLines joins two non-empty strings with a newline; an empty side yields
// the other.
func JoinLines(a, b any) any {
	left := stringOf(a)
	right := stringOf(b)
	switch {
	case left == "":
		return right
	case right == "":
		return left
	case strings.Contains("\n"+left+"\n", "\n"+right+"\n"):
		return left
	default:
		return left + "\n" + right
	}
}

// All is the logical and of two booleans.
func All(a, b any) any {
	left, _ := a.(bool)
	right, _ := b.(bool)
	return left && right
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
