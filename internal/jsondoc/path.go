// Package jsondoc implements the JSON document algebra: path access, path
// mutation, and whole-word search over parsed documents. Documents are the
// usual generic tree (map[string]any, []any, string, float64, bool, nil)
// produced by unmarshalling into any.
package jsondoc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var (
	ErrBadPath      = errors.New("invalid path")
	ErrPathNotFound = errors.New("path not found")
	ErrRootNotObj   = errors.New("root document is not an object")
)

// Segment is one step of a resolved path: either an object field or an array
// index.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

// CleanPath strips the rooted prefix: `$.a.b` -> `a.b`, `$[0]` -> `[0]`,
// `$` -> ``. Dotted paths pass through unchanged. JSON.GET projections use the
// cleaned form as the result key.
func CleanPath(path string) string {
	switch {
	case path == "$":
		return ""
	case strings.HasPrefix(path, "$."):
		return path[2:]
	case strings.HasPrefix(path, "$["):
		return path[1:]
	}
	return path
}

// ParsePath tokenizes a dotted-and-bracketed path into segments. The empty
// path (or `$`) denotes the whole document and yields no segments.
func ParsePath(path string) ([]Segment, error) {
	p := CleanPath(path)
	if p == "" {
		return nil, nil
	}

	var segs []Segment
	i := 0
	for i < len(p) {
		switch p[i] {
		case '.':
			if i == 0 || i == len(p)-1 {
				return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
			}
			i++
		case '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrBadPath, path)
			}
			idx, err := strconv.Atoi(p[i+1 : i+end])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index in %q", ErrBadPath, path)
			}
			segs = append(segs, Segment{Index: idx, IsIndex: true})
			i += end + 1
		default:
			end := i
			for end < len(p) && p[end] != '.' && p[end] != '[' {
				end++
			}
			segs = append(segs, Segment{Field: p[i:end]})
			i = end
		}
	}
	return segs, nil
}

// Get walks the path and returns the value it lands on. The second return is
// false on any missing field, wrong container type, or out-of-range index.
func Get(doc any, path string) (any, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	cur := doc
	for _, seg := range segs {
		if seg.IsIndex {
			arr, ok := cur.([]any)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
		} else {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[seg.Field]
			if !ok {
				return nil, false
			}
		}
	}
	return cur, true
}

// Set assigns value at path, creating missing intermediates: `{}` when the
// next segment is a field, `[]` when it is an index. Appending at exactly the
// current array length is allowed; larger indices are allowed only inside
// containers this call freshly created (they are padded with nulls). Setting
// the root merges value into the document, which must both be objects.
func Set(doc *any, path string, value any) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}

	if len(segs) == 0 {
		root, ok := (*doc).(map[string]any)
		if !ok {
			return ErrRootNotObj
		}
		merge, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot replace document root with a non-object")
		}
		for k, v := range merge {
			root[k] = v
		}
		return nil
	}

	updated, err := setSegs(*doc, segs, value, false)
	if err != nil {
		return err
	}
	*doc = updated
	return nil
}

// setSegs returns the (possibly replaced) node with the assignment applied.
// fresh marks nodes created by this walk, where index growth is permitted.
func setSegs(node any, segs []Segment, value any, fresh bool) (any, error) {
	seg := segs[0]

	if seg.IsIndex {
		arr, ok := node.([]any)
		if !ok {
			if node != nil && !fresh {
				return nil, fmt.Errorf("cannot index into non-array")
			}
			arr = []any{}
			fresh = true
		}
		switch {
		case seg.Index < len(arr):
		case seg.Index == len(arr):
			arr = append(arr, nil)
		case fresh:
			for len(arr) <= seg.Index {
				arr = append(arr, nil)
			}
		default:
			return nil, fmt.Errorf("index %d out of range", seg.Index)
		}
		if len(segs) == 1 {
			arr[seg.Index] = value
			return arr, nil
		}
		childFresh := fresh || arr[seg.Index] == nil
		child, err := setSegs(arr[seg.Index], segs[1:], value, childFresh)
		if err != nil {
			return nil, err
		}
		arr[seg.Index] = child
		return arr, nil
	}

	obj, ok := node.(map[string]any)
	if !ok {
		if node != nil && !fresh {
			return nil, fmt.Errorf("cannot descend into non-object field %q", seg.Field)
		}
		obj = map[string]any{}
		fresh = true
	}
	if len(segs) == 1 {
		obj[seg.Field] = value
		return obj, nil
	}
	existing, present := obj[seg.Field]
	childFresh := fresh || !present || existing == nil
	child, err := setSegs(existing, segs[1:], value, childFresh)
	if err != nil {
		return nil, err
	}
	obj[seg.Field] = child
	return obj, nil
}

// Delete removes the value at path: a field from its object parent, or an
// element (spliced out) from its array parent. Returns 1 on success, 0 when
// the path does not resolve.
func Delete(doc *any, path string) int {
	segs, err := ParsePath(path)
	if err != nil || len(segs) == 0 {
		return 0
	}

	parent := *doc
	for _, seg := range segs[:len(segs)-1] {
		var ok bool
		parent, ok = step(parent, seg)
		if !ok {
			return 0
		}
	}

	last := segs[len(segs)-1]
	if last.IsIndex {
		arr, ok := parent.([]any)
		if !ok || last.Index >= len(arr) {
			return 0
		}
		arr = append(arr[:last.Index], arr[last.Index+1:]...)
		if len(segs) == 1 {
			*doc = arr
			return 1
		}
		// Splicing shrinks the slice header; write it back to the grandparent.
		writeBack(*doc, segs[:len(segs)-1], arr)
		return 1
	}

	obj, ok := parent.(map[string]any)
	if !ok {
		return 0
	}
	if _, present := obj[last.Field]; !present {
		return 0
	}
	delete(obj, last.Field)
	return 1
}

func step(node any, seg Segment) (any, bool) {
	if seg.IsIndex {
		arr, ok := node.([]any)
		if !ok || seg.Index >= len(arr) {
			return nil, false
		}
		return arr[seg.Index], true
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	v, present := obj[seg.Field]
	return v, present
}

func writeBack(node any, segs []Segment, value any) {
	if len(segs) == 1 {
		if segs[0].IsIndex {
			if arr, ok := node.([]any); ok && segs[0].Index < len(arr) {
				arr[segs[0].Index] = value
			}
		} else if obj, ok := node.(map[string]any); ok {
			obj[segs[0].Field] = value
		}
		return
	}
	child, ok := step(node, segs[0])
	if ok {
		writeBack(child, segs[1:], value)
	}
}

// Parse decodes raw bytes into a document tree.
func Parse(raw string) (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseLiteral decodes s as JSON when possible and falls back to treating it
// as a plain string. WHERE and SET operands use this.
func ParseLiteral(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Dump serializes compactly.
func Dump(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DumpIndent serializes with two-space indentation, the reply format for
// JSON.GET and JSON.SEARCH.
func DumpIndent(doc any) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Equal reports deep JSON equality, the comparison the WHERE clause applies.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, present := bv[k]
			if !present || !Equal(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
