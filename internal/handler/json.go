package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nukekv/nukekv/internal/jsondoc"
	"github.com/nukekv/nukekv/internal/store"
)

// Handler-level sentinels carried out of store.Mutate closures so the caller
// can pick the right status and phrase.
var (
	errNotJSONDocument  = errors.New("not a valid JSON document")
	errWhereNeedsArray  = errors.New("WHERE clause can only be used on JSON arrays")
	errAppendNeedsArray = errors.New("append target must be an array")
	errAppendBadValue   = errors.New("append value must be an object or array")
)

// JSONSet handles `JSON.SET <key> '<json>' [EX <seconds>]`. Only the
// full-document form is accepted; the value is validated and stored in its
// compact serialization.
func (h *Handlers) JSONSet(args []string) (int, string) {
	if len(args) != 2 && len(args) != 4 {
		return 400, `-ERR wrong number of arguments for 'JSON.SET'. Expected: JSON.SET <key> '<value>' [EX <seconds>]`
	}
	doc, err := jsondoc.Parse(args[1])
	if err != nil {
		return 400, "-ERR invalid JSON: " + err.Error()
	}
	dump, err := jsondoc.Dump(doc)
	if err != nil {
		return 500, "-ERR " + err.Error()
	}

	setArgs := []string{args[0], dump}
	if len(args) == 4 {
		setArgs = append(setArgs, args[2], args[3])
	}
	return h.Set(setArgs)
}

// JSONGet handles three shapes:
//
//	JSON.GET <key>                       whole document
//	JSON.GET <key> <path> [path ...]     projection keyed by cleaned paths
//	JSON.GET <key> WHERE <field> <value> filtered array
func (h *Handlers) JSONGet(args []string) (int, string) {
	if len(args) == 0 {
		return 400, "-ERR wrong number of arguments"
	}
	raw, ok := h.store.Get(args[0])
	if !ok {
		return 404, "(nil)"
	}
	doc, err := jsondoc.Parse(raw)
	if err != nil {
		return 500, "-ERR not a valid JSON document"
	}

	whereIdx := indexOf(args, "WHERE")
	if whereIdx >= 0 {
		if len(args)-whereIdx != 3 {
			return 400, "-ERR syntax: ... WHERE <field> <value>"
		}
		arr, isArray := doc.([]any)
		if !isArray {
			return 400, "-ERR `WHERE` clause can only be used on JSON arrays."
		}
		field := args[whereIdx+1]
		want := jsondoc.ParseLiteral(args[whereIdx+2])

		results := make([]any, 0)
		for _, item := range arr {
			if obj, isObj := item.(map[string]any); isObj {
				if got, present := obj[field]; present && jsondoc.Equal(got, want) {
					results = append(results, item)
				}
			}
		}
		if len(results) == 0 {
			return 404, "[]"
		}
		return dumpIndent(results)
	}

	if len(args) > 1 {
		projection := make(map[string]any, len(args)-1)
		for _, path := range args[1:] {
			clean := jsondoc.CleanPath(path)
			if value, found := jsondoc.Get(doc, path); found {
				projection[clean] = value
			} else {
				projection[clean] = nil
			}
		}
		return dumpIndent(projection)
	}

	return dumpIndent(doc)
}

// JSONUpdate handles `JSON.UPDATE <key> WHERE <field> <value> SET <f1> <v1> [f2 v2 ...]`
// over an array document and replies with the number of elements changed.
func (h *Handlers) JSONUpdate(args []string) (int, string) {
	if len(args) < 4 {
		return 400, "-ERR invalid syntax for JSON.UPDATE"
	}
	whereIdx := indexOf(args, "WHERE")
	setIdx := indexOf(args, "SET")
	if whereIdx < 0 || setIdx < 0 || setIdx-whereIdx != 3 {
		return 400, "-ERR syntax error. Expected: ... WHERE <field> <value> SET ..."
	}
	pairs := args[setIdx+1:]
	if len(pairs) < 2 || len(pairs)%2 != 0 {
		return 400, "-ERR syntax error. Expected: ... SET <field1> <value1> ..."
	}

	field := args[whereIdx+1]
	want := jsondoc.ParseLiteral(args[whereIdx+2])

	updated := 0
	err := h.store.Mutate(args[0], func(raw string) (string, bool, error) {
		doc, err := jsondoc.Parse(raw)
		if err != nil {
			return "", false, errNotJSONDocument
		}
		arr, isArray := doc.([]any)
		if !isArray {
			return "", false, errWhereNeedsArray
		}
		for _, item := range arr {
			obj, isObj := item.(map[string]any)
			if !isObj {
				continue
			}
			if got, present := obj[field]; !present || !jsondoc.Equal(got, want) {
				continue
			}
			for i := 0; i < len(pairs); i += 2 {
				obj[pairs[i]] = jsondoc.ParseLiteral(pairs[i+1])
			}
			updated++
		}
		if updated == 0 {
			return "", false, nil
		}
		dump, err := jsondoc.Dump(arr)
		if err != nil {
			return "", false, err
		}
		return dump, true, nil
	})
	if err != nil {
		return jsonMutateError(err)
	}
	return 200, strconv.Itoa(updated)
}

// JSONDel handles `JSON.DEL <key>` (plain delete) and
// `JSON.DEL <key> WHERE <field> <value>` (splice matching array elements).
func (h *Handlers) JSONDel(args []string) (int, string) {
	if len(args) == 0 {
		return 400, "-ERR wrong number of arguments"
	}
	if len(args) == 1 {
		return h.Del(args)
	}
	if len(args) != 4 || args[1] != "WHERE" {
		return 400, "-ERR syntax: JSON.DEL <key> [WHERE <field> <value>]"
	}

	field := args[2]
	want := jsondoc.ParseLiteral(args[3])

	deleted := 0
	err := h.store.Mutate(args[0], func(raw string) (string, bool, error) {
		doc, err := jsondoc.Parse(raw)
		if err != nil {
			return "", false, errNotJSONDocument
		}
		arr, isArray := doc.([]any)
		if !isArray {
			return "", false, errWhereNeedsArray
		}
		kept := make([]any, 0, len(arr))
		for _, item := range arr {
			if obj, isObj := item.(map[string]any); isObj {
				if got, present := obj[field]; present && jsondoc.Equal(got, want) {
					deleted++
					continue
				}
			}
			kept = append(kept, item)
		}
		if deleted == 0 {
			return "", false, nil
		}
		dump, err := jsondoc.Dump(kept)
		if err != nil {
			return "", false, err
		}
		return dump, true, nil
	})
	if err != nil {
		return jsonMutateError(err)
	}
	return 200, strconv.Itoa(deleted)
}

// JSONAppend handles `JSON.APPEND <key> '<json>'`: push an object, or
// concatenate an array, onto an array document. Replies with the new length.
func (h *Handlers) JSONAppend(args []string) (int, string) {
	if len(args) != 2 {
		return 400, "-ERR wrong number of arguments. Syntax: JSON.APPEND <key> '<json_to_append>'"
	}

	length := 0
	err := h.store.Mutate(args[0], func(raw string) (string, bool, error) {
		doc, err := jsondoc.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("value at key is %w", errNotJSONDocument)
		}
		arr, isArray := doc.([]any)
		if !isArray {
			return "", false, errAppendNeedsArray
		}
		addition, err := jsondoc.Parse(args[1])
		if err != nil {
			return "", false, fmt.Errorf("bad append payload: %w", err)
		}
		switch v := addition.(type) {
		case map[string]any:
			arr = append(arr, v)
		case []any:
			arr = append(arr, v...)
		default:
			return "", false, errAppendBadValue
		}
		length = len(arr)
		dump, err := jsondoc.Dump(arr)
		if err != nil {
			return "", false, err
		}
		return dump, true, nil
	})
	if err != nil {
		switch {
		case err == store.ErrKeyNotFound:
			return 404, "(nil)"
		case errors.Is(err, errNotJSONDocument):
			return 500, "-ERR value at key is not a valid JSON document"
		case errors.Is(err, errAppendNeedsArray):
			return 400, "-ERR APPEND requires the value at key to be a JSON array"
		case errors.Is(err, errAppendBadValue):
			return 400, "-ERR append value must be a JSON object or array"
		default:
			return 400, "-ERR invalid JSON for append: " + err.Error()
		}
	}
	return 200, strconv.Itoa(length)
}

// JSONSearch handles `JSON.SEARCH <key> "<term>" [MAX <count>]`: whole-word,
// case-insensitive search returning a JSON array of matching elements.
func (h *Handlers) JSONSearch(args []string) (int, string) {
	if len(args) != 2 && len(args) != 4 {
		return 400, `-ERR syntax: JSON.SEARCH <key> "<term>" [MAX <count>]`
	}
	key, term := args[0], args[1]
	if term == "" {
		return 400, "-ERR search term cannot be empty"
	}

	maxResults := -1
	if len(args) == 4 {
		if !strings.EqualFold(args[2], "MAX") {
			return 400, "-ERR expected MAX keyword after term"
		}
		count, err := strconv.Atoi(args[3])
		if err != nil {
			return 400, "-ERR invalid number for MAX count"
		}
		if count <= 0 {
			return 400, "-ERR MAX count must be a positive integer"
		}
		maxResults = count
	}

	raw, ok := h.store.Get(key)
	if !ok {
		return 404, "(nil)"
	}
	doc, err := jsondoc.Parse(raw)
	if err != nil {
		return 500, "-ERR not a valid JSON document"
	}

	results := make([]any, 0)
	if arr, isArray := doc.([]any); isArray {
		for _, item := range arr {
			if maxResults >= 0 && len(results) >= maxResults {
				break
			}
			if jsondoc.ContainsWord(item, term) {
				results = append(results, item)
			}
		}
	} else if jsondoc.ContainsWord(doc, term) {
		results = append(results, doc)
	}

	if len(results) == 0 {
		return 404, "(nil)"
	}
	return dumpIndent(results)
}

func jsonMutateError(err error) (int, string) {
	switch {
	case err == store.ErrKeyNotFound:
		return 404, "(nil)"
	case errors.Is(err, errNotJSONDocument):
		return 500, "-ERR not a valid JSON document"
	case errors.Is(err, errWhereNeedsArray):
		return 400, "-ERR `WHERE` clause can only be used on JSON arrays."
	default:
		return 500, "-ERR " + err.Error()
	}
}

func dumpIndent(doc any) (int, string) {
	text, err := jsondoc.DumpIndent(doc)
	if err != nil {
		return 500, "-ERR " + err.Error()
	}
	return 200, text
}

func indexOf(args []string, token string) int {
	for i, a := range args {
		if a == token {
			return i
		}
	}
	return -1
}

