package jsondoc

// ContainsWord reports whether any string in the document contains term as a
// whole word, case-insensitively. A word boundary is the string edge or any
// non-alphanumeric ASCII byte; objects and arrays are searched recursively.
func ContainsWord(doc any, term string) bool {
	switch v := doc.(type) {
	case string:
		return stringContainsWord(v, term)
	case map[string]any:
		for _, el := range v {
			if ContainsWord(el, term) {
				return true
			}
		}
	case []any:
		for _, el := range v {
			if ContainsWord(el, term) {
				return true
			}
		}
	}
	return false
}

func stringContainsWord(text, term string) bool {
	if term == "" || len(term) > len(text) {
		return false
	}
	for pos := 0; pos+len(term) <= len(text); pos++ {
		if !equalFold(text[pos:pos+len(term)], term) {
			continue
		}
		leftOK := pos == 0 || isDelimiter(text[pos-1])
		rightOK := pos+len(term) == len(text) || isDelimiter(text[pos+len(term)])
		if leftOK && rightOK {
			return true
		}
	}
	return false
}

// isDelimiter: anything that is not an ASCII letter or digit.
func isDelimiter(c byte) bool {
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

func equalFold(a, b string) bool {
	for i := 0; i < len(a); i++ {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}
	return true
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
