package jsonstore

import (
	"fmt"
	"strconv"
	"strings"
)

// nextID picks the lowest positive integer n such that "{prefix}-{n:03d}"
// is not already present in doc. prefix is the uppercased feature name,
// or "TASK" when no feature is given.
func nextID(doc *document, feature string) string {
	prefix := "TASK"
	if feature != "" {
		prefix = strings.ToUpper(feature)
	}

	taken := make(map[int]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if n, ok := parseSeq(t.ID, prefix); ok {
			taken[n] = true
		}
	}

	n := 1
	for taken[n] {
		n++
	}
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// parseSeq extracts the numeric sequence from an id of the form
// "{prefix}-{n:03d}", returning ok=false if it does not match.
func parseSeq(id, prefix string) (int, bool) {
	want := prefix + "-"
	if !strings.HasPrefix(id, want) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(want):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// nextSubID appends the next lower-case letter suffix after parentID,
// based on the number of existing siblings: "a", "b", ...
func nextSubID(doc *document, parentID string) string {
	count := 0
	prefix := parentID
	for _, t := range doc.Tasks {
		if t.ParentID == parentID {
			count++
		}
	}
	suffix := subSuffix(count)
	return prefix + suffix
}

// subSuffix converts a zero-based sibling index into a base-26 lower-case
// letter suffix: 0 -> "a", 25 -> "z", 26 -> "aa", ...
func subSuffix(index int) string {
	var letters []byte
	n := index
	for {
		letters = append([]byte{byte('a' + n%26)}, letters...)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(letters)
}
