package coord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Separator separates the segments of a path
	Separator = "/"
	// Root is the path of the namespace root. It always exists and can not be deleted.
	Root = "/"
	// SequenceDigits is the number of digits of the sequence suffix appended by CreateSequential
	SequenceDigits = 10
)

// Validate checks that path is absolute, has no trailing separator (except for the root)
// and contains no empty, "." or ".." segments.
func Validate(path string) error {
	if path == Root {
		return nil
	}
	if !strings.HasPrefix(path, Separator) {
		return Errorf(RetCInvalidPath, "path %q is not absolute", path)
	}
	for _, seg := range strings.Split(path[1:], Separator) {
		if err := ValidateName(seg); err != nil {
			return Errorf(RetCInvalidPath, "path %q: %s", path, err.(*Error).Msg)
		}
	}
	return nil
}

// ValidateName checks that name can be used as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewError(RetCInvalidPath, "empty segment")
	case name == "." || name == "..":
		return Errorf(RetCInvalidPath, "relative segment %q", name)
	case strings.Contains(name, Separator):
		return Errorf(RetCInvalidPath, "segment %q contains %q", name, Separator)
	}
	return nil
}

// Join appends the given segments to parent.
func Join(parent string, names ...string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(parent, Separator))
	for _, name := range names {
		sb.WriteString(Separator)
		sb.WriteString(name)
	}
	if sb.Len() == 0 {
		return Root
	}
	return sb.String()
}

// Split returns the parent path and the last segment of path.
// Splitting the root returns ("", "").
func Split(path string) (parent, name string) {
	if path == Root || path == "" {
		return "", ""
	}
	idx := strings.LastIndex(path, Separator)
	if idx <= 0 {
		return Root, path[idx+1:]
	}
	return path[:idx], path[idx+1:]
}

// Ancestors returns all proper ancestors of path, excluding the root, from top to bottom.
// Ancestors("/a/b/c") returns ["/a", "/a/b"].
func Ancestors(path string) []string {
	var result []string
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			result = append(result, path[:i])
		}
	}
	return result
}

// SequenceName formats a sequential child name.
func SequenceName(prefix string, seq uint64) string {
	return fmt.Sprintf("%s%0*d", prefix, SequenceDigits, seq)
}

var errNoSequence = errors.New("name has no sequence suffix")

// SequenceOf extracts the sequence number from a name created by CreateSequential.
func SequenceOf(name string) (uint64, error) {
	if len(name) < SequenceDigits {
		return 0, errNoSequence
	}
	return strconv.ParseUint(name[len(name)-SequenceDigits:], 10, 64)
}
