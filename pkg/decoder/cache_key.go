package decoder

import (
	"strconv"

	"github.com/tauraamui/framecache/pkg/composition"
)

// CacheKey names the disk sequence of node rendered at width x height. It
// is empty unless node is an unmodified composition loaded from a file,
// in-memory content cannot be told apart by path alone. The file revision
// is appended so that rewriting the file never reuses frames of its
// previous content.
func CacheKey(node composition.Node, width, height int) string {
	path, ok := node.FilePath()
	if !ok {
		return ""
	}
	key := path + "." + strconv.Itoa(width) + "x" + strconv.Itoa(height)
	if revision := node.FileRevision(); len(revision) > 0 {
		key += "@" + revision
	}
	return key
}
