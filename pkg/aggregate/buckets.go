package aggregate

// bucket accumulates the facets sharing one truncated key
type bucket struct {
	count       int64
	chronoPaths []string
}

// buckets keeps truncated keys in first-seen order
type buckets struct {
	depth int
	keys  []string
	byKey map[string]*bucket
}

// keyFunc truncates a facet path to depth
type keyFunc func(path string, depth int) string

func truncatePath(path string, depth int) string {
	if len(path) > depth {
		return path[:depth]
	}
	return path
}

func pathLen(path string) int { return len(path) }

func group(facets []Facet, depth int, key keyFunc) buckets {
	out := buckets{
		depth: depth,
		byKey: make(map[string]*bucket, len(facets)),
	}
	for _, f := range facets {
		k := key(f.Path, depth)
		b, ok := out.byKey[k]
		if !ok {
			b = &bucket{}
			out.byKey[k] = b
			out.keys = append(out.keys, k)
		}
		b.count += f.Count
		if f.ChronoPath != "" {
			b.chronoPaths = append(b.chronoPaths, f.ChronoPath)
		}
	}
	return out
}

// deepen groups facets at depth and, while that yields a single key and a
// deeper split is still possible, retries step levels deeper. It returns
// the final grouping and the number of passes.
func (a *Aggregator) deepen(facets []Facet, depth, maxDepth int, key keyFunc, bodyLen func(string) int) (buckets, int) {
	passes := 0
	for {
		b := group(facets, depth, key)
		passes++
		if len(b.keys) >= 2 || depth >= maxDepth || !anyLonger(facets, depth, bodyLen) {
			return b, passes
		}
		depth = min(depth+a.step, maxDepth)
	}
}

func anyLonger(facets []Facet, depth int, bodyLen func(string) int) bool {
	for _, f := range facets {
		if bodyLen(f.Path) > depth {
			return true
		}
	}
	return false
}

// commonPrefix returns the longest prefix shared by all paths
func commonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		n := min(len(prefix), len(p))
		i := 0
		for i < n && prefix[i] == p[i] {
			i++
		}
		prefix = prefix[:i]
		if prefix == "" {
			break
		}
	}
	return prefix
}
