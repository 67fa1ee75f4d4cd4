package liveedit

// ChangeLocator maps diff chunks onto the function tree of the old
// script version, finding for each chunk the innermost function whose
// text contains it. That function is the one whose code must actually
// be replaced; everything above it only needs compatibility checks and
// position updates.
type ChangeLocator struct {
	tree *FunctionTree
}

func NewChangeLocator(tree *FunctionTree) *ChangeLocator {
	return &ChangeLocator{tree: tree}
}

// Locate returns the narrowest record enclosing the chunk's old range.
// A chunk spanning function boundaries lands on the common ancestor,
// in the worst case the whole-script root.
func (l *ChangeLocator) Locate(c DiffChunk) *FunctionRecord {
	rec := l.tree.Root
	for {
		var next *FunctionRecord
		for _, child := range rec.Children {
			if child.StartPos <= c.OldStart && c.OldEnd <= child.EndPos {
				next = child
				break
			}
		}
		if next == nil {
			return rec
		}
		rec = next
	}
}

// LocateAll maps every chunk to its enclosing record, deduplicated, in
// tree preorder.
func (l *ChangeLocator) LocateAll(chunks []DiffChunk) []*FunctionRecord {
	seen := make(map[*FunctionRecord]bool)
	for _, c := range chunks {
		seen[l.Locate(c)] = true
	}
	var out []*FunctionRecord
	for _, r := range l.tree.Records {
		if seen[r] {
			out = append(out, r)
		}
	}
	return out
}
