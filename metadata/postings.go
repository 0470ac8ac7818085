package metadata

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// Postings is an in-memory Roaring Bitmap inverted index over the indexed
// metadata fields of a snapshot. It narrows the candidate set for equality
// predicates before full predicate verification with Select; it never
// changes query semantics on its own.
//
// Positions are item positions within the snapshot's item slice.
type Postings struct {
	fields map[string]map[string]*roaring.Bitmap
}

// NewPostings creates an empty postings index.
func NewPostings() *Postings {
	return &Postings{
		fields: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Add indexes all scalar fields of meta under the given position.
// meta is expected to already be the indexed subset of an item's metadata.
func (p *Postings) Add(pos uint32, meta Metadata) {
	for field, value := range meta {
		key, ok := scalarKey(value)
		if !ok {
			continue
		}
		values := p.fields[field]
		if values == nil {
			values = make(map[string]*roaring.Bitmap)
			p.fields[field] = values
		}
		bm := values[key]
		if bm == nil {
			bm = roaring.New()
			values[key] = bm
		}
		bm.Add(pos)
	}
}

// Candidates returns the positions that can match the filter's equality
// constraints ($eq, scalar shorthand, $in), intersected across all such
// constraints found at the top level and inside $and lists.
//
// The result is always a superset of the true matches, so callers must
// still verify each candidate with Select. Returns ok=false when the
// filter carries no usable equality constraint; callers then fall back
// to a full scan.
func (p *Postings) Candidates(filter Filter) (*roaring.Bitmap, bool) {
	var narrowed *roaring.Bitmap
	usable := false

	intersect := func(bm *roaring.Bitmap) {
		if narrowed == nil {
			narrowed = bm.Clone()
		} else {
			narrowed.And(bm)
		}
		usable = true
	}

	for key, cond := range filter {
		switch key {
		case "$and":
			subs, ok := filterList(cond)
			if !ok {
				continue
			}
			for _, sub := range subs {
				if bm, ok := p.Candidates(sub); ok {
					intersect(bm)
				}
			}
		case "$or":
			// Disjunctions are conservatively left to the verification scan.
		default:
			if bm, ok := p.fieldCandidates(key, cond); ok {
				intersect(bm)
			}
		}
	}

	return narrowed, usable
}

// fieldCandidates resolves a single field constraint into a bitmap.
func (p *Postings) fieldCandidates(field string, cond any) (*roaring.Bitmap, bool) {
	ops, isMap := operatorMap(cond)
	if !isMap {
		return p.lookup(field, cond), true
	}

	if eq, ok := ops["$eq"]; ok {
		// Other operators in the same sub-filter only shrink the true
		// match set further, so the $eq bitmap remains a superset.
		return p.lookup(field, eq), true
	}

	if in, ok := ops["$in"]; ok {
		items, ok := anyList(in)
		if !ok {
			return roaring.New(), true
		}
		union := roaring.New()
		for _, item := range items {
			union.Or(p.lookup(field, item))
		}
		return union, true
	}

	return nil, false
}

// lookup returns the posting bitmap for a field/value pair. A field or
// value never seen in the snapshot yields an empty bitmap, which is the
// correct (empty) equality result.
func (p *Postings) lookup(field string, value any) *roaring.Bitmap {
	key, ok := scalarKey(value)
	if !ok {
		return roaring.New()
	}
	if bm := p.fields[field][key]; bm != nil {
		return bm
	}
	return roaring.New()
}

// scalarKey builds a type-tagged string key for a scalar value so that
// numerically equal values share one posting list.
func scalarKey(value any) (string, bool) {
	if f, ok := asFloat64(value); ok {
		return "n\x00" + strconv.FormatFloat(f, 'g', -1, 64), true
	}
	switch v := value.(type) {
	case string:
		return "s\x00" + v, true
	case bool:
		if v {
			return "b\x001", true
		}
		return "b\x000", true
	default:
		return "", false
	}
}
