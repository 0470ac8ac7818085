// Package metadata provides the metadata model and Mongo-style predicate
// evaluation used to filter vector items, plus a Roaring Bitmap postings
// index that accelerates equality predicates over indexed fields.
package metadata

// Metadata holds the scalar metadata attached to an item or document.
// Values are strings, booleans, or numbers (any Go numeric type; JSON
// decoding yields float64).
type Metadata map[string]any

// Filter is a Mongo-style predicate over Metadata.
//
// Top-level keys are either "$and"/"$or" (mapping to a list of nested
// filters) or a field name. A scalar field value means exact equality;
// a map value is a sub-filter of operators: $eq, $ne, $gt, $gte, $lt,
// $lte, $in, $nin.
type Filter map[string]any

// Clone returns a shallow copy of the metadata.
// Values are scalars, so a shallow copy is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
