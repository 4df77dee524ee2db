// Package value provides the value tree shared by every basekit layer.
//
// This package contains the data model only. All other internal packages
// import value; value imports nothing internal.
//
// Two families of values live in the same sealed interface:
//   - Wire kinds: Null, Bool, Int, Float, String, Array, Object. These are
//     the only shapes a store ever persists.
//   - Semantic kinds: Time, Tagged, Ref. These exist only in decoded trees
//     and are translated to wire kinds by the codec package.
//
// Key design constraints:
//   - Object keys are unordered; use SortedKeys() for deterministic iteration
//   - Numbers keep their integer-ness: JSON integers decode to Int, anything
//     with a fraction or exponent decodes to Float
//   - Equal and Compare treat Int and Float as one numeric domain
package value
