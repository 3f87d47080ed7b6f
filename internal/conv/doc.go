// Package conv provides checked integer conversions.
//
// Use it where the value comes from disk or from another library and a
// silent wrap-around would corrupt data: property ids read from records,
// counters stored in the key space, sizes reported by a backend. Plain casts
// remain fine for values that are bounded by construction.
package conv
