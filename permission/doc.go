// Package permission defines the permission naming scheme, wildcard match
// semantics, and the seeded catalog used by the access-control engine.
//
// Permission names are "<category>.<action>". Two wildcard forms exist:
// "<category>.*" grants every action in a category, and "system.*" grants
// everything. Matching happens at check time against the caller's current
// grant set; grants are never pre-expanded, so revoking a wildcard takes
// effect on the next check.
package permission
