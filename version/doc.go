// Package version implements the version algebra used to select service
// versions: a three-part Version with a total order, and Rules (exact, range,
// at-least, latest) that decide whether a registered version is acceptable to
// a caller.
//
// # Rule syntax
//
//	1.0.0          exact match
//	1.0.0-2.0.0    half-open range [1.0.0, 2.0.0)
//	1.0.0+         at least 1.0.0
//	latest         only the highest version currently known
//
// Parsers are tried in a fixed priority order (range, at-least, exact,
// latest) and the first one that recognises the syntax decides the result.
package version
