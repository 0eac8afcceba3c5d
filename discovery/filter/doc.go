// Package filter holds the stock discovery filters: version rule selection,
// instance isolation and per-transport endpoint grouping.
package filter
