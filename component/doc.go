// Package component defines the lifecycle contract shared by the resolver,
// the registry watchers and the admin server, plus an ordered registry that
// starts them in dependency order and stops them in reverse.
package component
