// Package event carries the push signals of the discovery core: registry
// membership changes, pull ticks, registry outage and recovery, and
// instance isolation. Subscribers register one typed callback per kind.
package event
