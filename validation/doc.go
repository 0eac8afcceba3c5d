// Package validation checks configuration structs and caller input.
//
// Struct tags are evaluated with go-playground/validator and two discovery
// specific tags: version_rule (a parseable version rule) and dotted_version
// (a parseable version). Programmatic checks collect field errors:
//
//	v := validation.New()
//	v.Required("service", svc).VersionRule("rule", rule)
//	if err := v.Validate(); err != nil { ... }
package validation
