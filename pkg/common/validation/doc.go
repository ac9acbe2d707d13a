// Package validation provides common validation utilities for configuration
// parameters across poolserve.
//
// Every helper returns a *errors.ValidationError naming the module and field,
// so constructors and configuration loaders report problems the same way.
package validation
