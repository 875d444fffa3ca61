// Package app wires the carehub services from configuration. Both binaries
// build their process from New.
package app
