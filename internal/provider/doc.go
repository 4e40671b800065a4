// Package provider defines the capability interfaces external data sources
// implement, the shared rate-limited REST client, and the error taxonomy
// used to classify provider failures.
//
// A provider implements the subset of capabilities it supports; the
// orchestrator selects providers by capability, never by identity, so one
// market can be served by different sources for different fields.
package provider
