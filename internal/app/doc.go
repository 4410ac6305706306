// Package app wires the configuration pipeline and the service lifecycle
// into one application: documents are loaded, merged and filtered into an
// effective tree, materialized into a service forest, and started and
// stopped through the lifecycle orchestrator. It is decoupled from any
// specific entrypoint like a CLI or server.
package app
