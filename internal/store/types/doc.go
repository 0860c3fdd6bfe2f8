// Package types defines the shared data types for the plantwatch store:
// sensor reading records, freshness evaluations, and refresh pass results.
//
// Types here have no behavior beyond simple accessors so they can be shared
// freely between the store, merge engine, and orchestrator without import
// cycles.
package types
