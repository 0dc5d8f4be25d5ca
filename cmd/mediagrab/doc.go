// Package main hosts the mediagrab CLI.
//
// Each command opens one backend session, drives it to a result and exits.
// The same orchestrator backs the browser bridge in cmd/web.
package main
