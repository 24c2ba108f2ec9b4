// Package app contains the core application logic: creating campaigns from
// their definitions, running and inspecting them through their state files,
// and replacing their steps. It is decoupled from any specific entrypoint
// like a CLI.
package app
