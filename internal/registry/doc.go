// Package registry maps step kind names to the Go code that implements
// them.
//
// Every kind registers two functions: one that builds an empty step to
// decode a snapshot record into, and one that builds a step from an HCL
// block. Modules register their kinds once at startup, and the registry is
// validated before use so a kind missing either half fails fast instead of
// in the middle of a campaign.
package registry
