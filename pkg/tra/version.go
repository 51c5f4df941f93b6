// Package tra provides version and runtime-mode information shared across the
// replica and controller binaries.
package tra

// Version is the current TRA release version.
const Version = "0.1.0"

// Name is the human-readable project name.
const Name = "TRA"
