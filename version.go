package espalier

// Version is the library version, surfaced by the CLI and the serving
// adapters.
var Version = "0.1.0"
