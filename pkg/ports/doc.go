// Package ports defines the boundary contracts of the engine: agents and
// tools (capabilities the workflow invokes), observers (event sinks) and
// context stores (run persistence). The core accepts these interfaces and
// returns concrete domain types.
package ports
