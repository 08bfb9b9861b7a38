// Package protocol declares the wire payloads exchanged with the client: the
// JSON-RPC 2.0 envelope, the structured work-done progress messages, the legacy
// progress/status reports, and the small slice of the initialize handshake the
// server reads client capabilities from.
package protocol
