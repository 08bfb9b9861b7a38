// Package jsonrpc implements a JSON-RPC 2.0 connection using Content-Length
// framing over a byte stream (typically the process stdin/stdout). It tracks
// outbound requests until their responses arrive and hands inbound requests and
// notifications to a Handler on the read goroutine.
package jsonrpc
