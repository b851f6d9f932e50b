// Package msgrpc implements the MessagePack-RPC protocol over a stream
// transport. Requests, responses and notifications are encoded as MessagePack
// arrays, and each encoded message is framed on the wire with a four byte
// big-endian length prefix.
//
// The client package drives a session that multiplexes requests from any
// number of goroutines over one connection, correlating responses by request
// id. The server package accepts connections and dispatches decoded requests
// and notifications to a caller-supplied handler.
package msgrpc
