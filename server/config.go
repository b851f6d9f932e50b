package server

// Defines structs describing server configuration.

// Config defines properties that configure server connection behaviour.
type Config struct {
	// Bounds the payload length of inbound frames on each connection. Zero
	// means no bound.
	MaxInboundFrameSize uint32
}

var DefaultConfig = &Config{}
