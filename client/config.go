package client

// Defines structs describing client configuration.

// Config defines properties that configure RPC session behaviour.
type Config struct {
	// Defines the time in seconds that the client will wait for the transport
	// connection to be established.
	DialTimeoutSecs int
	// Bounds the payload length of inbound frames. Zero means no bound.
	MaxInboundFrameSize uint32
}

var DefaultConfig = &Config{
	DialTimeoutSecs: 5,
}
