package protocol

import "time"

// Local protocol version.
const (
	MajorVersion int16 = 1
	MinorVersion int16 = 8
)

// DefaultPort is the TCP port a Primary listens on unless configured otherwise.
const DefaultPort = 24800

// Frame: [4B payload_length big-endian][payload]
const FrameHeaderSize = 4

// Resource bounds. Every declared length is checked against these before
// any buffer is allocated.
const (
	MaxHelloLength   = 1024
	MaxMessageLength = 4 * 1024 * 1024
	MaxListLength    = 1024 * 1024
	MaxStringLength  = 1024 * 1024
)

// Keep-alive defaults. A non-positive rate disables keep-alives.
const (
	KeepAliveRate        = 3 * time.Second
	KeepAlivesUntilDeath = 3
)

// Greeting protocol names. Both are exactly ProtocolNameSize bytes.
const (
	ProtocolNameSize    = 7
	BarrierProtocolName = "Barrier"
	SynergyProtocolName = "Synergy"
)

// Clipboard identifiers.
const (
	ClipboardSystem    uint8 = 0
	ClipboardSelection uint8 = 1
	NumClipboards            = 2
)

// Clipboard streaming marks carried by DCLP.
const (
	MarkSingle uint8 = 0
	MarkStart  uint8 = 1
	MarkChunk  uint8 = 2
	MarkEnd    uint8 = 3
)

// ClipboardChunkSize is the largest data slice placed in one DCLP chunk.
const ClipboardChunkSize = 32 * 1024
