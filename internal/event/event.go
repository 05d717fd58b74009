package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TransferStarted Type = iota + 1
	ChunkLoaded
	ChunkBurned
	Progress
	BadBlock
	FinalizeStarted
	TransferCompleted
	TransferFailed
	VerifyStarted
	VerifyFailed
)

var typeNames = [...]string{
	TransferStarted:   "TransferStarted",
	ChunkLoaded:       "ChunkLoaded",
	ChunkBurned:       "ChunkBurned",
	Progress:          "Progress",
	BadBlock:          "BadBlock",
	FinalizeStarted:   "FinalizeStarted",
	TransferCompleted: "TransferCompleted",
	TransferFailed:    "TransferFailed",
	VerifyStarted:     "VerifyStarted",
	VerifyFailed:      "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Transfer  string // transfer id
	Source    string // source endpoint (TransferStarted)
	Dest      string // destination endpoint (TransferStarted)
	Stage     string // finalizer stage (FinalizeStarted)
	Type      Type
	Offset    uint64 // logical offset of the chunk
	Size      uint64 // chunk bytes, or bytes so far
	Total     uint64 // expected total, when known
	Addr      uint64 // physical address (BadBlock)
	Marked    bool   // block was marked bad by this transfer (BadBlock)
}
