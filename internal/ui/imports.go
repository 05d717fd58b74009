package ui

import "github.com/bamsammich/gload/internal/event"

// Event is the engine event presenters consume.
type Event = event.Event

// Re-export event types for convenience.
const (
	TransferStarted   = event.TransferStarted
	ChunkLoaded       = event.ChunkLoaded
	ChunkBurned       = event.ChunkBurned
	Progress          = event.Progress
	BadBlock          = event.BadBlock
	FinalizeStarted   = event.FinalizeStarted
	TransferCompleted = event.TransferCompleted
	TransferFailed    = event.TransferFailed
	VerifyStarted     = event.VerifyStarted
	VerifyFailed      = event.VerifyFailed
)
