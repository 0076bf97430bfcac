// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus implements Quilt's in-process event bus: a bounded,
// multi-consumer broadcast channel that every pipeline stage publishes to
// and subscribes from. Unlike a plain Go channel, a slow subscriber never
// blocks the publisher or other subscribers — it instead receives a Lagged
// signal reporting how many events it missed.
package bus

// Event is the closed set of domain events Quilt's pipeline exchanges.
type Event interface {
	isEvent()
}

// MaterialDiscovered announces that a new source document has been found
// and registered.
type MaterialDiscovered struct {
	MaterialID string
	Path       string
}

// MaterialCut announces that a material has been split into cuts.
type MaterialCut struct {
	MaterialID string
	CutIDs     []string
}

// MaterialSwatched announces that cuts have been embedded into swatches.
type MaterialSwatched struct {
	MaterialID string
	SwatchIDs  []string
}

// ProcessingError announces that a stage failed to process a material.
type ProcessingError struct {
	MaterialID string
	Stage      string
	Message    string
}

// Lagged is delivered to a subscriber in place of the events it missed
// because it could not keep up with the ring buffer's retention window.
type Lagged struct {
	Skipped uint64
}

// Shutdown is the terminal system event the Orchestrator publishes once
// every stage has drained, immediately before closing the bus.
type Shutdown struct{}

func (MaterialDiscovered) isEvent() {}
func (MaterialCut) isEvent()        {}
func (MaterialSwatched) isEvent()   {}
func (ProcessingError) isEvent()    {}
func (Lagged) isEvent()             {}
func (Shutdown) isEvent()           {}

// Name returns a short, stable label for an event, used for metrics and logs.
func Name(e Event) string {
	switch e.(type) {
	case MaterialDiscovered:
		return "material_discovered"
	case MaterialCut:
		return "material_cut"
	case MaterialSwatched:
		return "material_swatched"
	case ProcessingError:
		return "processing_error"
	case Lagged:
		return "lagged"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
