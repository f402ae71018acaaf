// Package vad decides when a spoken segment has ended by accumulating
// sustained sub-threshold audio. The engine is mode-agnostic: callers that do
// not want silence cutoffs simply stop feeding it.
package vad
