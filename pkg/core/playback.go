// pkg/core/playback.go
package core

// PlaybackState is a snapshot of the playback engine.
// Cursor is always within [0, DatasetLen) while DatasetLen > 0, and
// Running is only ever true for datasets with more than one point.
type PlaybackState struct {
	DatasetLen  int     `json:"datasetLen"`
	Cursor      int     `json:"cursor"`
	SpeedFactor float64 `json:"speedFactor"`
	Running     bool    `json:"running"`
}
