// Package progress provides clamped progress callbacks.
package progress

// Emit calls cb with processed clamped to [0, total].
// It is a no-op when cb is nil or total is non-positive.
func Emit(cb func(processed, total int), processed, total int) {
	if cb == nil || total <= 0 {
		return
	}

	cb(clamp(processed, total), total)
}

// EmitStage is Emit with a stage label, for multi-step workflows.
func EmitStage(cb func(stage string, processed, total int), stage string, processed, total int) {
	if cb == nil || total <= 0 {
		return
	}

	cb(stage, clamp(processed, total), total)
}

func clamp(processed, total int) int {
	return min(max(processed, 0), total)
}
