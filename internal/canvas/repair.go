package canvas

import "github.com/dandytbermillo/canvasd/internal/geom"

// positionCorrupted reports whether a restored position diverges from the
// store's authoritative position by more than threshold world units,
// measured as |Δx| + |Δy|.
//
// A historical defect wrote screen-space coordinates where world-space was
// expected; such values sit thousands of units away from the real position.
// The check is a safety net for that bug class only: it fires on gross
// divergence and never on the small drift a panel accumulates from
// legitimate drags between saves.
func positionCorrupted(restored, authoritative geom.Point, threshold float64) bool {
	return restored.ManhattanDist(authoritative) > threshold
}

// repairPosition returns the position to accept for a restored main panel:
// the restored one when it is plausible, the authoritative one when the
// restored value is corrupted. The second return reports whether a repair
// happened.
func repairPosition(restored, authoritative geom.Point, threshold float64) (geom.Point, bool) {
	if positionCorrupted(restored, authoritative, threshold) {
		return authoritative, true
	}
	return restored, false
}
