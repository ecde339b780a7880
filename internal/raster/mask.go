package raster

// WidenPolicy controls how a flagged coarse cell widens the candidate region
// for the fine tiling pass.
type WidenPolicy string

const (
	// WidenCross flags the cell's entire row and column. Recall-biased: it
	// tolerates screener mis-registration near tile boundaries at the cost
	// of extra fine-resolution work.
	WidenCross WidenPolicy = "cross"

	// WidenCell flags only the cell itself.
	WidenCell WidenPolicy = "cell"
)

// CandidateMask records which coarse-grid cells are of interest after
// screening. CellSize is the coarse tile size in pixels; the fine tiler uses
// it to map fine tile extents back onto the coarse grid.
//
// Not safe for concurrent mutation; the screening stage serializes Mark calls.
type CandidateMask struct {
	policy   WidenPolicy
	cellSize int
	rows     map[int]struct{}
	cols     map[int]struct{}
	cells    map[[2]int]struct{}
}

// NewCandidateMask creates an empty mask for a coarse grid with the given
// cell size.
func NewCandidateMask(policy WidenPolicy, cellSize int) *CandidateMask {
	return &CandidateMask{
		policy:   policy,
		cellSize: cellSize,
		rows:     make(map[int]struct{}),
		cols:     make(map[int]struct{}),
		cells:    make(map[[2]int]struct{}),
	}
}

// CellSize returns the coarse tile size the mask was built against.
func (m *CandidateMask) CellSize() int { return m.cellSize }

// Mark flags the coarse cell at (row, col) as of interest.
func (m *CandidateMask) Mark(row, col int) {
	m.cells[[2]int{row, col}] = struct{}{}
	m.rows[row] = struct{}{}
	m.cols[col] = struct{}{}
}

// Contains reports whether the coarse cell at (row, col) is of interest
// under the mask's widen policy.
func (m *CandidateMask) Contains(row, col int) bool {
	if m.policy == WidenCell {
		_, ok := m.cells[[2]int{row, col}]
		return ok
	}
	if _, ok := m.rows[row]; ok {
		return true
	}
	_, ok := m.cols[col]
	return ok
}

// Len returns the number of cells flagged directly (before widening).
func (m *CandidateMask) Len() int { return len(m.cells) }
