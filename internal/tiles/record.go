package tiles

// EdgeCount is the number of edges on a hex tile.
const EdgeCount = 6

// Group type names as reported by the host world.
const (
	GroupAgriculture = "Agriculture"
	GroupForest      = "Forest"
	GroupVillage     = "Village"
	GroupWater       = "Water"
	GroupTrain       = "Train"
)

// Segment is one edge group placed on a tile. Edges are tile-local edge
// indices in [0,6). SelfEdgeCount is the number of edges the segment spans in
// self space; only station detection looks at it.
type Segment struct {
	GroupType     string `json:"group_type"`
	Edges         []int  `json:"edges"`
	Hybrid        bool   `json:"hybrid,omitempty"` // water only: contained lake
	SelfEdgeCount int    `json:"self_edge_count"`
}

// Record is a placed tile as seen in a world snapshot. ID and the axial
// position are diagnostics only.
type Record struct {
	ID       string    `json:"id,omitempty"`
	Q        int       `json:"q"`
	R        int       `json:"r"`
	Segments []Segment `json:"segments"`
}
