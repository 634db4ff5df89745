package observerproto

// Version is the observer protocol version (separate from the command WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to move the camera.
type SubscribeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Camera          [3]float64 `json:"camera"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string          `json:"protocol_version"`
	WorldID         string          `json:"world_id"`
	Tick            uint64          `json:"tick"`
	WorldParams     WorldParams     `json:"world_params"`
	BlockPalette    []string        `json:"block_palette"`
	Structures      []StructureInfo `json:"structures"`
}

type WorldParams struct {
	TickRateHz        int    `json:"tick_rate_hz"`
	FrameRateHz       int    `json:"frame_rate_hz"`
	ChunkSize         [3]int `json:"chunk_size"`
	Height            int    `json:"height"`
	BoundaryR         int    `json:"boundary_r"`
	HighlightLifetime int    `json:"highlight_lifetime"`
}

type StructureInfo struct {
	ID          string   `json:"id"`
	Directional bool     `json:"directional"`
	Parts       [][3]int `json:"parts"`
}

// Server -> Client. Sent every frame while the observer is subscribed.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Camera [3]float64 `json:"camera"`
	Lines  []LineBox  `json:"lines"`
}

// Server -> Client. Cell changes since the previous message. Never dropped;
// a client that falls too far behind is disconnected instead.
type ChangesMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Changes         []CellChange `json:"changes"`
}

// LineBox is one wireframe box, camera-relative, with RGBA colour.
type LineBox struct {
	Min   [3]float64 `json:"min"`
	Max   [3]float64 `json:"max"`
	Color [4]float32 `json:"color"`
}

type CellChange struct {
	Pos    [3]int `json:"pos"`
	Block  string `json:"block"`
	Part   int    `json:"part,omitempty"`
	Facing string `json:"facing,omitempty"`
}
