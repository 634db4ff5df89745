package protocol

// HELLO / PLACE / PROBE / BREAK / SET_BLOCK (client -> server). Which fields
// are required depends on Type; the command schema enforces it.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`

	ClientName string `json:"client_name,omitempty"`

	Structure string  `json:"structure,omitempty"`
	Block     string  `json:"block,omitempty"`
	Pos       *[3]int `json:"pos,omitempty"`
	// Facing is the direction the placer looks in.
	Facing string `json:"facing,omitempty"`
	// Part is the part index the clicked cell takes; 0 when omitted.
	Part int `json:"part,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	WorldID         string         `json:"world_id"`
	Tick            uint64         `json:"tick"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz int    `json:"tick_rate_hz"`
	ChunkSize  [3]int `json:"chunk_size"`
	Height     int    `json:"height"`
	BoundaryR  int    `json:"boundary_r"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	Structures   DigestRef `json:"structures"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// RESULT (server -> client), one per command.
type ResultMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Ref             string   `json:"ref"`
	OK              bool     `json:"ok"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	Tick            uint64   `json:"tick"`
	Block           string   `json:"block,omitempty"`
	Cells           [][3]int `json:"cells,omitempty"`
	Blocked         [][3]int `json:"blocked,omitempty"`
}

// ERROR (server -> client) for messages that could not be tied to a command.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
