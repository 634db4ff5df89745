package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrWorldBusy       = "E_WORLD_BUSY"

	// Command layer.
	ErrBadRequest       = "E_BAD_REQUEST"
	ErrUnknownStructure = "E_UNKNOWN_STRUCTURE"
	ErrUnknownBlock     = "E_UNKNOWN_BLOCK"
	ErrBlocked          = "E_BLOCKED"
	ErrOutOfBounds      = "E_OUT_OF_BOUNDS"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrWorldBusy:        {},
	ErrBadRequest:       {},
	ErrUnknownStructure: {},
	ErrUnknownBlock:     {},
	ErrBlocked:          {},
	ErrOutOfBounds:      {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
