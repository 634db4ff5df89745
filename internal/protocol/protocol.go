package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypePlace    = "PLACE"
	TypeProbe    = "PROBE"
	TypeBreak    = "BREAK"
	TypeSetBlock = "SET_BLOCK"
	TypeResult   = "RESULT"
	TypeError    = "ERROR"
)

//go:embed schemas/command.schema.json
var commandSchemaJSON string

var commandSchema = jsonschema.MustCompileString("command.schema.json", commandSchemaJSON)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeCommand validates b against the command schema and decodes it.
// Schema failures are reported as *BadRequestError.
func DecodeCommand(b []byte) (CommandMsg, error) {
	var cmd CommandMsg
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return cmd, &BadRequestError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if err := commandSchema.Validate(raw); err != nil {
		return cmd, &BadRequestError{Reason: err.Error()}
	}
	if err := json.Unmarshal(b, &cmd); err != nil {
		return cmd, &BadRequestError{Reason: err.Error()}
	}
	return cmd, nil
}

type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return "bad request: " + e.Reason }
