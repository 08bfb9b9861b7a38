package protocol

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the only valid JSON-RPC version string.
const JSONRPCVersion = "2.0"

// Message is the union of a JSON-RPC 2.0 request, response, and notification.
// Requests carry Method and ID, notifications carry Method only, responses
// carry ID and either Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a one-way notification.
func (m Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message answers an earlier request.
func (m Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewRequest builds a request message with a numeric id.
func NewRequest(id int64, method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, err
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification builds a notification message.
func NewNotification(method string, params any) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, err
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResult builds a successful response to the request with the given id.
func NewResult(id json.RawMessage, result any) (Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("marshal result: %w", err)
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  data,
	}, nil
}

// NewError builds an error response to the request with the given id.
func NewError(id json.RawMessage, code int, message string) Message {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NewMethodNotFound creates a method-not-found error response.
func NewMethodNotFound(id json.RawMessage, method string) Message {
	return NewError(id, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", method))
}

// NewInvalidParams creates an invalid params error response.
func NewInvalidParams(id json.RawMessage, detail string) Message {
	return NewError(id, CodeInvalidParams, fmt.Sprintf("Invalid params: %s", detail))
}

// ParseMessage decodes a raw frame and checks the protocol version.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, &RPCError{Code: CodeParseError, Message: "Parse error"}
	}
	if msg.JSONRPC != JSONRPCVersion {
		return Message{}, &RPCError{Code: CodeInvalidRequest, Message: "Invalid Request"}
	}
	return msg, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}
