// Package uds implements the NDJSON-over-unix-socket control protocol
// between bootmond and its clients.
package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/modoterra/bootmon/pkg/core"
)

var msgCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewRequest creates a request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	return newMessage(MsgTypeReq, fmt.Sprintf("req-%d", msgCounter.Add(1)), method, data)
}

// NewResponse creates a response correlated to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	return newMessage(MsgTypeRes, reqID, method, data)
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	return newMessage(MsgTypeEvt, fmt.Sprintf("evt-%d", msgCounter.Add(1)), method, data)
}

func newMessage(typ MsgType, id, method string, data any) (Message, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{Type: typ, ID: id, Method: method, Data: raw}, nil
}

// Methods
const (
	MethodPing       = "Ping"
	MethodStatus     = "Status"
	MethodLastCrash  = "LastCrash"
	MethodRecentLogs = "RecentLogs"
	MethodHistory    = "History"
	MethodSetEcho    = "SetEcho"
	MethodSetRunID   = "SetRunID"
	MethodStart      = "Start"
	MethodStop       = "Stop"
	MethodVersion    = "Version"

	EventState = "monitor.state"
	EventCrash = "monitor.crash"
	EventLine  = "console.line"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong bool `json:"pong"`
}

// StatusResponse describes the monitor's current condition.
type StatusResponse struct {
	Phase   string `json:"phase"`
	RunID   string `json:"run_id"`
	Echo    bool   `json:"echo"`
	Running bool   `json:"running"`
	Runs    int    `json:"runs"`
}

// LastCrashResponse carries the most recent crash record; Crash is nil
// when no crash has been observed.
type LastCrashResponse struct {
	Crash *core.CrashRecord `json:"crash"`
}

// RecentLogsRequest asks for the rolling console log. Tail > 0 limits
// the result to the last Tail lines.
type RecentLogsRequest struct {
	Tail int `json:"tail,omitempty"`
}

// RecentLogsResponse carries a snapshot of the rolling console log.
type RecentLogsResponse struct {
	Lines []string `json:"lines"`
}

// SetEchoRequest toggles broadcasting of consumed console lines.
type SetEchoRequest struct {
	Enabled bool `json:"enabled"`
}

// SetRunIDRequest overrides the current run identifier.
type SetRunIDRequest struct {
	RunID string `json:"run_id"`
}

// OKResponse acknowledges a request with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// VersionResponse reports the daemon's build information.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// StateEvent is broadcast on every phase or run transition.
type StateEvent struct {
	Phase string `json:"phase"`
	RunID string `json:"run_id"`
}
