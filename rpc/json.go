// Copyright 2019 The go-zilpool Authors
// This file is part of the go-zilpool library.
//
// The go-zilpool library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-zilpool library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-zilpool library. If not, see <http://www.gnu.org/licenses/>.

// Package rpc implements the JSON-RPC 2.0 server the proxy exposes over
// HTTP POST and WebSocket.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const vsn = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// ErrBadParams marks malformed positional parameters; mapped to the
// invalid-params error code.
var ErrBadParams = errors.New("invalid method parameters")

// jsonrpcMessage is the on-wire shape of both requests and responses.
type jsonrpcMessage struct {
	Version string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonError      `json:"error,omitempty"`
}

type jsonError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *jsonError) Error() string {
	return e.Message
}

func (msg *jsonrpcMessage) isCall() bool {
	return msg.Method != ""
}

func (msg *jsonrpcMessage) errorResponse(code int, text string) *jsonrpcMessage {
	return &jsonrpcMessage{
		Version: vsn,
		ID:      msg.ID,
		Error:   &jsonError{Code: code, Message: text},
	}
}

func (msg *jsonrpcMessage) response(result any) *jsonrpcMessage {
	enc, err := json.Marshal(result)
	if err != nil {
		return msg.errorResponse(codeServerError, fmt.Sprintf("marshal result: %v", err))
	}
	return &jsonrpcMessage{Version: vsn, ID: msg.ID, Result: enc}
}

// parseParams splits the positional params array into raw elements. A
// missing params field is an empty call.
func parseParams(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ErrBadParams
	}
	return out, nil
}

// StringParam decodes the i-th positional parameter as a lowercased
// string. Optional parameters default to "".
func StringParam(params []json.RawMessage, i int, optional bool) (string, error) {
	if i >= len(params) {
		if optional {
			return "", nil
		}
		return "", ErrBadParams
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return "", ErrBadParams
	}
	return strings.ToLower(s), nil
}
