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

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/durianstall/go-zilpool/log"
)

// Handler serves one registered method. Returned errors become JSON-RPC
// error objects; ErrBadParams maps to the invalid-params code.
type Handler func(ctx context.Context, params []json.RawMessage) (any, error)

// Server dispatches JSON-RPC calls to registered handlers. Transports
// (HTTP, WebSocket) feed it raw payloads.
type Server struct {
	mu      sync.RWMutex
	methods map[string]Handler
	logger  log.Logger
}

// NewServer creates an empty method registry.
func NewServer() *Server {
	return &Server{
		methods: make(map[string]Handler),
		logger:  log.New("pkg", "rpc"),
	}
}

// Register adds a method by its full wire name (e.g. "zil_requestWork").
func (s *Server) Register(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = h
}

// HandlePayload processes a single or batch JSON-RPC payload and returns
// the serialized response, or nil for an empty batch.
func (s *Server) HandlePayload(ctx context.Context, payload []byte) []byte {
	msgs, batch, err := parseMessage(payload)
	if err != nil {
		resp, _ := json.Marshal((&jsonrpcMessage{Version: vsn}).errorResponse(codeParse, "parse error"))
		return resp
	}
	if len(msgs) == 0 {
		resp, _ := json.Marshal((&jsonrpcMessage{Version: vsn}).errorResponse(codeInvalidRequest, "empty batch"))
		return resp
	}
	answers := make([]*jsonrpcMessage, 0, len(msgs))
	for _, msg := range msgs {
		if answer := s.handleCall(ctx, msg); answer != nil {
			answers = append(answers, answer)
		}
	}
	if len(answers) == 0 {
		return nil
	}
	var out []byte
	if batch {
		out, _ = json.Marshal(answers)
	} else {
		out, _ = json.Marshal(answers[0])
	}
	return out
}

func (s *Server) handleCall(ctx context.Context, msg *jsonrpcMessage) *jsonrpcMessage {
	if !msg.isCall() {
		return msg.errorResponse(codeInvalidRequest, "invalid request")
	}
	s.mu.RLock()
	handler, ok := s.methods[msg.Method]
	s.mu.RUnlock()
	if !ok {
		return msg.errorResponse(codeMethodNotFound, "the method "+msg.Method+" does not exist/is not available")
	}
	params, err := parseParams(msg.Params)
	if err != nil {
		return msg.errorResponse(codeInvalidParams, err.Error())
	}
	result, err := handler(ctx, params)
	if err != nil {
		s.logger.Debug("RPC call failed", "method", msg.Method, "err", err)
		if errors.Is(err, ErrBadParams) {
			return msg.errorResponse(codeInvalidParams, err.Error())
		}
		return msg.errorResponse(codeServerError, err.Error())
	}
	if len(msg.ID) == 0 {
		// notification, no response
		return nil
	}
	return msg.response(result)
}

// parseMessage splits a payload into its calls, reporting whether it was
// a batch.
func parseMessage(payload []byte) ([]*jsonrpcMessage, bool, error) {
	trimmed := firstNonWhitespace(payload)
	if trimmed == '[' {
		var msgs []*jsonrpcMessage
		if err := json.Unmarshal(payload, &msgs); err != nil {
			return nil, true, err
		}
		return msgs, true, nil
	}
	msg := new(jsonrpcMessage)
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, false, err
	}
	return []*jsonrpcMessage{msg}, false, nil
}

func firstNonWhitespace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
