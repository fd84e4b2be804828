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
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

const maxRequestContentLength = 1024 * 1024 * 5

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HTTPHandler wraps the server into an http.Handler serving POST payloads
// and WebSocket upgrades on the same path, with permissive CORS the way
// miner dashboards expect.
func (s *Server) HTTPHandler() http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.serveWebSocket(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.ContentLength > maxRequestContentLength {
			http.Error(w, "content length too large", http.StatusRequestEntityTooLarge)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestContentLength))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		resp := s.HandlePayload(r.Context(), body)
		w.Header().Set("Content-Type", "application/json")
		if resp == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(resp)
	})
	return cors.AllowAll().Handler(inner)
}

// serveWebSocket runs the request/response loop over one WebSocket
// connection.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.HandlePayload(r.Context(), payload)
		if resp == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			return
		}
	}
}
