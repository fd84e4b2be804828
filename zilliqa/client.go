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

// Package zilliqa tracks the live chain: current TX/DS blocks, network
// difficulties and the PoW-window timing derived from them.
package zilliqa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a JSON-RPC level failure from the chain API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zilliqa api error %d: %s", e.Code, e.Message)
}

// Client dials the public Zilliqa JSON-RPC API.
type Client struct {
	endpoint string
	httpc    *http.Client
}

// NewClient creates a client for the given API endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiRequest struct {
	Version string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type apiResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{""}
	}
	payload, err := json.Marshal(apiRequest{Version: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

func (c *Client) callUint(ctx context.Context, method string) (uint64, error) {
	raw, err := c.call(ctx, method)
	if err != nil {
		return 0, err
	}
	// the API returns block numbers as quoted decimal strings and
	// difficulties as bare numbers
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strconv.ParseUint(strings.TrimSpace(asString), 10, 64)
	}
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, err
	}
	return asNumber, nil
}

// GetCurrentMiniEpoch returns the current TX block number.
func (c *Client) GetCurrentMiniEpoch(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "GetCurrentMiniEpoch")
}

// GetCurrentDSEpoch returns the current DS block number.
func (c *Client) GetCurrentDSEpoch(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "GetCurrentDSEpoch")
}

// GetPrevDifficulty returns the shard difficulty of the previous epoch.
func (c *Client) GetPrevDifficulty(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "GetPrevDifficulty")
}

// GetPrevDSDifficulty returns the DS difficulty of the previous epoch.
func (c *Client) GetPrevDSDifficulty(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "GetPrevDSDifficulty")
}

// GetBalance returns an account balance in Qa.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	address = strings.TrimPrefix(strings.ToLower(address), "0x")
	raw, err := c.call(ctx, "GetBalance", address)
	if err != nil {
		return 0, err
	}
	var out struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, err
	}
	return strconv.ParseUint(out.Balance, 10, 64)
}
