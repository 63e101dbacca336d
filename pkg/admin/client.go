// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package admin

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
)

// Client calls a running node's admin service
type Client struct {
	conn net.Conn
	cli  *jrpc2.Client
}

// Dial connects to the admin listener at addr
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout(jrpc2.Network(addr), addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to reach node admin at %s: %w", addr, err)
	}
	return &Client{conn: conn, cli: jrpc2.NewClient(channel.RawJSON(conn, conn), nil)}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) call(ctx context.Context, method string, params []string, result interface{}) error {
	if params == nil {
		params = []string{}
	}
	return c.cli.CallResult(ctx, ServiceName+"."+method, params, result)
}

func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	var r StatusReply
	err := c.call(ctx, "Status", nil, &r)
	return r, err
}

func (c *Client) Temps(ctx context.Context) ([]PeerReply, error) {
	var r []PeerReply
	err := c.call(ctx, "Temps", nil, &r)
	return r, err
}

func (c *Client) Roster(ctx context.Context) ([]string, error) {
	var r []string
	err := c.call(ctx, "Roster", nil, &r)
	return r, err
}

func (c *Client) AddNode(ctx context.Context, id string) ([]string, error) {
	var r []string
	err := c.call(ctx, "AddNode", []string{id}, &r)
	return r, err
}

func (c *Client) Silence(ctx context.Context) (time.Time, error) {
	var s string
	if err := c.call(ctx, "Silence", nil, &s); err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// SetTime sends t as RFC 3339
func (c *Client) SetTime(ctx context.Context, t time.Time) error {
	var s string
	return c.call(ctx, "SetTime", []string{t.Format(time.RFC3339)}, &s)
}

func (c *Client) SetNodeID(ctx context.Context, id string) error {
	var s string
	return c.call(ctx, "SetNodeID", []string{id}, &s)
}

func (c *Client) SetWiFi(ctx context.Context, ssid, pass string) error {
	var s string
	return c.call(ctx, "SetWiFi", []string{ssid, pass}, &s)
}
