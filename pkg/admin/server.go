// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package admin

import (
	"context"
	"net"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/server"
)

// Listen opens the admin listener. Addresses containing a slash are
// Unix sockets, anything else is TCP.
func Listen(addr string) (net.Listener, error) {
	return net.Listen(jrpc2.Network(addr), addr)
}

// Serve answers RPCs on l until ctx is cancelled
func Serve(ctx context.Context, l net.Listener, svc *Service) error {
	assigner := handler.ServiceMap{
		ServiceName: handler.NewService(svc),
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	err := server.Loop(l, server.NewStatic(assigner), nil)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
