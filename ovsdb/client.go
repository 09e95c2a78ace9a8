// Copyright 2017 DigitalOcean.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ovsdb

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ovnlocal/lflow/ovsdb/internal/jsonrpc"
)

// A Client is an OVSDB client. It multiplexes concurrent RPCs over a single
// JSON-RPC connection and answers the server's own liveness probes.
type Client struct {
	c  *jsonrpc.Conn
	ll *log.Logger

	echoInterval time.Duration

	mu          sync.Mutex
	nextID      uint64
	callbacks   map[string]chan jsonrpc.Response
	closed      bool
	echoSuccess int
	echoFailure int

	stopC chan struct{}
	wg    sync.WaitGroup
}

// An OptionFunc is a function which can configure a Client.
type OptionFunc func(c *Client) error

// Debug enables wire-level debug logging for a Client's JSON-RPC traffic.
// This stays on the standard library logger: it logs inside
// internal/jsonrpc, below the ambient logrus stack the rest of this rework
// uses (see internal/reflog), matching the teacher's original scope for
// this option.
func Debug(ll *log.Logger) OptionFunc {
	return func(c *Client) error {
		c.ll = ll
		return nil
	}
}

// EchoInterval causes the Client to periodically issue an "echo" RPC in the
// background, at the given interval, to detect a dead ovsdb-server before an
// application-level RPC would otherwise time out.
func EchoInterval(d time.Duration) OptionFunc {
	return func(c *Client) error {
		c.echoInterval = d
		return nil
	}
}

// Dial dials a connection to an OVSDB server and returns a Client.
func Dial(network, addr string, options ...OptionFunc) (*Client, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}

	return New(conn, options...)
}

// New wraps an existing connection to an OVSDB server and returns a Client.
func New(conn net.Conn, options ...OptionFunc) (*Client, error) {
	client := &Client{
		callbacks: make(map[string]chan jsonrpc.Response),
		stopC:     make(chan struct{}),
	}
	for _, o := range options {
		if err := o(client); err != nil {
			return nil, err
		}
	}

	client.c = jsonrpc.NewConn(conn, client.ll)

	client.wg.Add(1)
	go client.receiveLoop()

	if client.echoInterval > 0 {
		client.wg.Add(1)
		go client.echoLoop(client.echoInterval)
	}

	return client, nil
}

// Close closes a Client's connection and waits for its background
// goroutines to exit.
func (c *Client) Close() error {
	err := c.c.Close()
	close(c.stopC)
	c.wg.Wait()
	return err
}

// Stats reports the Client's current bookkeeping, useful for leak
// detection in tests and for ambient observability.
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ClientStats{
		Callbacks: CallbackStats{Current: len(c.callbacks)},
		EchoLoop:  EchoLoopStats{Success: c.echoSuccess, Failure: c.echoFailure},
	}
}

// receiveLoop reads every incoming JSON-RPC message and either dispatches it
// to the RPC awaiting that response ID, or treats it as a server-initiated
// notification (currently only "echo" liveness probes).
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		res, err := c.c.Receive()
		if err != nil {
			c.cleanup()
			return
		}

		if res.Method != "" {
			c.handleNotification(*res)
			continue
		}

		if res.ID != nil {
			c.dispatch(*res.ID, *res)
		}
	}
}

func (c *Client) handleNotification(res jsonrpc.Response) {
	switch res.Method {
	case "echo":
		// ovsdb-server periodically probes liveness this way; answer with
		// our own regular echo round trip rather than hand-crafting a raw
		// reply frame.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.doEcho()
		}()
	default:
		// Unknown notification kind; nothing registered to handle it.
	}
}

func (c *Client) dispatch(id string, res jsonrpc.Response) {
	c.mu.Lock()
	ch, ok := c.callbacks[id]
	if ok {
		delete(c.callbacks, id)
	}
	c.mu.Unlock()

	if !ok {
		// Late or unexpected reply; drop it.
		return
	}

	ch <- res
}

func (c *Client) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, ch := range c.callbacks {
		close(ch)
		delete(c.callbacks, id)
	}
}

func (c *Client) register() (string, chan jsonrpc.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", nil, fmt.Errorf("ovsdb: client connection is closed")
	}

	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	ch := make(chan jsonrpc.Response, 1)
	c.callbacks[id] = ch

	return id, ch, nil
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.callbacks, id)
	c.mu.Unlock()
}

// call performs a single RPC request and decodes its result into out,
// honoring ctx for cancellation while the reply is outstanding.
func (c *Client) call(ctx context.Context, method string, out interface{}, params []interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if params == nil {
		params = []interface{}{}
	}

	id, ch, err := c.register()
	if err != nil {
		return err
	}

	req := jsonrpc.Request{
		ID:     id,
		Method: method,
		Params: params,
	}

	if err := c.c.Send(req); err != nil {
		c.unregister(id)
		return err
	}

	select {
	case <-ctx.Done():
		c.unregister(id)
		return ctx.Err()
	case res, ok := <-ch:
		if !ok {
			return fmt.Errorf("ovsdb: connection closed while awaiting %s reply", method)
		}

		if err := res.Err(); err != nil {
			return err
		}

		if len(res.Result) == 0 {
			return nil
		}

		r := result{Reply: out}
		return rpcResult(rpcResponse{Result: res.Result}, &r)
	}
}

func (c *Client) echoLoop(interval time.Duration) {
	defer c.wg.Done()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-c.stopC:
			return
		case <-t.C:
			c.doEcho()
		}
	}
}

func (c *Client) doEcho() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Echo(ctx)

	c.mu.Lock()
	if err != nil {
		c.echoFailure++
	} else {
		c.echoSuccess++
	}
	c.mu.Unlock()
}
