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
)

// echoParam is the value a Client sends with every "echo" RPC and expects
// to see unchanged in the reply; using the Client's own import path keeps
// it distinctive enough to catch a misbehaving server.
const echoParam = "github.com/ovnlocal/lflow/ovsdb"

// ListDatabases returns the name of all databases known to the OVSDB server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var dbs []string
	if err := c.call(ctx, "list_dbs", &dbs, nil); err != nil {
		return nil, err
	}

	return dbs, nil
}

// Echo performs a single liveness round trip with the OVSDB server.
func (c *Client) Echo(ctx context.Context) error {
	var got []string
	if err := c.call(ctx, "echo", &got, []interface{}{echoParam}); err != nil {
		return err
	}

	if len(got) != 1 || got[0] != echoParam {
		return fmt.Errorf("ovsdb: unexpected echo reply: %v", got)
	}

	return nil
}

// Transact performs one or more TransactOps against the named database and
// returns the rows produced by any Select operations, in op order.
func (c *Client) Transact(ctx context.Context, db string, ops []TransactOp) ([]Row, error) {
	params := make([]interface{}, 0, len(ops)+1)
	params = append(params, db)
	for _, op := range ops {
		params = append(params, op)
	}

	var results []struct {
		Rows []Row `json:"rows"`
	}

	if err := c.call(ctx, "transact", &results, params); err != nil {
		return nil, err
	}

	var rows []Row
	for _, r := range results {
		rows = append(rows, r.Rows...)
	}

	return rows, nil
}
