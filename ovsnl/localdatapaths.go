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

package ovsnl

import "github.com/ovnlocal/lflow/internal/sbmodel"

// BridgeDatapaths maps a kernel datapath name (e.g. "br-int") to the
// logical datapaths, identified by tunnel key, bound to it. The
// Datapath_Binding/Chassis tables carry this correlation; this package only
// confirms which of the candidate tunnel keys sit on a datapath that
// genuinely exists in this kernel right now.
type BridgeDatapaths map[string][]sbmodel.DatapathID

// LocalDatapaths lists this host's in-kernel OVS datapaths and returns the
// subset of bridges's logical datapaths whose kernel bridge is actually
// present, for RuntimeState.LocalDatapaths (§6), which feeds the row
// compiler's locality gate (RC step 1).
//
// A bridge named in bridges that has no matching kernel datapath contributes
// nothing; this keeps the result honest when the host is mid-reconfiguration
// rather than reporting a datapath as local because the caller asked for it.
func (c *Client) LocalDatapaths(bridges BridgeDatapaths) (map[sbmodel.DatapathID]struct{}, error) {
	dps, err := c.Datapath.List()
	if err != nil {
		return nil, err
	}

	local := make(map[sbmodel.DatapathID]struct{})
	for _, dp := range dps {
		for _, id := range bridges[dp.Name] {
			local[id] = struct{}{}
		}
	}

	return local, nil
}
