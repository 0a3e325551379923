// Copyright 2026 Chaintail Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chaintail

// ProtocolVersionNtCFlag is added to the node-to-client protocol versions
// on the wire to disambiguate them from node-to-node versions
const ProtocolVersionNtCFlag uint16 = 0x8000

// Supported node-to-client protocol versions
const (
	protocolVersionNtCMin uint16 = 9
	protocolVersionNtCMax uint16 = 16
)

// protocolVersionMap builds the handshake version table for the given
// network magic. Each supported version maps to its version-specific
// parameters
func protocolVersionMap(networkMagic uint32) map[uint16]any {
	versionMap := map[uint16]any{}
	for version := protocolVersionNtCMin; version <= protocolVersionNtCMax; version++ {
		var versionData any
		if version >= 15 {
			// NtC v15 added the peer-sharing-era version data shape, which
			// for NtC is [networkMagic, query]
			versionData = []any{networkMagic, false}
		} else {
			versionData = networkMagic
		}
		versionMap[version+ProtocolVersionNtCFlag] = versionData
	}
	return versionMap
}
