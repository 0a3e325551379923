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

// Network represents a Cardano network
type Network struct {
	Name         string
	NetworkMagic uint32
}

func (n Network) String() string {
	return n.Name
}

// NetworkInvalid is returned by the lookup functions when a matching network
// is not found
var NetworkInvalid = Network{}

// Known networks
var (
	NetworkMainnet = Network{
		Name:         "mainnet",
		NetworkMagic: 764824073,
	}
	NetworkPreprod = Network{
		Name:         "preprod",
		NetworkMagic: 1,
	}
	NetworkPreview = Network{
		Name:         "preview",
		NetworkMagic: 2,
	}
)

var networks = []Network{
	NetworkMainnet,
	NetworkPreprod,
	NetworkPreview,
}

// NetworkByName returns the named network, or NetworkInvalid if the name
// is not known
func NetworkByName(name string) Network {
	for _, network := range networks {
		if network.Name == name {
			return network
		}
	}
	return NetworkInvalid
}

// NetworkByNetworkMagic returns the network with the given magic, or
// NetworkInvalid if the magic is not known
func NetworkByNetworkMagic(networkMagic uint32) Network {
	for _, network := range networks {
		if network.NetworkMagic == networkMagic {
			return network
		}
	}
	return NetworkInvalid
}
