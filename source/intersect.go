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

package source

import (
	"encoding/hex"
	"fmt"

	"github.com/cardanoware/chaintail/protocol/common"
)

// resolveIntersect produces the ordered list of candidate intersect points
// to offer the node, most preferred first. Precedence: explicit intersect
// config, then the deprecated single resume point, then empty (sync from
// origin). Pure function of the config
func resolveIntersect(cfg *Config) ([]common.Point, error) {
	var refs []PointRef
	switch {
	case len(cfg.Intersect) > 0:
		refs = cfg.Intersect
	case cfg.Since != nil:
		refs = []PointRef{*cfg.Since}
	default:
		return nil, nil
	}
	points := make([]common.Point, 0, len(refs))
	for _, ref := range refs {
		point, err := pointFromRef(ref)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, nil
}

func pointFromRef(ref PointRef) (common.Point, error) {
	if ref.Origin {
		if ref.Slot != 0 || ref.Hash != "" {
			return common.Point{}, fmt.Errorf(
				"%w: origin point cannot also specify a slot or hash",
				ErrInvalidConfig,
			)
		}
		return common.NewPointOrigin(), nil
	}
	if ref.Hash == "" {
		return common.Point{}, fmt.Errorf(
			"%w: intersect point for slot %d has no block hash",
			ErrInvalidConfig,
			ref.Slot,
		)
	}
	hash, err := hex.DecodeString(ref.Hash)
	if err != nil {
		return common.Point{}, fmt.Errorf(
			"%w: malformed block hash %q: %w",
			ErrInvalidConfig,
			ref.Hash,
			err,
		)
	}
	return common.NewPoint(ref.Slot, hash), nil
}
