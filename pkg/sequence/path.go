// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sequence

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a parameter path: a name plus an optional
// collection index ("effects[0]" parses to {Name: "effects", Index: 0}).
type Segment struct {
	Name  string
	Index int // -1 when the segment has no index
}

// Path is a parsed dotted parameter path, e.g.
// "player.video.clip.effects[0].hue_shift".
type Path []Segment

// String reassembles the path in its dotted form.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		if seg.Index >= 0 {
			parts[i] = fmt.Sprintf("%s[%d]", seg.Name, seg.Index)
		} else {
			parts[i] = seg.Name
		}
	}
	return strings.Join(parts, ".")
}

// ParsePath splits a dotted path into segments, parsing one optional
// trailing [n] index per segment.
func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	parts := strings.Split(path, ".")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty segment in %q", path)
		}

		seg := Segment{Name: part, Index: -1}
		if open := strings.IndexByte(part, '['); open >= 0 {
			if !strings.HasSuffix(part, "]") {
				return nil, fmt.Errorf("unterminated index in segment %q", part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil {
				return nil, fmt.Errorf("bad index in segment %q: %w", part, err)
			}
			if idx < 0 {
				return nil, fmt.Errorf("negative index in segment %q", part)
			}
			seg.Name = part[:open]
			seg.Index = idx
			if seg.Name == "" {
				return nil, fmt.Errorf("index without name in segment %q", part)
			}
		}
		out = append(out, seg)
	}
	return out, nil
}
