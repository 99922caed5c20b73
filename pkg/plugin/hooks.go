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

package plugin

// RegisterHook is the shape every built-in effects/generators/transitions
// sub-package calls from its own init(), the same way the engine's addon
// hooks register themselves against a package-level hook list.
type RegisterHook func(meta Metadata, factory Factory)

var pending []func(RegisterHook)

// RegisterBuiltin queues a built-in plugin's registration. Sub-packages
// call this from init(); the engine drains the queue into a live
// Registry at startup via Build.
func RegisterBuiltin(register func(RegisterHook)) {
	pending = append(pending, register)
}

// Build constructs a Registry and replays every queued built-in
// registration against it. A failing registration is isolated by
// Register itself and reported through
// onLoadError.
func Build(onLoadError func(id string, err error)) *Registry {
	r := New(onLoadError)
	for _, register := range pending {
		register(r.Register)
	}
	return r
}
