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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testMeta() Metadata {
	return Metadata{
		ID:   "test.brightness",
		Name: "Brightness",
		Kind: KindEffect,
		Params: []ParamSpec{
			{Name: "amount", Type: ParamFloat, Default: 1.0, Min: 0, Max: 2},
		},
	}
}

func TestRegisterAndList(t *testing.T) {
	r := New(nil)
	r.Register(testMeta(), func(Params) (interface{}, error) { return struct{}{}, nil })

	metas := r.List(KindEffect)
	require.Len(t, metas, 1)
	require.Equal(t, "test.brightness", metas[0].ID)
}

func TestInstantiateDefaultParams(t *testing.T) {
	r := New(nil)
	var got Params
	r.Register(testMeta(), func(p Params) (interface{}, error) {
		got = p
		return struct{}{}, nil
	})

	_, err := r.Instantiate("test.brightness", Params{})
	require.NoError(t, err)
	require.Equal(t, 1.0, got["amount"])
}

func TestInstantiateNotFound(t *testing.T) {
	r := New(nil)
	_, err := r.Instantiate("missing", Params{})
	require.Error(t, err)
	var notFound *PluginNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestInstantiateValidationError(t *testing.T) {
	r := New(nil)
	r.Register(testMeta(), func(Params) (interface{}, error) { return struct{}{}, nil })

	_, err := r.Instantiate("test.brightness", Params{"amount": 5.0})
	require.Error(t, err)
	var valErr *ParameterValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestInstantiationError(t *testing.T) {
	r := New(nil)
	r.Register(testMeta(), func(Params) (interface{}, error) {
		return nil, errors.New("boom")
	})

	_, err := r.Instantiate("test.brightness", Params{})
	require.Error(t, err)
	var instErr *PluginInstantiationError
	require.ErrorAs(t, err, &instErr)
}

func TestRegisterIsolatesFailure(t *testing.T) {
	var failed string
	r := New(func(id string, err error) { failed = id })

	r.Register(Metadata{ID: "", Kind: KindEffect}, nil)
	r.Register(testMeta(), func(Params) (interface{}, error) { return struct{}{}, nil })

	require.Equal(t, "", failed)
	require.Len(t, r.List(KindEffect), 1)
}

func TestMetadataAndParametersJSON(t *testing.T) {
	r := New(nil)
	r.Register(testMeta(), func(Params) (interface{}, error) { return struct{}{}, nil })

	metaJSON, err := r.MetadataJSON("test.brightness")
	require.NoError(t, err)
	require.Contains(t, string(metaJSON), "test.brightness")

	paramsJSON, err := r.ParametersJSON("test.brightness")
	require.NoError(t, err)
	require.Contains(t, string(paramsJSON), "amount")
}
