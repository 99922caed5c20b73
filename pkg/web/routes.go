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

// Package web exposes the engine's control surface over HTTP: player
// transport, global parameters, content, effect chains, clip layers,
// Art-Net configuration, sequences, snapshots and introspection. These
// handlers are the only legal way for external clients to observe or
// mutate engine state.
package web

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"lumenart/pkg/artnet"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/log"
	"lumenart/pkg/player"
	"lumenart/pkg/plugin"
	"lumenart/pkg/sequence"
	"lumenart/pkg/snapshot"
	"lumenart/pkg/system"
	"lumenart/pkg/web/auth"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "could not encode json", http.StatusInternalServerError)
	}
}

func playerByQuery(m *player.Manager, w http.ResponseWriter, r *http.Request) (*player.Player, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id missing", http.StatusBadRequest)
		return nil, false
	}
	p, ok := m.Get(id)
	if !ok {
		http.Error(w, "player does not exist", http.StatusBadRequest)
		return nil, false
	}
	return p, true
}

func parseCSVParam(query url.Values, name string) []string {
	raw := query.Get(name)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// PlayerList returns every managed player id.
func PlayerList(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, m.List())
	})
}

// PlayerPlay starts playback on a player.
func PlayerPlay(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Play(context.Background()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// PlayerPause pauses a playing player.
func PlayerPause(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Pause(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// PlayerResume resumes a paused player.
func PlayerResume(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Resume(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// PlayerStop stops a player.
func PlayerStop(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Stop(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// PlayerRestart restarts a player from its clip's in-point.
func PlayerRestart(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Restart(context.Background()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// playerParams is the request body for PlayerParamsSet. Pointer fields
// distinguish "not supplied" from zero values.
type playerParams struct {
	Brightness *float64 `json:"brightness"` // 0-100
	Speed      *float64 `json:"speed"`      // 0.1-3.0
	FPS        *int     `json:"fps"`
	Loop       *int     `json:"loop"`
	HueShift   *float64 `json:"hueShift"` // -180..180
}

// PlayerParamsSet sets any combination of a player's global parameters.
func PlayerParamsSet(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		var params playerParams
		if err := json.Unmarshal(body, &params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		apply := func(err error) bool {
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return false
			}
			return true
		}
		if params.Brightness != nil && !apply(p.SetBrightness(*params.Brightness)) {
			return
		}
		if params.Speed != nil && !apply(p.SetSpeed(*params.Speed)) {
			return
		}
		if params.FPS != nil && !apply(p.SetFPS(*params.FPS)) {
			return
		}
		if params.Loop != nil && !apply(p.SetLoop(*params.Loop)) {
			return
		}
		if params.HueShift != nil && !apply(p.SetHueShift(*params.HueShift)) {
			return
		}
	})
}

// PlayerLoadClip switches a player to a clip.
func PlayerLoadClip(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		clipID := r.URL.Query().Get("clip")
		if clipID == "" {
			http.Error(w, "clip missing", http.StatusBadRequest)
			return
		}
		if err := p.LoadClip(clipID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// PlayerSetPlaylist replaces a player's playlist with the clip ids in
// the "clips" CSV query parameter.
func PlayerSetPlaylist(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}

		clipIDs := parseCSVParam(r.URL.Query(), "clips")
		items := make([]player.PlaylistItem, 0, len(clipIDs))
		for _, id := range clipIDs {
			items = append(items, player.PlaylistItem{ClipID: id})
		}
		p.SetPlaylist(items)
	})
}

// PlayerSeek moves a player's base source to a frame or time position.
func PlayerSeek(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}

		query := r.URL.Query()
		frameNumber := -1
		if f := query.Get("frame"); f != "" {
			n, err := strconv.Atoi(f)
			if err != nil {
				http.Error(w, "could not parse frame: "+err.Error(), http.StatusBadRequest)
				return
			}
			frameNumber = n
		}
		var seconds float64
		if s := query.Get("seconds"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				http.Error(w, "could not parse seconds: "+err.Error(), http.StatusBadRequest)
				return
			}
			seconds = v
		}

		if err := p.Seek(frameNumber, seconds); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// effectRequest is the request body shared by the chain-effect handlers.
type effectRequest struct {
	Target   string                 `json:"target"` // "video" | "artnet"
	PluginID string                 `json:"pluginId"`
	Index    int                    `json:"index"`
	Name     string                 `json:"name"`
	Value    interface{}            `json:"value"`
	Params   map[string]interface{} `json:"params"`
}

func decodeEffectRequest(w http.ResponseWriter, r *http.Request) (effectRequest, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return effectRequest{}, false
	}
	var req effectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return effectRequest{}, false
	}
	return req, true
}

// EffectAdd appends an effect to one of a player's target chains.
func EffectAdd(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeEffectRequest(w, r)
		if !ok {
			return
		}
		if err := p.AddEffect(req.Target, req.PluginID, req.Params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// EffectRemove removes an effect from a target chain by index.
func EffectRemove(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeEffectRequest(w, r)
		if !ok {
			return
		}
		if err := p.RemoveEffect(req.Target, req.Index); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// EffectUpdateParameter sets one named parameter on a chain effect.
func EffectUpdateParameter(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeEffectRequest(w, r)
		if !ok {
			return
		}
		if err := p.UpdateParameter(req.Target, req.Index, req.Name, req.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// EffectClearChain empties one of a player's target chains.
func EffectClearChain(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		target := r.URL.Query().Get("target")
		if err := p.ClearChain(target); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// ClipList returns every registered clip id.
func ClipList(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, registry.List())
	})
}

// ClipGet returns a clip's full record.
func ClipGet(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id missing", http.StatusBadRequest)
			return
		}
		clip, err := registry.Get(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, &clip)
	})
}

// clipRequest is the request body shared by the clip mutation handlers.
type clipRequest struct {
	Source      clipregistry.SourceDescriptor `json:"source"`
	FrameCount  int                           `json:"frameCount"`
	LayerIndex  int                           `json:"layerIndex"`
	EffectIndex int                           `json:"effectIndex"`
	PluginID    string                        `json:"pluginId"`
	Params      map[string]interface{}        `json:"params"`
	Name        string                        `json:"name"`
	Value       interface{}                   `json:"value"`
	Blend       clipregistry.BlendMode        `json:"blend"`
	Opacity     int                           `json:"opacity"`
	Enabled     bool                          `json:"enabled"`
	Order       []int                         `json:"order"`
	Transport   clipregistry.Transport        `json:"transport"`
}

func decodeClipRequest(w http.ResponseWriter, r *http.Request) (clipRequest, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return clipRequest{}, false
	}
	var req clipRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return clipRequest{}, false
	}
	return req, true
}

// ClipRegister creates a new clip and returns its generated id.
func ClipRegister(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		id := clipregistry.Register(registry, req.Source, req.FrameCount)
		writeJSON(w, id)
	})
}

// ClipUnregister destroys a clip record.
func ClipUnregister(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id missing", http.StatusBadRequest)
			return
		}
		if err := registry.Unregister(id); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerAdd appends an overlay layer to a clip.
func LayerAdd(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		index, err := registry.AddLayer(id, req.Source, req.Blend, req.Opacity)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, index)
	})
}

// LayerRemove removes an overlay layer from a clip.
func LayerRemove(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		if err := registry.RemoveLayer(id, req.LayerIndex); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerReorder applies a new layer ordering to a clip.
func LayerReorder(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		if err := registry.ReorderLayers(id, req.Order); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerConfigSet replaces a layer's blend mode, opacity and enabled flag.
func LayerConfigSet(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		err := registry.UpdateLayerConfig(id, req.LayerIndex, req.Blend, req.Opacity, req.Enabled)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerEffectAdd appends an effect to a clip layer's chain.
func LayerEffectAdd(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		if err := registry.AddEffect(id, req.LayerIndex, req.PluginID, req.Params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerEffectRemove removes an effect from a clip layer's chain.
func LayerEffectRemove(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		if err := registry.RemoveEffect(id, req.LayerIndex, req.EffectIndex); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// LayerEffectParameterSet sets one named parameter on a layer effect.
func LayerEffectParameterSet(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		err := registry.UpdateEffectParameter(id, req.LayerIndex, req.EffectIndex, req.Name, req.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// ClipTransportSet replaces a clip's in/out points and reverse flag.
func ClipTransportSet(registry *clipregistry.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		req, ok := decodeClipRequest(w, r)
		if !ok {
			return
		}
		if err := registry.SetTransport(id, req.Transport); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// artnetRequest is the request body shared by the Art-Net handlers.
type artnetRequest struct {
	TargetIP    string              `json:"targetIp"`
	Net         int                 `json:"net"`
	SubUniverse int                 `json:"subUniverse"`
	Universe    int                 `json:"universe"`
	Order       artnet.ChannelOrder `json:"order"`
	Delta       artnet.DeltaConfig  `json:"delta"`
	R           byte                `json:"r"`
	G           byte                `json:"g"`
	B           byte                `json:"b"`
}

func decodeArtNetRequest(w http.ResponseWriter, r *http.Request) (artnetRequest, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return artnetRequest{}, false
	}
	var req artnetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return artnetRequest{}, false
	}
	return req, true
}

// ArtNetTargetSet configures a player's Art-Net destination address.
func ArtNetTargetSet(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeArtNetRequest(w, r)
		if !ok {
			return
		}
		p.SetTargetIP(req.TargetIP)
	})
}

// ArtNetStartUniverseSet configures a player's net/sub-universe base.
func ArtNetStartUniverseSet(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeArtNetRequest(w, r)
		if !ok {
			return
		}
		p.SetStartUniverse(req.Net, req.SubUniverse)
	})
}

// ArtNetChannelOrderSet configures one universe's RGB permutation.
func ArtNetChannelOrderSet(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeArtNetRequest(w, r)
		if !ok {
			return
		}
		p.SetChannelOrder(req.Universe, req.Order)
	})
}

// ArtNetDeltaSet reconfigures a player's delta encoding.
func ArtNetDeltaSet(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeArtNetRequest(w, r)
		if !ok {
			return
		}
		p.SetDelta(req.Delta)
	})
}

// ArtNetBlackout sends an all-zero frame to every configured universe.
func ArtNetBlackout(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		if err := p.Blackout(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// ArtNetTestPattern floods every universe with a solid color.
func ArtNetTestPattern(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		req, ok := decodeArtNetRequest(w, r)
		if !ok {
			return
		}
		if err := p.TestPattern(req.R, req.G, req.B); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// PlayerStatus returns a player's run-state snapshot.
func PlayerStatus(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		writeJSON(w, p.Status())
	})
}

// PlayerInfo returns a player's static configuration: canvas
// dimensions and Art-Net setup.
func PlayerInfo(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		writeJSON(w, p.Info())
	})
}

// PlayerStats returns a player's Art-Net counters for one universe.
func PlayerStats(m *player.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		p, ok := playerByQuery(m, w, r)
		if !ok {
			return
		}
		universe, err := strconv.Atoi(r.URL.Query().Get("universe"))
		if err != nil {
			http.Error(w, "could not parse universe: "+err.Error(), http.StatusBadRequest)
			return
		}
		packets, bytes, drops := p.Stats(universe)
		writeJSON(w, map[string]uint64{
			"packetsSent": packets,
			"bytesSent":   bytes,
			"drops":       drops,
		})
	})
}

// PluginList returns metadata for every plugin of a kind.
func PluginList(registry *plugin.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		kind := plugin.Kind(r.URL.Query().Get("kind"))
		writeJSON(w, registry.List(kind))
	})
}

// PluginMetadata returns a plugin's cached serialized metadata.
func PluginMetadata(registry *plugin.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		data, err := registry.MetadataJSON(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data) //nolint:errcheck
	})
}

// PluginParameters returns a plugin's cached serialized parameter schema.
func PluginParameters(registry *plugin.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		data, err := registry.ParametersJSON(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data) //nolint:errcheck
	})
}

// SequenceList returns every registered sequence config.
func SequenceList(m *sequence.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, m.Configs())
	})
}

// SequenceAdd registers a new sequence.
func SequenceAdd(m *sequence.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		var cfg sequence.Config
		if err := json.Unmarshal(body, &cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := m.Add(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// SequenceDelete unregisters a sequence.
func SequenceDelete(m *sequence.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "id missing", http.StatusBadRequest)
			return
		}
		if err := m.Remove(id); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// SnapshotSave captures the engine's state and persists it.
func SnapshotSave(store *snapshot.Store, engine snapshot.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		if err := store.Save(snapshot.Take(engine)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// SnapshotRestore loads the persisted snapshot and applies it.
func SnapshotRestore(store *snapshot.Store, engine snapshot.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		doc, err := store.Load()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := snapshot.Restore(r.Context(), engine, doc); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// Users returns a censored user list in json format.
func Users(a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, a.UsersList())
	})
}

// UserSet handler to set user details.
func UserSet(a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var user auth.Account
		if err = json.Unmarshal(body, &user); err != nil {
			http.Error(w, "unmarshal error: "+err.Error(), http.StatusBadRequest)
			return
		}

		if err := a.UserSet(user); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
}

// UserDelete handler to delete user.
func UserDelete(a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		name := r.URL.Query().Get("id")
		if name == "" {
			http.Error(w, "id missing", http.StatusBadRequest)
			return
		}

		if err := a.UserDelete(name); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// Status returns system status.
func Status(sys *system.System) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, sys.Status())
	})
}

// TimeZone returns system timeZone.
func TimeZone(timeZone string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, timeZone)
	})
}

// Errors returns the most recent entries of the bounded error-event
// queue.
func Errors(logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		n := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "could not parse limit: "+err.Error(), http.StatusBadRequest)
				return
			}
			n = parsed
		}
		writeJSON(w, logger.Recent(n))
	})
}

// Logs opens a websocket with the live log feed.
func Logs(logger *log.Logger, a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer c.Close()

		feed, cancel := logger.Subscribe()
		defer cancel()

		authHeader := r.Header.Get("Authorization")
		for {
			entry := <-feed

			// Validate auth before each message.
			res := a.ValidateAuth(authHeader)
			if !res.IsValid || !res.User.IsAdmin {
				return
			}

			msg, err := json.Marshal(entry)
			if err != nil {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	})
}
