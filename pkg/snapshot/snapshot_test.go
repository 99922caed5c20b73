package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lumenart/pkg/artnet"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/player"
	"lumenart/pkg/plugin"
	_ "lumenart/pkg/plugin/effects"
	_ "lumenart/pkg/plugin/generators"
	"lumenart/pkg/sequence"
)

type noopWriter struct{}

func (noopWriter) SetParam(sequence.Path, float64) error { return nil }

type testEngine struct {
	Engine
	plugins *plugin.Registry
}

func newTestEngine() testEngine {
	clips := clipregistry.New()
	players := player.NewManager()
	sequences := sequence.NewManager(noopWriter{}, nil, time.Millisecond)
	return testEngine{
		Engine:  Engine{Players: players, Clips: clips, Sequences: sequences},
		plugins: plugin.Build(nil),
	}
}

func (e testEngine) addPlayer(id string) *player.Player {
	p := player.New(player.Config{
		ID: id, Width: 64, Height: 64, FPS: 30,
		Registry: e.Clips, Plugins: e.plugins,
	})
	e.Players.Add(p)
	return p
}

func populate(t *testing.T, e testEngine) {
	t.Helper()

	clipID := clipregistry.Register(e.Clips, clipregistry.SourceDescriptor{
		GeneratorID: "builtin.solid",
	}, 0)
	_, err := e.Clips.AddLayer(clipID, clipregistry.SourceDescriptor{
		GeneratorID: "builtin.noise",
	}, clipregistry.BlendAdd, 50)
	require.NoError(t, err)
	require.NoError(t, e.Clips.AddEffect(clipID, 0, "builtin.hue_shift", map[string]interface{}{
		"shift": 90.0,
	}))
	require.NoError(t, e.Clips.AddGlobalEffect(clipID, "artnet", "builtin.gamma", nil))

	p := e.addPlayer("video")
	p.SetPlaylist([]player.PlaylistItem{{ClipID: clipID}})
	require.NoError(t, p.SetBrightness(80))
	require.NoError(t, p.SetHueShift(45))
	p.ApplyArtNetConfig(artnet.ConfigSnapshot{
		TargetIP: "10.0.0.7",
		Delta:    artnet.DeltaConfig{Enabled: true, Threshold: 8, FullFrameInterval: 30},
		Universes: map[int]artnet.UniverseConfig{
			0: {Order: artnet.OrderGRB},
		},
	})

	require.NoError(t, e.Sequences.Add(sequence.Config{
		ID:     "sweep",
		Kind:   sequence.KindLFO,
		Target: "player.video.hue_shift",
		Min:    -180,
		Max:    180,
		LFO:    &sequence.LFOConfig{Waveform: sequence.WaveSine, Frequency: 0.5},
	}))
}

func stripTimestamp(doc Document) Document {
	doc.SavedAt = 0
	return doc
}

func TestRoundTrip(t *testing.T) {
	source := newTestEngine()
	populate(t, source)
	doc := Take(source.Engine)

	target := newTestEngine()
	target.addPlayer("video")
	require.NoError(t, Restore(context.Background(), target.Engine, doc))

	doc2 := Take(target.Engine)
	require.Equal(t, stripTimestamp(doc), stripTimestamp(doc2))
}

func TestRestoreAppliesClipsBeforePlayers(t *testing.T) {
	source := newTestEngine()
	populate(t, source)
	clipID := source.Clips.List()[0]

	// Point the player at the clip so restore must resolve it.
	doc := Take(source.Engine)
	require.Len(t, doc.Players, 1)
	doc.Players[0].ClipID = clipID

	target := newTestEngine()
	target.addPlayer("video")
	require.NoError(t, Restore(context.Background(), target.Engine, doc))

	p, ok := target.Players.Get("video")
	require.True(t, ok)
	require.Equal(t, clipID, p.Status().ClipID)
}

func TestStoreSaveLoad(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)

	source := newTestEngine()
	populate(t, source)
	doc := Take(source.Engine)

	require.NoError(t, store.Save(doc))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, stripTimestamp(doc), stripTimestamp(loaded))
}
