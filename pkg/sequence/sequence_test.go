package sequence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLFOWaveforms(t *testing.T) {
	cases := []struct {
		name     string
		waveform Waveform
		at       time.Duration
		want     float64
	}{
		{"sine starts at midpoint", WaveSine, 0, 0.5},
		{"sine peak at quarter cycle", WaveSine, 250 * time.Millisecond, 1},
		{"square first half high", WaveSquare, 100 * time.Millisecond, 1},
		{"square second half low", WaveSquare, 600 * time.Millisecond, 0},
		{"triangle rises to midpoint", WaveTriangle, 250 * time.Millisecond, 0.5},
		{"triangle peak", WaveTriangle, 500 * time.Millisecond, 1},
		{"saw ramps", WaveSaw, 250 * time.Millisecond, 0.25},
		{"saw wraps", WaveSaw, 1250 * time.Millisecond, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lfo, err := NewLFO(LFOConfig{Waveform: tc.waveform, Frequency: 1})
			require.NoError(t, err)
			require.InDelta(t, tc.want, lfo.Value(tc.at), 0.0001)
		})
	}
}

func TestLFORandomHold(t *testing.T) {
	lfo, err := NewLFO(LFOConfig{Waveform: WaveRandomHold, Frequency: 1})
	require.NoError(t, err)

	// Constant within a cycle, new level on the next one.
	first := lfo.Value(100 * time.Millisecond)
	require.Equal(t, first, lfo.Value(900*time.Millisecond))
	second := lfo.Value(1100 * time.Millisecond)
	require.Equal(t, second, lfo.Value(1900*time.Millisecond))
}

func TestLFOValidation(t *testing.T) {
	_, err := NewLFO(LFOConfig{Waveform: "sawtooth", Frequency: 1})
	require.Error(t, err)

	_, err = NewLFO(LFOConfig{Waveform: WaveSine, Frequency: 0})
	require.Error(t, err)
}

func TestTimelineInterpolation(t *testing.T) {
	cfg := TimelineConfig{
		Keyframes: []Keyframe{
			{Time: 0, Value: 0},
			{Time: 1, Value: 1},
			{Time: 2, Value: 0.5},
		},
		Interpolation: InterpLinear,
		Loop:          LoopOnce,
	}
	tl, err := NewTimeline(cfg)
	require.NoError(t, err)

	require.InDelta(t, 0, tl.Value(0), 0.0001)
	require.InDelta(t, 0.5, tl.Value(500*time.Millisecond), 0.0001)
	require.InDelta(t, 1, tl.Value(time.Second), 0.0001)
	require.InDelta(t, 0.75, tl.Value(1500*time.Millisecond), 0.0001)

	// Past the end once-mode holds the final value.
	require.InDelta(t, 0.5, tl.Value(5*time.Second), 0.0001)
}

func TestTimelineStep(t *testing.T) {
	tl, err := NewTimeline(TimelineConfig{
		Keyframes: []Keyframe{
			{Time: 0, Value: 0.2},
			{Time: 1, Value: 0.8},
		},
		Interpolation: InterpStep,
		Loop:          LoopOnce,
	})
	require.NoError(t, err)

	require.InDelta(t, 0.2, tl.Value(999*time.Millisecond), 0.0001)
	require.InDelta(t, 0.8, tl.Value(time.Second), 0.0001)
}

func TestTimelineLoopModes(t *testing.T) {
	cfg := TimelineConfig{
		Keyframes: []Keyframe{
			{Time: 0, Value: 0},
			{Time: 1, Value: 1},
		},
		Interpolation: InterpLinear,
	}

	cfg.Loop = LoopRepeat
	looped, err := NewTimeline(cfg)
	require.NoError(t, err)
	require.InDelta(t, 0.25, looped.Value(1250*time.Millisecond), 0.0001)

	cfg.Loop = LoopPingPong
	pingpong, err := NewTimeline(cfg)
	require.NoError(t, err)
	require.InDelta(t, 0.75, pingpong.Value(1250*time.Millisecond), 0.0001)
}

func TestTimelineValidation(t *testing.T) {
	_, err := NewTimeline(TimelineConfig{Interpolation: InterpLinear, Loop: LoopOnce})
	require.Error(t, err)

	_, err = NewTimeline(TimelineConfig{
		Keyframes:     []Keyframe{{Time: 0, Value: 0}},
		Interpolation: "cubic",
		Loop:          LoopOnce,
	})
	require.Error(t, err)
}

func TestAudioSmoothing(t *testing.T) {
	analyzer := NewAnalyzer()
	src, err := NewAudioSource(AudioConfig{Feature: FeatureRMS, Attack: 0.5, Release: 0.1})
	require.NoError(t, err)
	src.SetAnalyzer(analyzer)

	analyzer.Update(AudioFeatures{RMS: 1})
	require.InDelta(t, 0.5, src.Value(0), 0.0001)
	require.InDelta(t, 0.75, src.Value(0), 0.0001)

	// Falling input decays at the slower release rate.
	analyzer.Update(AudioFeatures{RMS: 0})
	require.InDelta(t, 0.675, src.Value(0), 0.0001)
}

func TestAudioBeatFeature(t *testing.T) {
	analyzer := NewAnalyzer()
	src, err := NewAudioSource(AudioConfig{Feature: FeatureBeat, Attack: 1, Release: 1})
	require.NoError(t, err)
	src.SetAnalyzer(analyzer)

	require.InDelta(t, 0, src.Value(0), 0.0001)
	analyzer.Update(AudioFeatures{Beat: true})
	require.InDelta(t, 1, src.Value(0), 0.0001)
}

func TestParsePath(t *testing.T) {
	cases := []struct {
		input string
		want  Path
	}{
		{
			"player.video.brightness",
			Path{{"player", -1}, {"video", -1}, {"brightness", -1}},
		},
		{
			"player.video.clip.effects[0].hue_shift",
			Path{{"player", -1}, {"video", -1}, {"clip", -1}, {"effects", 0}, {"hue_shift", -1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParsePath(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.input, got.String())
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, input := range []string{"", "a..b", "effects[", "effects[x]", "effects[-1]", "[0]"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			require.Error(t, err)
		})
	}
}

type mapWriter struct {
	values map[string]float64
	err    error
}

func (w *mapWriter) SetParam(path Path, value float64) error {
	if w.err != nil {
		return w.err
	}
	w.values[path.String()] = value
	return nil
}

func TestManagerTickWritesMappedValue(t *testing.T) {
	writer := &mapWriter{values: map[string]float64{}}
	m := NewManager(writer, nil, time.Millisecond)

	err := m.Add(Config{
		ID:     "hue-sweep",
		Kind:   KindLFO,
		Target: "player.video.hue_shift",
		Min:    -180,
		Max:    180,
		LFO:    &LFOConfig{Waveform: WaveSaw, Frequency: 1},
	})
	require.NoError(t, err)

	m.Tick(500 * time.Millisecond)
	require.InDelta(t, 0, writer.values["player.video.hue_shift"], 0.0001)

	m.Tick(750 * time.Millisecond)
	require.InDelta(t, 90, writer.values["player.video.hue_shift"], 0.0001)
}

func TestManagerFailsSequenceNotEngine(t *testing.T) {
	writer := &mapWriter{values: map[string]float64{}, err: errors.New("path gone")}
	m := NewManager(writer, nil, time.Millisecond)

	require.NoError(t, m.Add(Config{
		ID:     "doomed",
		Kind:   KindLFO,
		Target: "player.video.brightness",
		Min:    0,
		Max:    1,
		LFO:    &LFOConfig{Waveform: WaveSine, Frequency: 1},
	}))

	m.Tick(0)

	seq, err := m.Get("doomed")
	require.NoError(t, err)
	require.Equal(t, StateFailed, seq.State())
	require.Equal(t, "path gone", seq.FailReason())

	// A failed sequence stops writing but the manager keeps ticking.
	writer.err = nil
	m.Tick(time.Second)
	require.Empty(t, writer.values)
}

func TestManagerAddRemove(t *testing.T) {
	m := NewManager(&mapWriter{values: map[string]float64{}}, nil, time.Millisecond)

	cfg := Config{
		ID:     "a",
		Kind:   KindLFO,
		Target: "player.video.brightness",
		Max:    1,
		LFO:    &LFOConfig{Waveform: WaveSine, Frequency: 1},
	}
	require.NoError(t, m.Add(cfg))
	require.ErrorIs(t, m.Add(cfg), ErrSequenceExist)

	require.NoError(t, m.Remove("a"))
	require.ErrorIs(t, m.Remove("a"), ErrSequenceNotExist)
}

func TestManagerRestoreRoundTrip(t *testing.T) {
	m := NewManager(&mapWriter{values: map[string]float64{}}, nil, time.Millisecond)

	configs := []Config{
		{
			ID: "lfo", Kind: KindLFO, Target: "player.video.brightness", Max: 1,
			LFO: &LFOConfig{Waveform: WaveTriangle, Frequency: 2},
		},
		{
			ID: "tl", Kind: KindTimeline, Target: "player.artnet.brightness", Max: 1,
			Timeline: &TimelineConfig{
				Keyframes:     []Keyframe{{Time: 0, Value: 0}, {Time: 1, Value: 1}},
				Interpolation: InterpLinear,
				Loop:          LoopRepeat,
			},
		},
	}
	require.NoError(t, m.Restore(configs))
	require.ElementsMatch(t, configs, m.Configs())
}
