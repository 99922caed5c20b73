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

// Package lumenart assembles the rendering engine: configuration,
// logging, the plugin and clip registries, the named players, the
// sequence ticker, snapshot persistence and the HTTP control surface.
// Initialization is ordered plugins -> registries -> players -> web;
// teardown runs in reverse.
package lumenart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"lumenart/pkg/artnet"
	"lumenart/pkg/clipregistry"
	"lumenart/pkg/config"
	"lumenart/pkg/log"
	"lumenart/pkg/player"
	"lumenart/pkg/plugin"
	_ "lumenart/pkg/plugin/effects"
	_ "lumenart/pkg/plugin/generators"
	_ "lumenart/pkg/plugin/transitions"
	"lumenart/pkg/preview"
	"lumenart/pkg/sequence"
	"lumenart/pkg/snapshot"
	"lumenart/pkg/system"
	"lumenart/pkg/web"
	"lumenart/pkg/web/auth"
)

const shutdownTimeout = 5 * time.Second

// Run starts the engine and blocks until a fatal error or a
// SIGINT/SIGTERM.
func Run(envPath string) error {
	app, err := newApp(envPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	fatal := make(chan error, 1)
	go func() { fatal <- app.run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-fatal:
	case sig := <-stop:
		app.logger.Info().Src("app").Msgf("received %v, stopping", sig)
		err = nil
	}

	app.playerManager.Shutdown(shutdownTimeout)
	app.logger.Info().Src("app").Msg("players stopped")

	if saveErr := app.snapshotStore.Save(snapshot.Take(app.engine())); saveErr != nil {
		app.logger.Error().Src("app").Msgf("could not save snapshot: %v", saveErr)
	}
	app.snapshotStore.Close() //nolint:errcheck

	cancel()
	app.wg.Wait()

	ctx2, cancel2 := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel2()

	if err := app.server.Shutdown(ctx2); err != nil {
		return err
	}
	return err
}

type app struct {
	logger        *log.Logger
	env           *config.Env
	plugins       *plugin.Registry
	clips         *clipregistry.Registry
	playerManager *player.Manager
	sequences     *sequence.Manager
	snapshotStore *snapshot.Store
	system        *system.System
	server        *http.Server
	wg            *sync.WaitGroup
}

func (a *app) engine() snapshot.Engine {
	return snapshot.Engine{
		Players:   a.playerManager,
		Clips:     a.clips,
		Sequences: a.sequences,
	}
}

func newApp(envPath string) (*app, error) { //nolint:funlen
	wg := &sync.WaitGroup{}
	logger := log.NewLogger(1000, wg)

	env, err := config.LoadEnv(envPath)
	if err != nil {
		return nil, fmt.Errorf("could not get environment config: %w", err)
	}

	plugins := plugin.Build(func(id string, err error) {
		logger.Warn().Src("plugin").Msgf("could not register %v: %v", id, err)
	})

	clips := clipregistry.New()
	playerManager := player.NewManager()

	previewStreamer := preview.New(
		env.Preview.Quality, env.Preview.CapFPS, env.Preview.BasePerClient)

	delta := artnet.DeltaConfig{
		Enabled:           env.ArtNet.DeltaEnabled,
		Threshold:         env.ArtNet.DeltaThreshold,
		FullFrameInterval: env.ArtNet.FullFrameEvery,
	}
	for _, id := range []string{"video", "artnet"} {
		playerManager.Add(player.New(player.Config{
			ID:           id,
			Width:        env.CanvasWidth,
			Height:       env.CanvasHeight,
			Registry:     clips,
			Plugins:      plugins,
			Logger:       logger,
			Preview:      previewStreamer,
			ArtNetTarget: env.ArtNet.TargetIP,
			ArtNetDelta:  delta,
			FFmpegBin:    env.FrameSources.FFmpegBin,
		}))
	}

	sequences := sequence.NewManager(
		&paramWriter{players: playerManager, clips: clips},
		logger,
		0,
	)

	snapshotStore, err := snapshot.NewStore(env.SnapshotPath)
	if err != nil {
		return nil, err
	}

	usersConfigPath := filepath.Join(env.ConfigDir, "users.json")
	a, err := auth.NewBasicAuthenticator(usersConfigPath, logger)
	if err != nil {
		snapshotStore.Close() //nolint:errcheck
		return nil, err
	}

	sys := system.New(logger)

	timeZone, err := system.TimeZone()
	if err != nil {
		snapshotStore.Close() //nolint:errcheck
		return nil, err
	}

	application := &app{
		logger:        logger,
		env:           env,
		plugins:       plugins,
		clips:         clips,
		playerManager: playerManager,
		sequences:     sequences,
		snapshotStore: snapshotStore,
		system:        sys,
		wg:            wg,
	}

	mux := http.NewServeMux()

	mux.Handle("/api/player/list", a.User(web.PlayerList(playerManager)))
	mux.Handle("/api/player/play", a.User(web.PlayerPlay(playerManager)))
	mux.Handle("/api/player/pause", a.User(web.PlayerPause(playerManager)))
	mux.Handle("/api/player/resume", a.User(web.PlayerResume(playerManager)))
	mux.Handle("/api/player/stop", a.User(web.PlayerStop(playerManager)))
	mux.Handle("/api/player/restart", a.User(web.PlayerRestart(playerManager)))
	mux.Handle("/api/player/params", a.User(a.CSRF(web.PlayerParamsSet(playerManager))))
	mux.Handle("/api/player/clip", a.User(a.CSRF(web.PlayerLoadClip(playerManager))))
	mux.Handle("/api/player/playlist", a.User(a.CSRF(web.PlayerSetPlaylist(playerManager))))
	mux.Handle("/api/player/seek", a.User(a.CSRF(web.PlayerSeek(playerManager))))
	mux.Handle("/api/player/status", a.User(web.PlayerStatus(playerManager)))
	mux.Handle("/api/player/info", a.User(web.PlayerInfo(playerManager)))
	mux.Handle("/api/player/stats", a.User(web.PlayerStats(playerManager)))

	mux.Handle("/api/effect/add", a.User(a.CSRF(web.EffectAdd(playerManager))))
	mux.Handle("/api/effect/remove", a.User(a.CSRF(web.EffectRemove(playerManager))))
	mux.Handle("/api/effect/param", a.User(a.CSRF(web.EffectUpdateParameter(playerManager))))
	mux.Handle("/api/effect/clear", a.User(a.CSRF(web.EffectClearChain(playerManager))))

	mux.Handle("/api/clip/list", a.User(web.ClipList(clips)))
	mux.Handle("/api/clip", a.User(web.ClipGet(clips)))
	mux.Handle("/api/clip/register", a.Admin(a.CSRF(web.ClipRegister(clips))))
	mux.Handle("/api/clip/unregister", a.Admin(a.CSRF(web.ClipUnregister(clips))))
	mux.Handle("/api/clip/transport", a.User(a.CSRF(web.ClipTransportSet(clips))))
	mux.Handle("/api/layer/add", a.User(a.CSRF(web.LayerAdd(clips))))
	mux.Handle("/api/layer/remove", a.User(a.CSRF(web.LayerRemove(clips))))
	mux.Handle("/api/layer/reorder", a.User(a.CSRF(web.LayerReorder(clips))))
	mux.Handle("/api/layer/config", a.User(a.CSRF(web.LayerConfigSet(clips))))
	mux.Handle("/api/layer/effect/add", a.User(a.CSRF(web.LayerEffectAdd(clips))))
	mux.Handle("/api/layer/effect/remove", a.User(a.CSRF(web.LayerEffectRemove(clips))))
	mux.Handle("/api/layer/effect/param", a.User(a.CSRF(web.LayerEffectParameterSet(clips))))

	mux.Handle("/api/artnet/target", a.User(a.CSRF(web.ArtNetTargetSet(playerManager))))
	mux.Handle("/api/artnet/startUniverse", a.User(a.CSRF(web.ArtNetStartUniverseSet(playerManager))))
	mux.Handle("/api/artnet/channelOrder", a.User(a.CSRF(web.ArtNetChannelOrderSet(playerManager))))
	mux.Handle("/api/artnet/delta", a.User(a.CSRF(web.ArtNetDeltaSet(playerManager))))
	mux.Handle("/api/artnet/blackout", a.User(a.CSRF(web.ArtNetBlackout(playerManager))))
	mux.Handle("/api/artnet/testPattern", a.User(a.CSRF(web.ArtNetTestPattern(playerManager))))

	mux.Handle("/api/plugin/list", a.User(web.PluginList(plugins)))
	mux.Handle("/api/plugin/metadata", a.User(web.PluginMetadata(plugins)))
	mux.Handle("/api/plugin/parameters", a.User(web.PluginParameters(plugins)))

	mux.Handle("/api/sequence/list", a.User(web.SequenceList(sequences)))
	mux.Handle("/api/sequence/add", a.User(a.CSRF(web.SequenceAdd(sequences))))
	mux.Handle("/api/sequence", a.User(a.CSRF(web.SequenceDelete(sequences))))

	mux.Handle("/api/snapshot/save", a.Admin(a.CSRF(web.SnapshotSave(snapshotStore, application.engine()))))
	mux.Handle("/api/snapshot/restore", a.Admin(a.CSRF(web.SnapshotRestore(snapshotStore, application.engine()))))

	mux.Handle("/api/users", a.Admin(web.Users(a)))
	mux.Handle("/api/user/set", a.Admin(a.CSRF(web.UserSet(a))))
	mux.Handle("/api/user/delete", a.Admin(a.CSRF(web.UserDelete(a))))
	mux.Handle("/api/user/myToken", a.Admin(a.MyToken()))

	mux.Handle("/api/system/status", a.User(web.Status(sys)))
	mux.Handle("/api/system/timeZone", a.User(web.TimeZone(timeZone)))
	mux.Handle("/api/errors", a.Admin(web.Errors(logger)))
	mux.Handle("/api/logs", a.Admin(web.Logs(logger, a)))

	mux.Handle("/api/preview/video", a.User(previewStreamer.Handler("video")))
	mux.Handle("/api/preview/artnet", a.User(previewStreamer.Handler("artnet")))

	application.server = &http.Server{Addr: ":" + env.Port, Handler: mux}

	return application, nil
}

func (a *app) run(ctx context.Context) error {
	a.logger.Start(ctx)
	go a.logger.LogToStdout(ctx)
	time.Sleep(10 * time.Millisecond)
	a.logger.Info().Src("app").Msg("starting..")

	if err := a.env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("could not prepare environment: %w", err)
	}

	// Restore the previous session's state if a snapshot exists.
	doc, err := a.snapshotStore.Load()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
	case err != nil:
		a.logger.Warn().Src("app").Msgf("could not load snapshot: %v", err)
	default:
		if err := snapshot.Restore(ctx, a.engine(), doc); err != nil {
			a.logger.Error().Src("app").Msgf("could not restore snapshot: %v", err)
		}
	}

	go a.sequences.TickLoop(ctx)
	go a.system.StatusLoop(ctx)

	return a.server.ListenAndServe()
}
