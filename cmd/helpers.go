package cmd

import (
	"time"

	"github.com/roundtablehq/roundtable/pkg/config"
	"github.com/roundtablehq/roundtable/pkg/exec"
	"github.com/roundtablehq/roundtable/pkg/groupchat"
	"github.com/roundtablehq/roundtable/pkg/remote"
	"github.com/roundtablehq/roundtable/pkg/sessions"
	"github.com/roundtablehq/roundtable/pkg/storage"
)

// app bundles the composed conversation engine for one command invocation.
type app struct {
	cfg     *config.Config
	store   *storage.FileStore
	runtime *groupchat.RuntimeStore
	router  *groupchat.Router
}

// newApp loads the user configuration and wires the engine together: file
// store, session directory, spawner, router, driver and recovery controller.
func newApp() (*app, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	return newAppWithConfig(cfg)
}

func newAppWithConfig(cfg *config.Config) (*app, error) {
	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	runtime := groupchat.NewRuntimeStore()
	spawner := groupchat.NewSpawner(&exec.RealCommandExecutor{}, remote.NewWrapper(cfg.Hosts), cfg)
	recovery := groupchat.NewRecoveryController(store, runtime, spawner, cfg.HistoryWindow)

	router := groupchat.NewRouter(groupchat.RouterOptions{
		Store:         store,
		Runtime:       runtime,
		Directory:     sessions.NewFileDirectory(cfg.SessionsFile),
		Dispatcher:    spawner,
		Recovery:      recovery,
		HistoryWindow: cfg.HistoryWindow,
		RoundTimeout:  time.Duration(cfg.RoundTimeout),
	})
	spawner.SetSink(groupchat.NewDriver(router))

	return &app{cfg: cfg, store: store, runtime: runtime, router: router}, nil
}
