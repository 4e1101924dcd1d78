package cli

import (
	"fmt"

	"github.com/openlift/openlift/internal/config"
	"github.com/openlift/openlift/internal/nip101e"
	"github.com/openlift/openlift/internal/publish"
	"github.com/openlift/openlift/internal/record"
	"github.com/openlift/openlift/internal/relay"
	"github.com/openlift/openlift/internal/resolve"
	"github.com/openlift/openlift/internal/store"
)

// App bundles the wired component graph behind a command.
//
// Construction order matters: config first, then the store, then the
// relay pool over the store, then the resolvers over the pool. Close
// tears down in reverse.
type App struct {
	Config    config.Config
	Store     *store.Store
	Pool      *relay.Pool
	Parser    *nip101e.Parser
	Engine    *resolve.Engine
	Generator *record.Generator
	Signer    publish.Signer
	Publisher *publish.Publisher
}

// openApp loads config and wires the full component graph.
func openApp(opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "open event store", Err: err}
	}

	pool := relay.NewPool(st, cfg.Relays)
	parser := nip101e.NewParser()

	var signer publish.Signer
	if cfg.SecretKey != "" {
		signer, err = publish.NewLocalSigner(cfg.SecretKey)
		if err != nil {
			st.Close()
			return nil, &ExitError{Code: ExitCommandError, Message: "load secret key", Err: err}
		}
	}

	return &App{
		Config:    cfg,
		Store:     st,
		Pool:      pool,
		Parser:    parser,
		Engine:    resolve.New(pool, parser),
		Generator: record.NewGenerator(cfg.PrimaryRelay()),
		Signer:    signer,
		Publisher: publish.New(signer, pool),
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	a.Pool.Close()
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
