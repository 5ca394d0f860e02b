package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/authnotify/internal/api"
	"github.com/nhle/authnotify/internal/feed"
	"github.com/nhle/authnotify/internal/logging"
	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/push"
	"github.com/nhle/authnotify/internal/session"
	"github.com/nhle/authnotify/internal/store"
	appsync "github.com/nhle/authnotify/internal/sync"
)

// env holds everything a command needs, opened from the config file.
type env struct {
	cfgPath  string
	cfg      *model.AppConfig
	log      zerolog.Logger
	db       *store.SQLiteStore
	sessions session.Store
	api      *api.Client
	closers  []io.Closer
}

// openEnv loads config and opens the database and session store. Logs go
// to stderr unless toFile is set, in which case they go to the configured
// log file so the terminal stays free.
func openEnv(cmd *cobra.Command, toFile bool) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = model.DefaultConfigPath()
	}

	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	e := &env{cfgPath: path, cfg: cfg}

	if toFile {
		logPath := cfg.Log.File
		if logPath == "" {
			logPath = filepath.Join(filepath.Dir(cfg.Storage.Path), "authnotify.log")
		}
		log, closer, err := logging.NewFile(cfg.Log, logPath)
		if err != nil {
			return nil, err
		}
		e.log = log
		e.closers = append(e.closers, closer)
	} else {
		log, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return nil, err
		}
		e.log = log
	}

	db, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, db)

	sessions, err := session.Open(cfg.Session, db, cfg.Storage.Path)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.sessions = sessions
	e.api = api.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout())

	return e, nil
}

// Close releases the database and log file in reverse order.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// feed loads the durable notification feed.
func (e *env) feed(ctx context.Context) *feed.Aggregator {
	return feed.New(ctx, store.NewNotificationStore(e.db), e.log)
}

// token returns the stored session token, or a user-facing error.
func (e *env) token(ctx context.Context) (string, error) {
	tok, err := e.sessions.Token(ctx)
	if errors.Is(err, session.ErrNoToken) {
		return "", errors.New("not signed in; run authnotify login")
	}
	return tok, err
}

// pushClient builds the push-channel client over gorilla/websocket.
func (e *env) pushClient() *push.Client {
	return push.New(e.cfg.Push, e.cfg.API.BaseURL, push.NewWebsocketDialer(), e.sessions, e.log)
}

// supervisor wires client and sub to the session store.
func (e *env) supervisor(client *push.Client, sub push.Subscriber) *appsync.Supervisor {
	return appsync.New(client, sub, e.sessions, e.api, e.cfg.Supervisor, e.log)
}

// watchSession refreshes sup (and reloads agg, when given) whenever another
// process changes the database, e.g. a login from a second terminal.
func (e *env) watchSession(ctx context.Context, sup *appsync.Supervisor, agg *feed.Aggregator) {
	w := session.NewWatcher(e.cfg.Storage.Path, e.log)
	go func() {
		err := w.Run(ctx, func() {
			sup.Refresh(ctx)
			if agg != nil {
				agg.Reload(ctx)
			}
		})
		if err != nil {
			e.log.Warn().Err(err).Msg("session watcher stopped")
		}
	}()
}
