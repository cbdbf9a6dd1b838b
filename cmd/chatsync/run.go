package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/npezzotti/chatsync/internal/api"
	"github.com/npezzotti/chatsync/internal/config"
	"github.com/npezzotti/chatsync/internal/engine"
	"github.com/npezzotti/chatsync/internal/realtime"
	"github.com/npezzotti/chatsync/internal/session"
	"github.com/npezzotti/chatsync/internal/stats"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and keep the conversation list in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
	cmd.Flags().String(config.KeyInspectAddr, "", "serve engine state over HTTP on this address")
	cmd.Flags().StringSlice(config.KeyAllowedOrigins, nil, "origins allowed to call the inspect server")
	cmd.Flags().String(config.KeyUnknownChats, a.v.GetString(config.KeyUnknownChats), "what to do with messages for unknown conversations (fetch or drop)")
	return cmd
}

func (a *app) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ident, err := a.session.Restore()
	if errors.Is(err, session.ErrNoCredential) {
		return errors.New("not logged in, run `chatsync login` first")
	}
	if err != nil {
		return err
	}
	a.log.Info().Str("username", ident.Username).Str("protocol", string(a.cfg.Protocol)).Msg("starting")

	wsURL, err := a.cfg.WebsocketURL()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Publish("chatsync")
	statsUpdater.Run()
	defer statsUpdater.Stop()

	eng := engine.New(
		a.client,
		engine.DialWith(realtime.NewDialer(wsURL, a.cfg.Protocol, a.log)),
		a.session,
		statsUpdater,
		engine.Options{
			Protocol:          a.cfg.Protocol,
			UnknownChatPolicy: engine.UnknownChatPolicy(a.cfg.UnknownChatPolicy),
			DialTimeout:       a.cfg.RequestTimeout,
		},
		a.log,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})

	g.Go(func() error {
		if err := eng.Start(ctx); err != nil {
			return errors.Wrap(err, "open channel")
		}
		return nil
	})

	if a.cfg.InspectAddr != "" {
		srv := api.NewServer(mux, a.log, eng, a.cfg)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	c := &console{eng: eng, out: os.Stdout}
	g.Go(func() error {
		return c.Run(ctx, os.Stdin)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}
	a.log.Info().Msg("shutdown complete")
	return err
}
