package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/npezzotti/chatsync/internal/config"
	"github.com/npezzotti/chatsync/internal/rest"
	"github.com/npezzotti/chatsync/internal/session"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	log     zerolog.Logger
	session *session.Session
	client  *rest.Client
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Keep a local view of your chats in sync with the server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String(config.KeyServer, a.v.GetString(config.KeyServer), "chat server base url")
	flags.String(config.KeyProtocol, a.v.GetString(config.KeyProtocol), "server dialect (chat or direct)")
	flags.String(config.KeyTokenFile, a.v.GetString(config.KeyTokenFile), "file the credential is persisted in")
	flags.String(config.KeyLogLevel, a.v.GetString(config.KeyLogLevel), "log level")
	flags.Duration(config.KeyRequestTimeout, a.v.GetDuration(config.KeyRequestTimeout), "timeout for REST requests")

	root.AddCommand(
		a.loginCmd(),
		a.registerCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.runCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	a.session = session.New(session.NewFileTokenStore(cfg.TokenFile), a.log)
	a.client = rest.NewClient(cfg.APIBaseURL(), cfg.Protocol, a.session, cfg.RequestTimeout, a.log)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Stderr.WriteString("chatsync: " + err.Error() + "\n")
		os.Exit(1)
	}
}
