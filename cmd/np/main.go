package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/adapters/clock"
	"github.com/mikey-austin/nowplaying/internal/adapters/config"
	"github.com/mikey-austin/nowplaying/internal/adapters/idgen"
	"github.com/mikey-austin/nowplaying/internal/adapters/mqtt"
	"github.com/mikey-austin/nowplaying/internal/adapters/mqttbus"
	"github.com/mikey-austin/nowplaying/internal/adapters/output"
	"github.com/mikey-austin/nowplaying/internal/adapters/spotify"
	"github.com/mikey-austin/nowplaying/internal/core"
	"github.com/mikey-austin/nowplaying/internal/history"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// localAnnotation marks commands that never touch the broker.
const localAnnotation = "local"

type app struct {
	service core.Service
	printer output.Printer
	json    bool
	timeout time.Duration
	settle  time.Duration
}

func main() {
	root := &cobra.Command{
		Use:           "np",
		Short:         "Now playing CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		broker      string
		topicBase   string
		identity    string
		historyPath string
		timeout     time.Duration
		settle      time.Duration
		jsonOut     bool
		noColor     bool
		verbose     bool
		tlsCA       string
		tlsCert     string
		tlsKey      string
		userOpt     string
		passOpt     string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", np.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().StringVar(&historyPath, "history", "", "history store path")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "command timeout")
	root.PersistentFlags().DurationVar(&settle, "settle", core.DefaultSettle, "pause between broadcast and queries")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log MQTT traffic to stderr")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if noColor {
			pterm.DisableColor()
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		identity = defaultIdentity(identity, cfg.Identity)
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == np.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}
		if !cmd.Flags().Changed("timeout") && cfg.TimeoutMS > 0 {
			timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
		}
		if !cmd.Flags().Changed("settle") && cfg.SettleMS != nil {
			settle = time.Duration(*cfg.SettleMS) * time.Millisecond
		}
		if historyPath == "" {
			historyPath = cfg.HistoryPath
		}
		if historyPath == "" {
			historyPath = history.DefaultPath
		}

		store, err := history.NewStore(historyPath)
		if err != nil {
			return err
		}
		music := spotify.NewClient(spotify.Config{
			BaseURL:           cfg.Spotify.BaseURL,
			AccessToken:       cfg.Spotify.AccessToken,
			Timeout:           timeout,
			RequestsPerSecond: cfg.Spotify.RequestsPerSecond,
		})

		coreCfg := core.Config{
			Broker:    broker,
			Identity:  identity,
			TopicBase: topicBase,
			Settle:    settle,
			Nodes: core.Nodes{
				PlayCount: cfg.Nodes.PlayCount,
				Tempo:     cfg.Nodes.Tempo,
				TopItems:  cfg.Nodes.TopItems,
			},
		}
		service := core.Service{
			Clock:        clock.Clock{},
			IDGen:        idgen.Generator{},
			NowPlaying:   music,
			Playlists:    music,
			HistoryStore: store,
			Config:       coreCfg,
		}

		if cmd.Annotations[localAnnotation] == "" {
			if broker == "" {
				return &core.CLIError{Code: core.ExitUsage, Msg: "broker is required (set --broker or config)"}
			}
			logger := zap.NewNop()
			if verbose {
				logger, _ = zap.NewDevelopment()
			}
			clientID := fmt.Sprintf("np-%d", time.Now().UnixNano())
			bus, err := mqttbus.Connect(mqttbus.Options{
				BrokerURL: broker,
				ClientID:  clientID,
				Username:  userOpt,
				Password:  passOpt,
				TLSCA:     tlsCA,
				TLSCert:   tlsCert,
				TLSKey:    tlsKey,
				Timeout:   timeout,
				Logger:    logger,
				Debug:     verbose,
			})
			if err != nil {
				return core.WrapError(core.ExitUnavailable, "connect to broker", err)
			}
			client, err := mqtt.NewClient(bus, mqtt.Options{
				ClientID:  clientID,
				TopicBase: topicBase,
				Timeout:   timeout,
			})
			if err != nil {
				return err
			}
			service.Broker = client
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			json:    jsonOut,
			timeout: timeout,
			settle:  settle,
		}))
		return nil
	}

	root.AddCommand(nowCommand())
	root.AddCommand(watchCommand())
	root.AddCommand(announceCommand())
	root.AddCommand(countCommand())
	root.AddCommand(tempoCommand())
	root.AddCommand(topCommand())
	root.AddCommand(historyCommand())
	root.AddCommand(lsCommand())
	root.AddCommand(playlistCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// announceBudget bounds one broadcast plus its two queries.
func (a *app) announceBudget() time.Duration {
	return a.settle + 3*a.timeout
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "np-unknown"
}

func usageError(msg string) error {
	return &core.CLIError{Code: core.ExitUsage, Msg: msg, Err: errors.New("see --help")}
}
