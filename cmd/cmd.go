package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/post-feed-service/config"
	"go.uber.org/fx"
)

const (
	ServiceName      = "post-feed-service"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time post feed: queue producer, persisting consumer with streaming fan-out, and feed client",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			producerCmd(),
			clientCmd(),
			versionCmd(),
		},
	}

	return app.Run(os.Args)
}

// Configuration flags are parsed by config.LoadConfig, so commands hand
// their raw arguments over instead of declaring flags of their own.
func serverCmd() *cli.Command {
	return &cli.Command{
		Name:            "server",
		Aliases:         []string{"s"},
		Usage:           "Run the consumer, hub and streaming endpoints",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			return runApp(c.Context, NewApp(cfg))
		},
	}
}

func producerCmd() *cli.Command {
	return &cli.Command{
		Name:            "producer",
		Aliases:         []string{"p"},
		Usage:           "Publish a synthetic post to the queue at a fixed interval",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			return runApp(c.Context, NewProducerApp(cfg))
		},
	}
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:            "client",
		Aliases:         []string{"c"},
		Usage:           "Load the feed and follow the live stream",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := ProvideLogger(cfg)
			if cfg.Client.TUI {
				// The terminal belongs to the view.
				logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			}
			return RunClient(ctx, cfg, logger)
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			_, err := c.App.Writer.Write([]byte(
				"version: " + version + "\ncommit: " + commit + "\ncommit date: " + commitDate +
					"\nbranch: " + branch + "\nbuilt: " + buildTimestamp + "\n"))
			return err
		},
	}
}

func runApp(ctx context.Context, app *fx.App) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	return app.Stop(stopCtx)
}
