package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gridedit/internal"
	"github.com/starford/gridedit/internal/gridservice"
	"github.com/starford/gridedit/internal/models"
	pkgconfig "github.com/starford/gridedit/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	if cmd.Root().IsSet("config") {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// oneShot wraps a grid operation as a command action.
func oneShot(op func(cmd *cli.Command) internal.OneShot) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		return internal.RunOnce(ctx, os.Stdout, op(cmd), opts...)
	}
}

var pathFlag = &cli.StringFlag{
	Name:     "path",
	Aliases:  []string{"p"},
	Usage:    "Content-relative node path, e.g. tab1/row2/cell3",
	Required: true,
}

func weightFlag(usage string, required bool) *cli.IntFlag {
	return &cli.IntFlag{
		Name:     "weight",
		Aliases:  []string{"w"},
		Usage:    usage,
		Required: required,
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, SSE stream and content watcher",
			Action: serve,
		},
		{
			Name:   "mcp",
			Usage:  "Serve the grid tools over MCP on stdin/stdout",
			Action: serveMCP,
		},
		{
			Name:  "insert-cell",
			Usage: "Insert a blank cell after the given weight and renumber the row",
			Flags: []cli.Flag{pathFlag, weightFlag("Weight to insert after (0 inserts at the front)", true)},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.InsertCell(ctx, cmd.String("path"), int(cmd.Int("weight")))
				}
			}),
		},
		{
			Name:  "delete-cell",
			Usage: "Delete a cell and close the gap",
			Flags: []cli.Flag{pathFlag, weightFlag("Current weight of the cell", true)},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.DeleteCell(ctx, cmd.String("path"), int(cmd.Int("weight")))
				}
			}),
		},
		{
			Name:  "insert-row",
			Usage: "Insert a row of blank cells after the given row",
			Flags: []cli.Flag{pathFlag, weightFlag("Weight of the anchor row", false)},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.InsertRow(ctx, cmd.String("path"), int(cmd.Int("weight")))
				}
			}),
		},
		{
			Name:  "delete-row",
			Usage: "Delete a row with all its cells",
			Flags: []cli.Flag{pathFlag},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.DeleteRow(ctx, cmd.String("path"))
				}
			}),
		},
		{
			Name:  "normalize",
			Usage: "Rebuild names, weights and headings of a row or tab from disk",
			Flags: []cli.Flag{
				pathFlag,
				&cli.StringFlag{
					Name:  "kind",
					Usage: "Group kind: cell (path is a row) or row (path is a tab)",
					Value: string(models.KindCell),
				},
			},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.Normalize(ctx, cmd.String("path"), models.Kind(cmd.String("kind")))
				}
			}),
		},
		{
			Name:  "tab",
			Usage: "Print the rows and cells of a tab",
			Flags: []cli.Flag{pathFlag},
			Action: oneShot(func(cmd *cli.Command) internal.OneShot {
				return func(ctx context.Context, svc *gridservice.Service) (any, error) {
					return svc.Tab(ctx, cmd.String("path"))
				}
			}),
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:     "gridedit",
		Usage:    "Grid editor backend: renumbers cell and row directories of a Markdown content tree",
		Action:   serve,
		Commands: commands(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
