package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nickyhof/VersionDB"
	"github.com/nickyhof/VersionDB/config"
	"github.com/spf13/cobra"
)

const (
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// cli holds the state shared by all commands of one invocation.
type cli struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader

	configPath string
	backend    string
	path       string
	user       string

	// open builds the instance. Tests replace it to share one store
	// between invocations.
	open     func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*VersionDB.Instance, error)
	instance *VersionDB.Instance
}

func main() {
	c := &cli{out: os.Stdout, errOut: os.Stderr, in: os.Stdin}
	err := c.rootCommand().Execute()
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
}

func openInstance(ctx context.Context, cfg config.Config, logger *slog.Logger) (*VersionDB.Instance, error) {
	return VersionDB.Open(ctx, cfg, VersionDB.WithLogger(logger))
}

func (c *cli) rootCommand() *cobra.Command {
	if c.open == nil {
		c.open = openInstance
	}

	root := &cobra.Command{
		Use:           "versiondb",
		Short:         "Versioned document repository",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.connect(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.close()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.SetIn(c.in)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&c.backend, "backend", "", "backend type (memory, file, bolt, badger, s3)")
	flags.StringVar(&c.path, "path", "", "backend path")
	flags.StringVar(&c.user, "user", "cli <cli@versiondb.local>", "author recorded on commits")

	root.AddCommand(
		c.putCommand(),
		c.getCommand(),
		c.rmCommand(),
		c.lsCommand(),
		c.logCommand(),
		c.tagCommand(),
		c.perspectiveCommand(),
		c.commentaryCommand(),
		c.archiveCommand(),
		c.exportGitCommand(),
	)
	return root
}

func (c *cli) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if c.backend != "" {
		cfg.Backend.Type = c.backend
	}
	if c.path != "" {
		cfg.Backend.Path = c.path
	}
	return cfg, cfg.Validate()
}

func (c *cli) connect(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(cfg.Log.Handler(c.errOut))
	if cfg.Backend.Type == config.BackendMemory {
		logger.Warn("using the memory backend, nothing is kept after exit")
	}
	c.instance, err = c.open(ctx, cfg, logger)
	return err
}

func (c *cli) close() error {
	if c.instance == nil {
		return nil
	}
	err := c.instance.Close()
	c.instance = nil
	return err
}

func (c *cli) success(format string, args ...any) {
	fmt.Fprintf(c.out, "%s✓ %s%s\n", SuccessColor, fmt.Sprintf(format, args...), ResetColor)
}
