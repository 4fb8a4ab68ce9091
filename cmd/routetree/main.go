// Command routetree generates relay files and a net/http route table from
// the api/ directory of a Go project.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/broady/routetree/internal/build"
	"github.com/broady/routetree/internal/clean"
	"github.com/broady/routetree/internal/config"
	"github.com/broady/routetree/internal/watch"
	"github.com/broady/routetree/internal/writer"
)

type CLI struct {
	Version kong.VersionFlag `help:"Print version information and quit." short:"v"`
	Watch   bool             `help:"Regenerate when files below api/ change." short:"w"`
	Project string           `help:"go.mod file, or a directory inside the module, to use." short:"p" type:"path"`
	Dir     string           `help:"Project directory containing api/." default:"." type:"existingdir"`
	Verbose bool             `help:"Log every generated route and file."`
}

func (c *CLI) Run() error {
	logger := c.logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(c.Dir)
	if err != nil {
		return err
	}
	base := writer.New(writer.Options{
		LintFix: cfg.LintFix,
		Format:  cfg.Format,
		Logger:  logger,
	})
	var w writer.FileWriter = base
	if c.Watch {
		cached, err := writer.NewCached(base, writer.DefaultCacheSize)
		if err != nil {
			return err
		}
		w = cached
	}

	g, err := build.New(build.Options{
		Dir:     c.Dir,
		Project: c.Project,
		Writer:  w,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := g.Run(ctx); err != nil {
		return err
	}
	if !c.Watch {
		return nil
	}
	return c.watch(ctx, g, logger)
}

// watch regenerates after every relevant change. Passes run one at a time;
// a pass that has been superseded by a newer event only cleans.
func (c *CLI) watch(ctx context.Context, g *build.Generator, logger *slog.Logger) error {
	watcher, err := watch.New(g.APIDir(), logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	s := watch.NewSerializer()
	defer s.Close()

	logger.Info("watching for changes", "dir", g.APIDir())
	err = watcher.Run(ctx, func(ev fsnotify.Event) {
		err := s.Schedule(func(latest bool) {
			if err := clean.OnEvent(ev); err != nil {
				logger.Warn("cleaning stale route failed", "path", ev.Name, "error", err)
			}
			if !latest {
				return
			}
			if err := g.Server(ctx); err != nil {
				logger.Error("generation failed", "error", err)
			}
		})
		if err != nil {
			logger.Debug("dropping event", "path", ev.Name, "error", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *CLI) logger() *slog.Logger {
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: c.Watch,
		Prefix:          "routetree",
	})
	if c.Verbose {
		handler.SetLevel(log.DebugLevel)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("routetree"),
		kong.Description("Generate a net/http route table from an api/ directory tree."),
		kong.UsageOnError(),
		kong.Vars{"version": Version()},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
