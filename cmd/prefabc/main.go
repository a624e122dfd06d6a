// Command prefabc cooks prefabs and converts them between encodings.
//
//	prefabc [-config prefab.yaml] cook [prefab-uuid ...]
//	prefabc [-config prefab.yaml] convert [-to text|compact] <in> <out>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/zeusync/prefab/internal/core/codec"
	"github.com/zeusync/prefab/internal/core/cook"
	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/prefab"
	"github.com/zeusync/prefab/internal/injector"
	"github.com/zeusync/prefab/pkg/concurrent"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] cook [prefab-uuid ...]\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "       %s [-config file] convert [-to text|compact] <in> <out>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	app, err := injector.InitializeApp(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error starting prefabc:", err)
		os.Exit(1)
	}
	defer func() { _ = app.Logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := flag.Args()
	switch args[0] {
	case "cook":
		err = runCook(ctx, app, args[1:])
	case "convert":
		err = runConvert(app, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		app.Logger.Error("command failed", log.String("command", args[0]), log.Error(err))
		_ = app.Logger.Sync()
		os.Exit(1)
	}
}

func runCook(ctx context.Context, app *injector.App, args []string) error {
	cfg := app.Config
	ids := make([]models.PrefabUUID, 0, len(args))
	for _, arg := range args {
		id, err := models.Parse[models.PrefabUUID](arg)
		if err != nil {
			return fmt.Errorf("prefab id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		var err error
		if ids, err = cook.NewDirLoader(cfg.SourceDir).List(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	app.Logger.Info("cooking", log.Int("prefabs", len(ids)), log.String("source", cfg.SourceDir), log.Stringer("format", cfg.Format))
	return concurrent.ForEach(ctx, ids, cfg.Parallelism, func(_ context.Context, id models.PrefabUUID) error {
		cooked, err := app.Cooker.Cook(id)
		if err != nil {
			return err
		}
		data, err := cooked.Encode(app.Registry, cfg.Format)
		if err != nil {
			return fmt.Errorf("encode %s: %w", id, err)
		}
		out := filepath.Join(cfg.OutputDir, id.String()+cfg.Format.Extension())
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		app.Logger.Info("cooked",
			log.Stringer("prefab", id),
			log.Int("entities", len(cooked.Entities)),
			log.String("output", out),
			log.String("fingerprint", fmt.Sprintf("%016x", cook.Fingerprint(data))),
		)
		return nil
	})
}

func runConvert(app *injector.App, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	to := fs.String("to", "", "target encoding, text or compact (default: the other one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("convert needs <in> and <out>, got %d arguments", fs.NArg())
	}
	in, out := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	from := codec.Detect(data)
	target := format.Text
	if from == format.Text {
		target = format.Compact
	}
	if *to != "" {
		if target, err = format.ParseKind(*to); err != nil {
			return err
		}
	}

	p, err := prefab.Decode(app.Registry, from, data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", in, err)
	}
	converted, err := p.Encode(app.Registry, target)
	if err != nil {
		return fmt.Errorf("encode %s: %w", out, err)
	}
	if err := os.WriteFile(out, converted, 0o644); err != nil {
		return err
	}
	app.Logger.Info("converted",
		log.Stringer("prefab", p.Meta.ID),
		log.Stringer("from", from),
		log.Stringer("to", target),
		log.String("output", out),
	)
	return nil
}
