// materialmap loads the material catalog published under a base URL and
// prints, searches or watches it.
//
// The loader tries the progressive artifacts first, then the legacy YAML
// sources, the in-memory copy and the persistent cache. With --watch the
// process stays up, follows connectivity and reloads when a newer dataset
// is published or a peer announces one on the update bus.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/yungbote/materialmap/internal/app"
	"github.com/yungbote/materialmap/internal/catalog/config"
	"github.com/yungbote/materialmap/internal/catalog/loader"
	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/catalog/notify"
	"github.com/yungbote/materialmap/internal/catalog/query"
)

type flags struct {
	baseURL         string
	pageURL         string
	complete        bool
	noCache         bool
	forceRefresh    bool
	clearPersistent bool
	search          string
	category        string
	limit           int
	watch           bool
	asJSON          bool
	stats           bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("materialmap", pflag.ContinueOnError)
	fs.StringVar(&f.baseURL, "base-url", "", "root the dist/ and data/ directories are served from")
	fs.StringVar(&f.pageURL, "page-url", "", "catalog page location; the base URL is derived from it")
	fs.BoolVar(&f.complete, "complete", false, "load materials.json in one request instead of progressively")
	fs.BoolVar(&f.noCache, "no-cache", false, "ignore the in-memory dataset")
	fs.BoolVar(&f.forceRefresh, "force-refresh", false, "discard cached artifacts before loading")
	fs.BoolVar(&f.clearPersistent, "clear-persistent", false, "clear the persistent cache and exit")
	fs.StringVarP(&f.search, "search", "s", "", "only show materials matching every term")
	fs.StringVarP(&f.category, "category", "c", "", "only show materials in this category")
	fs.IntVarP(&f.limit, "limit", "n", 0, "show at most n materials (0 shows all)")
	fs.BoolVarP(&f.watch, "watch", "w", false, "keep running and reload on updates")
	fs.BoolVar(&f.asJSON, "json", false, "print the dataset as JSON")
	fs.BoolVar(&f.stats, "stats", false, "print cache statistics after loading")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return f, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return f, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if f.clearPersistent {
		return a.Loader.ClearPersistent(ctx)
	}

	if err := a.Start(ctx); err != nil {
		return err
	}

	opts := loader.Options{
		Progressive:  !f.complete,
		UseCache:     !f.noCache,
		ForceRefresh: f.forceRefresh,
	}
	ds, err := a.Loader.Load(ctx, opts)
	if err != nil {
		if rep, ok := a.Loader.Report(); ok {
			fmt.Fprintf(os.Stderr, "%s\n\n%s\n", rep.Title, rep)
		}
		return err
	}
	if err := printDataset(out, ds, f); err != nil {
		return err
	}
	if f.stats {
		st := a.Loader.Stats()
		fmt.Fprintf(out, "\ncache=%d online=%t version=%s in-flight=%d via=%s\n",
			st.CacheSize, st.IsOnline, st.Version, st.LoadingPromises, a.Loader.State().LoadedVia)
	}
	if !f.watch {
		return nil
	}

	a.Log.Info("watching for updates")
	a.Watch(ctx, opts, func(ev notify.Event) {
		fmt.Fprintf(out, "event %s %s\n", ev.Type, ev.Phase)
		if ev.Type == notify.EventLoadFailed {
			if rep, ok := a.Loader.Report(); ok {
				fmt.Fprintf(out, "%s\n", rep)
			}
		}
	})
	return nil
}

// loadConfig reads the config file and environment, then applies flags.
// A --page-url without --base-url replaces any configured base URL.
func loadConfig(f flags) (*config.Config, error) {
	return config.Load(func(c *config.Config) {
		if f.pageURL != "" {
			c.PageURL = f.pageURL
			c.BaseURL = ""
		}
		if f.baseURL != "" {
			c.BaseURL = f.baseURL
		}
	})
}

func printDataset(out io.Writer, ds *materials.Dataset, f flags) error {
	recs := ds.Materials
	if f.category != "" {
		recs = query.ByCategory(recs, f.category)
	}
	if f.search != "" {
		recs = query.Search(recs, f.search)
	}
	recs = append([]materials.MaterialRecord(nil), recs...)
	query.SortByAdded(recs)
	if f.limit > 0 && len(recs) > f.limit {
		recs = recs[:f.limit]
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMAT\tAPP\tADDED\tREF")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Mat, query.AppsOrDash(r.App), query.FormatDate(r.Add), refOrDash(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d of %d materials (%s)\n", len(recs), len(ds.Materials), ds.Metadata.LoadedVia)
	return nil
}

func refOrDash(r materials.MaterialRecord) string {
	if r.Ref != "" {
		return r.Ref
	}
	if query.SafeURL(r.URL) != "#" {
		return r.URL
	}
	return "-"
}
