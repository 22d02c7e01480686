package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/indexsync/internal/app"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

func newReindexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [index...]",
		Short: "Rebuild indexes into a fresh generation and swap the alias",
		Long: `Rebuild the named indexes, or every registered index when none is given.
Each index is reported on its own; the command fails when any of them failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Reindex.Reindex(cmd.Context(), args)
				if err != nil && len(report.Outcomes) == 0 {
					return err
				}

				w := cmd.OutOrStdout()
				st := newStyles(w, c.noColor)
				for _, o := range report.Outcomes {
					if o.Err != nil {
						_, _ = fmt.Fprintf(w, "%s %s: %v\n", st.Error.Render("FAIL"), o.Index, o.Err)
						continue
					}
					_, _ = fmt.Fprintf(w, "%s %s -> %s  %s\n",
						st.Success.Render("OK  "), o.Index, o.Generation,
						st.Dim.Render(fmt.Sprintf("(%d docs, %s)", o.Documents, o.Duration.Round(time.Millisecond))))
					if len(o.Retired) > 0 {
						_, _ = fmt.Fprintf(w, "     retired %s\n", strings.Join(o.Retired, ", "))
					}
				}
				if failed := report.Failed(); len(failed) > 0 {
					return fmt.Errorf("reindex failed for %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	var withMapping bool

	cmd := &cobra.Command{
		Use:   "show [index...]",
		Short: "Print the merged settings and field configuration of indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				configs, err := a.Reindex.ShowConfiguration(cmd.Context(), args, withMapping)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				for _, ic := range configs {
					if err := enc.Encode(showDocument(ic.Index, ic.Settings, ic.Types, withMapping)); err != nil {
						return fmt.Errorf("encode %s: %w", ic.Index, err)
					}
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().BoolVar(&withMapping, "mapping", false, "Also print the mapping currently stored in the backend")
	return cmd
}

func newIndexesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "List physical indexes with document counts and aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				infos, err := a.Backend.ListIndexes(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				st := newStyles(w, c.noColor)
				_, _ = fmt.Fprintf(w, "%s\n", st.Header.Render(fmt.Sprintf("%-32s %10s  %s", "INDEX", "DOCS", "ALIASES")))
				for _, name := range slices.Sorted(maps.Keys(infos)) {
					info := infos[name]
					_, _ = fmt.Fprintf(w, "%-32s %10d  %s\n", name, info.DocCount, strings.Join(info.Aliases, ","))
				}
				return nil
			})
		},
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	var (
		field string
		start int
		count int
	)

	cmd := &cobra.Command{
		Use:   "search <type> <query>",
		Short: "Search one entity type and print the materialized results",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if start < 0 || count <= 0 {
				return errors.New("--start must be >= 0 and --count > 0")
			}
			tag, input := args[0], strings.Join(args[1:], " ")
			return c.withApp(cmd.Context(), func(a *app.App) error {
				var (
					rs  *searchuc.ResultSet
					err error
				)
				if field != "" {
					rs, err = a.Search.SearchField(tag, field, input)
				} else {
					rs, err = a.Search.Search(tag, input)
				}
				if err != nil {
					return err
				}

				items, err := rs.Window(cmd.Context(), start, start+count)
				if err != nil {
					return err
				}
				total, err := rs.Len(cmd.Context())
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				st := newStyles(w, c.noColor)
				_, _ = fmt.Fprintf(w, "%s\n", st.Header.Render(fmt.Sprintf("%d matches", total)))
				for _, it := range items {
					if it.Hole() {
						_, _ = fmt.Fprintf(w, "%4d  %s\n", it.Rank, st.Warning.Render(it.Hit.ID+" (missing)"))
						continue
					}
					_, _ = fmt.Fprintf(w, "%4d  %-24s %s\n", it.Rank, it.Hit.ID, st.Dim.Render(fmt.Sprintf("%.3f", it.Hit.Score)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Restrict the query to one index field")
	cmd.Flags().IntVar(&start, "start", 0, "First rank to print")
	cmd.Flags().IntVar(&count, "count", 10, "Number of ranks to print")
	return cmd
}

func newTouchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <type> <key>...",
		Short: "Re-index entities as if they had just been saved",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := args[0]
			return c.withApp(cmd.Context(), func(a *app.App) error {
				w := cmd.OutOrStdout()
				st := newStyles(w, c.noColor)
				var errs []error
				for _, key := range args[1:] {
					err := touch(cmd, a, tag, key)
					if err != nil {
						_, _ = fmt.Fprintf(w, "%s %s.%s: %v\n", st.Error.Render("FAIL"), tag, key, err)
						errs = append(errs, err)
						continue
					}
					_, _ = fmt.Fprintf(w, "%s %s.%s\n", st.Success.Render("OK  "), tag, key)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func touch(cmd *cobra.Command, a *app.App, tag, key string) error {
	e, err := a.Catalog.Get(cmd.Context(), tag, key)
	if err != nil {
		return err
	}
	return a.Indexing.OnCreateOrUpdate(cmd.Context(), e)
}

// showDocument is the YAML shape printed by show, one document per index.
func showDocument(index string, settings map[string]any, types []reindexuc.TypeConfiguration, withMapping bool) map[string]any {
	out := make([]map[string]any, 0, len(types))
	for _, tc := range types {
		t := map[string]any{
			"type":     tc.Type,
			"doc_type": tc.DocType,
			"fields":   tc.Fields,
		}
		if withMapping {
			// nil means the backend has no mapping yet.
			t["mapping"] = tc.Mapping
		}
		out = append(out, t)
	}
	return map[string]any{
		"index":    index,
		"settings": settings,
		"types":    out,
	}
}
