package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/meteo-rt/internal/domain"
	"github.com/spf13/cobra"
)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var asJSON bool

	root := &cobra.Command{
		Use:   "meteoctl",
		Short: "Weather and trivia for a random Tuscan comune",
		Long: `meteoctl draws a Tuscan comune, asks Gemini for its current weather and a
cultural anecdote, and appends the result to the shared history.

Configuration is read from the environment (and an optional .env file),
the same variables the server uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print records as JSON")

	emit := func(cmd *cobra.Command, v any, text func(io.Writer)) error {
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		text(cmd.OutOrStdout())
		return nil
	}

	root.AddCommand(
		newGenerateCmd(open, emit),
		newRefreshCmd(open, emit),
		newHistoryCmd(open, emit),
		newProvincesCmd(emit),
	)
	return root
}

type printer func(cmd *cobra.Command, v any, text func(io.Writer)) error

func newGenerateCmd(open opener, emit printer) *cobra.Command {
	var province string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate weather and trivia for a new comune",
		Long: `Picks the next province (or the one given with --province), draws one of its
least recently shown comuni and stores a new generation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pinned domain.Province
			if province != "" {
				p, err := domain.ParseProvince(province)
				if err != nil {
					return usageError{fmt.Errorf("unknown province %q, run 'meteoctl provinces' for the list", province)}
				}
				pinned = p
			}

			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if pinned != "" {
				if err := e.PinProvince(pinned); err != nil {
					return err
				}
			}
			rec, err := e.Generate(cmd.Context())
			if err != nil {
				return err
			}
			return emit(cmd, rec, func(w io.Writer) { writeRecord(w, rec) })
		},
	}
	cmd.Flags().StringVarP(&province, "province", "p", "", "province to draw from")
	return cmd
}

func newRefreshCmd(open opener, emit printer) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Refresh the weather of a history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			rec, err := e.RefreshWeather(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, rec, func(w io.Writer) { writeRecord(w, rec) })
		},
	}
}

func newHistoryCmd(open opener, emit printer) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored generations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 {
				return usageError{fmt.Errorf("--page must be at least 1")}
			}
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			items, total := e.History(page-1, size)
			return emit(cmd, items, func(w io.Writer) {
				for _, r := range items {
					fmt.Fprintf(w, "%s  %-24s %-3s %s  %s\n", r.Timestamp, r.Comune.Name, r.Comune.Code, weatherLine(r.Weather), r.ID)
				}
				fmt.Fprintf(w, "pagina %d di %d\n", page, max(total, 1))
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&size, "size", domain.DefaultPageSize, "entries per page")
	return cmd
}

func newProvincesCmd(emit printer) *cobra.Command {
	return &cobra.Command{
		Use:   "provinces",
		Short: "List the provinces and how many comuni each has",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type row struct {
				Name   domain.Province `json:"name"`
				Code   string          `json:"sigla"`
				Comuni int             `json:"comuni"`
			}
			var rows []row
			for _, p := range domain.Provinces() {
				comuni := domain.ComuniOf(p)
				rows = append(rows, row{Name: p, Code: comuni[0].Code, Comuni: len(comuni)})
			}
			return emit(cmd, rows, func(w io.Writer) {
				for _, r := range rows {
					fmt.Fprintf(w, "%-14s %s %3d\n", r.Name, r.Code, r.Comuni)
				}
			})
		},
	}
}

func weatherLine(w *domain.Weather) string {
	if w == nil {
		return "meteo n/d"
	}
	return fmt.Sprintf("%g°C, %s", w.Temperature, w.Sky)
}

func writeRecord(w io.Writer, r domain.Record) {
	fmt.Fprintf(w, "%s (%s), provincia di %s\n", r.Comune.Name, r.Comune.Code, r.Comune.Province)
	fmt.Fprintf(w, "Meteo: %s\n\n", weatherLine(r.Weather))
	fmt.Fprintln(w, r.Teaser)
	fmt.Fprintln(w, r.Trivia)
	if len(r.Sources) > 0 {
		fmt.Fprintln(w, "\nFonti:")
		for _, s := range r.Sources {
			fmt.Fprintf(w, "  - %s <%s>\n", strings.TrimSpace(s.Title), s.URI)
		}
	}
	fmt.Fprintf(w, "\nid %s, %s\n", r.ID, r.Timestamp)
}
