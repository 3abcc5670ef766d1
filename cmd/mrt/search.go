package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/filter"
	"github.com/clemv/mritrack/internal/util"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search tracked scans with a filter expression",
	Long: `Evaluate a filter expression against the current collection and list
the matching scans with their visible tags.

Filter clauses reference tags in braces and compare against quoted
values; AND/OR combine clauses left to right, parentheses group:

  mrt search '({SequenceName} == "MPRAGE") AND ({FileName} LIKE "%sub01%")'
  mrt search '({AcquisitionDate} >= "2024-01-01")'
  mrt search '({PatientWeight} == null)'

With --rapid the argument is a plain keyword matched against the scan
path and every visible tag value instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Bool("rapid", false, "keyword search instead of a filter expression")
	searchCmd.Flags().String("collection", database.CollectionCurrent, "collection to search")
	searchCmd.Flags().Bool("names-only", false, "print only the matching document names")
}

func runSearch(cmd *cobra.Command, args []string) error {
	rapid, _ := cmd.Flags().GetBool("rapid")
	collection, _ := cmd.Flags().GetString("collection")
	namesOnly, _ := cmd.Flags().GetBool("names-only")

	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var docs []database.Document
	var shown []database.Field

	err = db.WithSession(false, func(s *database.Session) error {
		if rapid {
			docs, err = filter.RapidSearch(s, collection, query)
		} else {
			docs, err = filter.Evaluate(s, collection, query)
		}
		if err != nil {
			return err
		}

		fields, err := s.Fields(collection)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if f.Visibility {
				shown = append(shown, f)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	if namesOnly {
		for _, doc := range docs {
			fmt.Println(doc.Name)
		}
		return nil
	}

	if len(docs) == 0 {
		util.InfoLog("No matching scans")
		return nil
	}

	printDocumentTable(docs, shown)
	util.InfoLog("%d matching scan(s)", len(docs))
	return nil
}

// printDocumentTable renders documents as a fixed-width table of their
// visible tags, sized to the longest value per column.
func printDocumentTable(docs []database.Document, shown []database.Field) {
	headers := make([]string, 0, len(shown))
	for _, f := range shown {
		headers = append(headers, f.Name)
	}

	rows := make([][]string, len(docs))
	for i, doc := range docs {
		row := make([]string, len(shown))
		for j, f := range shown {
			row[j] = filter.DisplayString(f.Type, doc.Get(f.Name))
		}
		rows[i] = row
	}

	widths := make([]int, len(headers))
	for j, h := range headers {
		widths[j] = len(h)
	}
	for _, row := range rows {
		for j, cell := range row {
			if len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}

	// Keep the table inside the terminal by capping each column
	maxWidth := util.GetTerminalWidth() / max(len(headers), 1)
	if maxWidth < 12 {
		maxWidth = 12
	}
	for j := range widths {
		if widths[j] > maxWidth {
			widths[j] = maxWidth
		}
	}

	printRow(headers, widths)
	sep := make([]string, len(headers))
	for j, w := range widths {
		sep[j] = strings.Repeat("-", w)
	}
	printRow(sep, widths)
	for _, row := range rows {
		printRow(row, widths)
	}
}

func printRow(cells []string, widths []int) {
	parts := make([]string, len(cells))
	for j, cell := range cells {
		if len(cell) > widths[j] {
			cell = cell[:widths[j]-3] + "..."
		}
		parts[j] = fmt.Sprintf("%-*s", widths[j], cell)
	}
	fmt.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}
