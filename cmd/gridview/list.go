package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jgoulah/gridview/internal/classify"
	"github.com/jgoulah/gridview/internal/database"
	"github.com/jgoulah/gridview/pkg/models"
)

var listHour int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached grid data",
	Long: `Without --hour, summarizes every hour stored in the local database.
With --hour, prints that hour's grid points with their overload category.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVar(&listHour, "hour", 0, "show the points of this hour")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if !cmd.Flags().Changed("hour") {
		hours, err := db.ListHours(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing hours: %w", err)
		}
		printHours(os.Stdout, hours, time.Now())
		return nil
	}

	if !models.ValidHour(listHour) {
		return fmt.Errorf("invalid hour %d: must be between %d and %d", listHour, models.MinHour, models.MaxHour)
	}

	points, err := db.FetchPoints(cmd.Context(), listHour)
	if err != nil {
		return fmt.Errorf("listing hour %d: %w", listHour, err)
	}
	if len(points) == 0 {
		fmt.Printf("No data cached for hour %d. Run 'gridview fetch --hour %d' first.\n", listHour, listHour)
		return nil
	}

	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	printPoints(os.Stdout, listHour, points, color)
	return nil
}

func printHours(w io.Writer, hours []database.HourSummary, now time.Time) {
	if len(hours) == 0 {
		fmt.Fprintln(w, "No data found. Run 'gridview fetch' first.")
		return
	}

	fmt.Fprintln(w, "----------------------------------------------------")
	fmt.Fprintf(w, "%4s  %8s  %10s  %-20s\n", "Hour", "Points", "Overloaded", "Fetched")
	fmt.Fprintln(w, "----------------------------------------------------")

	var total, overloaded int
	for _, h := range hours {
		fmt.Fprintf(w, "%4d  %8s  %10s  %-20s\n",
			h.Hour,
			humanize.Comma(int64(h.Points)),
			humanize.Comma(int64(h.Overloaded)),
			humanize.RelTime(h.FetchedAt, now, "ago", "from now"))
		total += h.Points
		overloaded += h.Overloaded
	}

	fmt.Fprintln(w, "----------------------------------------------------")
	fmt.Fprintf(w, "Total: %s points, %s overloaded (%d hours)\n",
		humanize.Comma(int64(total)), humanize.Comma(int64(overloaded)), len(hours))
}

// ANSI colors matching the map markers
var categoryANSI = map[classify.Category]string{
	classify.Normal:                     "\033[34m",
	classify.OverloadedUnderCapacity:    "\033[31m",
	classify.OverloadedAtOrOverCapacity: "\033[35m",
}

func printPoints(w io.Writer, hour int, points []models.GridPoint, color bool) {
	fmt.Fprintf(w, "\nHour %d Grid Points:\n", hour)
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")
	fmt.Fprintf(w, "%4s  %-14s  %-13s  %10s  %10s  %10s  %s\n", "#", "Cadaster", "Category", "Predicted", "Base", "Max", "Address")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------")

	counts := make(map[classify.Category]int)
	for i, p := range points {
		cat := classify.Classify(p)
		counts[cat]++

		label := fmt.Sprintf("%-13s", cat)
		if color {
			label = categoryANSI[cat] + label + "\033[0m"
		}
		fmt.Fprintf(w, "%4d  %-14s  %s  %10s  %10s  %10s  %s\n",
			i, p.Cadaster, label,
			humanize.FormatFloat("#,###.##", p.PredictedLoad),
			humanize.FormatFloat("#,###.##", p.BaseLoad),
			humanize.FormatFloat("#,###.##", p.MaxLoad),
			p.Address)
	}

	fmt.Fprintln(w, "--------------------------------------------------------------------------------")
	fmt.Fprintf(w, "%d points: %d normal, %d overloaded, %d over capacity\n",
		len(points),
		counts[classify.Normal],
		counts[classify.OverloadedUnderCapacity],
		counts[classify.OverloadedAtOrOverCapacity])
}
