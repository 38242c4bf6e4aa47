package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jgoulah/gridview/internal/view"
)

// navigation is the --hour and --select input of a command. Only flags the
// user passed are applied, and their values go to the session unchecked.
type navigation struct {
	Hour    int
	SetHour bool
	Index   int
	Select  bool
}

// navigationFlags reads the hour and select flags of cmd
func navigationFlags(cmd *cobra.Command, hour, index int) navigation {
	return navigation{
		Hour:    hour,
		SetHour: cmd.Flags().Changed("hour"),
		Index:   index,
		Select:  cmd.Flags().Changed("select"),
	}
}

// navigate applies nav to a running session and waits for the resulting fetches
func navigate(ctx context.Context, session *view.Session, nav navigation) (view.Snapshot, error) {
	if err := session.Settle(ctx); err != nil {
		return view.Snapshot{}, fmt.Errorf("loading initial points: %w", err)
	}

	if nav.SetHour {
		if err := session.SetHour(ctx, nav.Hour); err != nil {
			return view.Snapshot{}, fmt.Errorf("selecting hour: %w", err)
		}
		if err := session.Settle(ctx); err != nil {
			return view.Snapshot{}, fmt.Errorf("loading points: %w", err)
		}
	}

	if nav.Select {
		if err := session.SelectPoint(ctx, nav.Index); err != nil {
			return view.Snapshot{}, fmt.Errorf("selecting point: %w", err)
		}
		if err := session.Settle(ctx); err != nil {
			return view.Snapshot{}, fmt.Errorf("loading chargers: %w", err)
		}
	}

	return session.Snapshot(ctx)
}

// printSnapshot writes a human readable rendition of the render set
func printSnapshot(w io.Writer, snap view.Snapshot) {
	rs := snap.Render
	fmt.Fprintf(w, "Hour %d, %s mode, zoom %d\n", snap.Hour, snap.Mode, rs.Zoom)

	if sel := snap.Selected; sel != nil {
		fmt.Fprintf(w, "Selected: %s (%s) at %.5f, %.5f\n", sel.Address, sel.Cadaster, sel.Position.Lat, sel.Position.Lon)
	}

	if rs.Center == nil {
		fmt.Fprintln(w, "Nothing to display")
		return
	}
	fmt.Fprintf(w, "Center: %.5f, %.5f\n", rs.Center.Lat, rs.Center.Lon)

	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "%4s  %10s  %11s  %-7s\n", "#", "Lat", "Lon", "Color")
	fmt.Fprintln(w, "----------------------------------------")
	for i, p := range rs.Positions {
		fmt.Fprintf(w, "%4d  %10.5f  %11.5f  %-7s\n", i, p.Lat, p.Lon, rs.Colors[i])
	}
	fmt.Fprintln(w, "----------------------------------------")

	if snap.Mode == view.DrillDown.String() {
		fmt.Fprintf(w, "%d chargers near the selected point\n", len(snap.Chargers))
	}
}
