package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yourusername/kart-timing/internal/models"
	"github.com/yourusername/kart-timing/internal/notify"
	"github.com/yourusername/kart-timing/internal/official"
)

var (
	schemeName string
	jsonOutput bool
)

func init() {
	previewCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the standings as JSON")
	publishCmd.Flags().StringVar(&schemeName, "scheme", "", "Point scheme name (defaults to points.scheme from config)")
	publishCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the publication as JSON")
}

var previewCmd = &cobra.Command{
	Use:   "preview <session-id>",
	Short: "Show the penalty-adjusted order of a session without publishing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres("preview"); err != nil {
			return err
		}
		sessionID, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		engine := official.NewEngine(repos, appLogger, official.WithFieldSize(cfg.Points.FieldSize))
		standings, err := engine.ComputeOfficialOrder(ctx, sessionID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(os.Stdout, standings)
		}
		return printStandings(ctx, os.Stdout, standings, nil)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <session-id>",
	Short: "Publish the next official version of a session and award points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres("publish"); err != nil {
			return err
		}
		sessionID, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		if schemeName == "" {
			schemeName = cfg.Points.Scheme
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		notifier, err := notify.New(cfg.Events, appLogger)
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer notifier.Close()

		engine := official.NewEngine(repos, appLogger,
			official.WithNotifier(notifier),
			official.WithFieldSize(cfg.Points.FieldSize),
		)
		pub, err := engine.Publish(ctx, sessionID, schemeName)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(os.Stdout, pub)
		}
		fmt.Printf("Published session %s as official version %d\n\n", pub.SessionID, pub.Version)
		return printStandings(ctx, os.Stdout, pub.Standings, pub.Awards)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requirePostgres("migrate"); err != nil {
			return err
		}
		applied, err := db.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("Schema is up to date")
			return nil
		}
		for _, name := range applied {
			fmt.Printf("Applied %s\n", name)
		}
		return nil
	},
}

func parseSessionID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w %q: %v", models.ErrInvalidID, arg, err)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStandings(ctx context.Context, w io.Writer, standings []*official.Standing, awards []*models.PointAward) error {
	points := make(map[uuid.UUID]*models.PointAward, len(awards))
	for _, a := range awards {
		points[a.DriverID] = a
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "POS\tDRIVER\tBEST\tLAST\tTOTAL\tGAP\tSTATUS"
	if len(awards) > 0 {
		header += "\tPOINTS"
	}
	fmt.Fprintln(tw, header)

	for _, s := range standings {
		pos := "-"
		if s.Position != nil {
			pos = fmt.Sprint(*s.Position)
		}
		name := s.DriverID.String()
		if d, err := repos.Drivers.GetByID(ctx, s.DriverID); err == nil {
			name = d.FullName()
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\t%s",
			pos, name, formatMs(s.BestLapMs), formatMs(s.LastLapMs),
			formatMs(s.TotalTimeMs), formatMs(s.GapToLeaderMs), s.Status)
		if len(awards) > 0 {
			if a, ok := points[s.DriverID]; ok {
				row += "\t" + a.Display().String()
			} else {
				row += "\t0"
			}
		}
		fmt.Fprintln(tw, row)
	}
	return tw.Flush()
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", float64(*ms)/1000)
}
