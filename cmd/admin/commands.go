package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-music/pkg/simplemusic/config"
	"github.com/tendant/simple-music/pkg/simplemusic/reconcile"
)

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand(flags *globalFlags) *cobra.Command {
	var dryRun bool
	var grace time.Duration
	var concurrency int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete blob objects no song or user references",
		Long: `List the audio, image and profile folders of the blob store and delete
every object that no song or user record points at. Objects younger than
the grace period are left alone so in-flight uploads survive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("grace") {
				grace = cfg.ReconcileGrace
			}
			if !cmd.Flags().Changed("dry-run") {
				dryRun = cfg.ReconcileDryRun
			}

			logger := flags.logger()
			comps, err := cfg.BuildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			result, err := reconcile.New(comps.Repository, comps.Store, logger).Run(cmd.Context(), reconcile.Options{
				Folders:     cfg.ReconcileFolders(),
				Grace:       grace,
				DryRun:      dryRun,
				Concurrency: concurrency,
			})
			if err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}

			if flags.jsonOutput {
				return printJSON(result)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Found:\t%d\n", result.TotalFound)
			fmt.Fprintf(w, "Referenced:\t%d\n", result.Referenced)
			fmt.Fprintf(w, "Within grace:\t%d\n", result.Young)
			fmt.Fprintf(w, "Orphaned:\t%d\n", result.Orphaned)
			fmt.Fprintf(w, "Deleted:\t%d\n", result.Deleted)
			fmt.Fprintf(w, "Failed:\t%d\n", result.Failed)
			if err := w.Flush(); err != nil {
				return err
			}
			if dryRun {
				for _, url := range result.OrphanURLs {
					fmt.Printf("orphan %s\n", url)
				}
			}
			for _, url := range result.FailedURLs {
				fmt.Printf("failed %s\n", url)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without deleting them")
	cmd.Flags().DurationVar(&grace, "grace", reconcile.DefaultGrace, "skip objects modified more recently than this")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel listings and deletions (default: 4)")

	return cmd
}

// NewRecentCommand creates the recent command
func NewRecentCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recent <user-id>",
		Short: "Show the recently played songs of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger()
			comps, err := cfg.BuildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			svc, err := cfg.BuildService(comps, logger)
			if err != nil {
				return err
			}
			recent, err := svc.RecentSongs(cmd.Context(), userID)
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(recent)
			}
			if len(recent) == 0 {
				fmt.Println("No recent plays")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SONG ID\tTITLE\tARTIST\tPLAYED AT")
			for _, song := range recent {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					song.SongID, song.Title, song.Artist, song.PlayedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

// NewStripSongCommand creates the strip-song command
func NewStripSongCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "strip-song <song-id>",
		Short: "Remove a song id from every playlist",
		Long:  `Remove a song id from every playlist that holds it. Use this to repair playlists left pointing at a deleted song.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			songID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid song id: %w", err)
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger()
			comps, err := cfg.BuildComponents(cmd.Context())
			if err != nil {
				return err
			}
			defer comps.Close()

			svc, err := cfg.BuildService(comps, logger)
			if err != nil {
				return err
			}
			modified, err := svc.StripSongFromAllPlaylists(cmd.Context(), songID)
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				return printJSON(map[string]int64{"playlists_modified": modified})
			}
			fmt.Printf("Removed song %s from %d playlist(s)\n", songID, modified)
			return nil
		},
	}
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema or indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(config.WithAutoMigrate(true))
			if err != nil {
				return err
			}

			switch cfg.DatabaseType {
			case "memory":
				fmt.Println("Memory database has no schema; nothing to do")
				return nil
			case "postgres":
				if err := config.PingPostgres(cfg.DatabaseURL, ""); err != nil {
					return err
				}
			}

			comps, err := cfg.BuildComponents(cmd.Context())
			if err != nil {
				return err
			}
			comps.Close()

			fmt.Printf("Migrated %s database\n", cfg.DatabaseType)
			return nil
		},
	}
}
