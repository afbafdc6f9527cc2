package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/pipeline"
	"github.com/dubclip/dubclip/internal/ports/adapters/sqlite"
	"github.com/dubclip/dubclip/internal/types"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Engines.SynthesisVoice = getenvDefault("ELEVENLABS_VOICE_ID", cfg.Engines.SynthesisVoice)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// buildOrchestrator assembles the full adapter stack. Commands that only
// read or delete state open the store directly and skip the API keys.
func buildOrchestrator(cmd *cobra.Command) (*pipeline.Orchestrator, *sqlite.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	sec := pipeline.Secrets{
		TranslateKey: os.Getenv("LIBRETRANSLATE_API_KEY"),
		SynthesisKey: os.Getenv("ELEVENLABS_API_KEY"),
		FootageKey:   os.Getenv("PEXELS_API_KEY"),
	}
	if sec.SynthesisKey == "" {
		return nil, nil, nil, errors.New("ELEVENLABS_API_KEY is required (set it in .env)")
	}
	if sec.FootageKey == "" {
		return nil, nil, nil, errors.New("PEXELS_API_KEY is required (set it in .env)")
	}

	orch, store, err := pipeline.Build(cfg, sec, newLogger())
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, store, cfg, nil
}

func openStore(cmd *cobra.Command) (*sqlite.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(filepath.Join(cfg.Paths.Data, "dubclip.db"))
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <url>...",
		Short: "Run source videos through the full translation pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, store, _, err := buildOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			// Interrupts stop the batch at the next stage boundary.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := orch.ProcessBatch(ctx, args)
			for _, o := range s.Outcomes {
				if o.Completed {
					fmt.Fprintf(cmd.OutOrStdout(), "done    %s  item=%s\n", o.URL, o.ItemID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "failed  %s  stage=%s: %v\n", o.URL, o.FailedStage, o.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d completed, %d failed\n", s.Completed(), s.Failed())
			if s.Completed() == 0 {
				return errors.New("no items completed")
			}
			return nil
		},
	}
}

func newShortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shorts <item-id>",
		Short: "Regenerate platform clips for a composed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, store, _, err := buildOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := orch.RegenerateShorts(ctx, args[0]); err != nil {
				return err
			}
			shorts, err := store.ListShorts(ctx, args[0])
			if err != nil {
				return err
			}
			for _, sh := range shorts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sh.Platform, sh.Path)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline progress for every item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			items, err := store.ListItems(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				done := 0
				for _, st := range types.Order() {
					if it.StageState(st) == types.StateDone {
						done++
					}
				}
				fmt.Fprintf(out, "%s  %d/%d  theme=%s  %s\n",
					it.ID, done, len(types.Order()), it.Theme, it.Title)
				if it.FailedStage != "" {
					fmt.Fprintf(out, "    failed at %s: %s\n", it.FailedStage, it.FailureReason)
				}
			}

			shorts, err := store.CountAnalytics(ctx, "", "short_created")
			if err != nil {
				return err
			}
			thumbs, err := store.CountAnalytics(ctx, "", "thumbnail_created")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d items, %d shorts, %d thumbnails\n", len(items), shorts, thumbs)
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <item-id>",
		Short: "Delete an item and every artifact it produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			id := args[0]
			if _, err := store.GetItem(ctx, id); err != nil {
				return err
			}

			paths := []string{
				filepath.Join(cfg.Paths.Media, "source", id),
				filepath.Join(cfg.Paths.Media, "shorts", id),
				filepath.Join(cfg.Paths.Media, "voice", id+".mp3"),
				filepath.Join(cfg.Paths.Media, "final", id+".mp4"),
				filepath.Join(cfg.Paths.Cache, "runs", id),
			}
			for _, p := range paths {
				if err := os.RemoveAll(p); err != nil {
					return err
				}
			}
			if err := store.DeleteItem(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return nil
		},
	}
}
