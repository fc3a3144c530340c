package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/localci/pipeline-runner/internal/humanize"
	"github.com/localci/pipeline-runner/internal/metadata"
)

func newCacheCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the project's cache archives",
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project-directory", "p", "", "project directory (default: current directory)")

	cmd.AddCommand(newCacheListCmd(&projectDir))
	cmd.AddCommand(newCacheClearCmd(&projectDir))
	return cmd
}

func newCacheListCmd(projectDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached archives for this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir(*projectDir)
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(dir)
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "no caches yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading cache directory %s: %w", dir, err)
			}

			out := cmd.OutOrStdout()
			for _, entry := range entries {
				info, err := entry.Info()
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", entry.Name(), humanize.Size(info.Size()))
			}
			return nil
		},
	}
}

func newCacheClearCmd(projectDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached archive for this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir(*projectDir)
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(dir)
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading cache directory %s: %w", dir, err)
			}

			for _, entry := range entries {
				if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
					return fmt.Errorf("removing cache %s: %w", entry.Name(), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d cache archive(s)\n", len(entries))
			return nil
		},
	}
}

// cacheDir resolves <cache-dir>/<path_slug>/caches without touching the
// project metadata store (cache management doesn't bump the build number
// the way starting a run does).
func cacheDir(projectDir string) (string, error) {
	cfg, err := loadConfig(projectDir, "", nil, nil, nil)
	if err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean(cfg.ProjectDirectory))
	pathSlug := metadata.PathSlug(name, cfg.ProjectDirectory)
	return filepath.Join(cfg.CacheDir, pathSlug, "caches"), nil
}
