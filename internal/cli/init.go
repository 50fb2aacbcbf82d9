package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devpulse/internal/config"
)

func initCmd(opts *globalOptions) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default settings for this project",
		Long: `Write the default progress monitor settings to .devflow/settings.json.

Other top-level keys in an existing settings file are preserved. Existing
progress monitor settings are kept unless --overwrite is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(opts.project)
			if err != nil {
				return err
			}
			cfg := config.Default()
			if !overwrite {
				loaded, err := config.Load(root)
				if err != nil {
					return fmt.Errorf("loading settings: %w", err)
				}
				cfg = loaded
			}
			if err := config.Save(root, cfg); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			for _, dir := range []string{cfg.RequirementsDir, cfg.CacheDir, cfg.LogDir} {
				if err := os.MkdirAll(config.Resolve(root, dir), 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", config.SettingsPath(root))
			return err
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing progress monitor settings with the defaults")
	return cmd
}
