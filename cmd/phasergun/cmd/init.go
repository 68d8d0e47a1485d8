package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/configs"
	"github.com/phasergun/phasergun/internal/config"
	"github.com/phasergun/phasergun/internal/fingerprint"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a project for phasergun",
		Long: `Create the Procedures/ and Context/ subtrees and write an annotated
.phasergun.yaml configuration file. Existing directories are left
untouched; an existing configuration file is only overwritten with
--force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .phasergun.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	subtrees := []string{
		fingerprint.ProceduresDir,
		filepath.Join(fingerprint.ContextDir, "General"),
		filepath.Join(fingerprint.ContextDir, fingerprint.PromptDir),
	}
	for _, dir := range subtrees {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	cfgPath := filepath.Join(root, config.ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (use --force to overwrite)\n", config.ConfigFileName)
		return nil
	}
	if err := os.WriteFile(cfgPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", root)
	return nil
}
