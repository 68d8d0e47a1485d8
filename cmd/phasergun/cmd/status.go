package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phasergun/phasergun/internal/cache"
	"github.com/phasergun/phasergun/internal/fingerprint"
)

// statusReport describes the cache state of a project without building it.
type statusReport struct {
	Project         string `json:"project"`
	CacheEnabled    bool   `json:"cacheEnabled"`
	CacheDir        string `json:"cacheDir"`
	ProjectHash     string `json:"projectHash"`
	HasProcedures   bool   `json:"hasProcedures"`
	HasContext      bool   `json:"hasContext"`
	Fingerprint     string `json:"fingerprint,omitempty"`
	CachedBuild     bool   `json:"cachedBuild"`
	CacheCurrent    bool   `json:"cacheCurrent"`
	CachedChunks    int    `json:"cachedChunks,omitempty"`
	CachedModelName string `json:"cachedModel,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache state for the project",
		Long: `Inspect the project layout and its cache generation without
building anything: whether the required subtrees exist, whether a
persisted build is present, and whether it is current for the live
file tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	s, err := newStack()
	if err != nil {
		return err
	}

	report := statusReport{
		Project:      s.root,
		CacheEnabled: s.cfg.Cache.Enabled,
		CacheDir:     s.cfg.Cache.Dir,
		ProjectHash:  cache.ProjectHash(s.root),
	}

	report.HasProcedures = dirExists(filepath.Join(s.root, fingerprint.ProceduresDir))
	report.HasContext = dirExists(filepath.Join(s.root, fingerprint.ContextDir))

	if report.HasProcedures && report.HasContext {
		if fp, err := fingerprint.Project(s.root, s.primary, s.cfg.Excludes); err == nil {
			report.Fingerprint = fp
		}
	}

	if meta := readMetadata(s.cfg.Cache.Dir, s.root); meta != nil {
		report.CachedBuild = true
		report.CachedChunks = meta.TotalChunks
		report.CachedModelName = meta.ModelVersion
		report.CacheCurrent = report.Fingerprint != "" && meta.Fingerprint == report.Fingerprint
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project:       %s\n", report.Project)
	fmt.Fprintf(out, "cache:         %s (enabled=%v)\n", report.CacheDir, report.CacheEnabled)
	fmt.Fprintf(out, "project hash:  %s\n", report.ProjectHash)
	fmt.Fprintf(out, "procedures:    %s\n", presence(report.HasProcedures))
	fmt.Fprintf(out, "context:       %s\n", presence(report.HasContext))
	switch {
	case !report.CachedBuild:
		fmt.Fprintln(out, "cached build:  none")
	case report.CacheCurrent:
		fmt.Fprintf(out, "cached build:  current (%d chunks, model %s)\n",
			report.CachedChunks, report.CachedModelName)
	default:
		fmt.Fprintf(out, "cached build:  stale (%d chunks, model %s)\n",
			report.CachedChunks, report.CachedModelName)
	}
	return nil
}

// readMetadata loads the cache manifest if one exists and is readable.
func readMetadata(cacheDir, absRoot string) *cache.Metadata {
	paths := cache.NewPaths(cacheDir, absRoot)
	meta, err := cache.LoadMetadata(paths.Metadata())
	if err != nil || meta == nil {
		return nil
	}
	return meta
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
