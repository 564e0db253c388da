package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/db"
	"github.com/cimcp/cimcp/internal/repo"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cimcp in the current repository",
		Long:  "Initialize cimcp by choosing the embeddings backend, writing the config overlay, and creating the state directory.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	baseDir := os.Getenv("BASE_DIR")
	if baseDir == "" {
		root, err := repo.FindRoot()
		if err != nil {
			return fmt.Errorf("find repo root: %w", err)
		}
		baseDir = root
	}

	cmd.Printf("%s Initializing cimcp in: %s\n", infoStyle.Render("→"), baseDir)

	backend := "ollama"
	watchMode := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Embeddings backend").
				Description("ollama uses a local model server; hash is deterministic and needs nothing installed.").
				Options(
					huh.NewOption("ollama (local model server)", "ollama"),
					huh.NewOption("hash (deterministic fallback)", "hash"),
				).
				Value(&backend),
			huh.NewConfirm().
				Title("Watch for file changes?").
				Value(&watchMode),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	stateDir := filepath.Join(baseDir, config.StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	overlay := map[string]any{
		"EMBEDDINGS_BACKEND": backend,
		"WATCH_MODE":         watchMode,
	}
	data, err := yaml.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("marshal config overlay: %w", err)
	}
	overlayPath := filepath.Join(stateDir, "config.yaml")
	if err := os.WriteFile(overlayPath, data, 0644); err != nil {
		return fmt.Errorf("write config overlay: %w", err)
	}

	dbPath := filepath.Join(stateDir, "code-intelligence.db")
	if err := db.Initialize(dbPath); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	cmd.Printf("%s Wrote %s\n", successStyle.Render("✓"), overlayPath)
	cmd.Printf("%s Database ready at %s\n", successStyle.Render("✓"), dbPath)
	cmd.Printf("%s Run %s to build the index, then %s to serve.\n",
		infoStyle.Render("→"), "cimcp index", "cimcp mcp")
	return nil
}
