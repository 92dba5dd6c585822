package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayuer/kira-go/internal/agent"
	"github.com/dayuer/kira-go/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kira status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("🤖 kira Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath())
	fmt.Printf("Workspace: %s\n", cfg.WorkspaceDir())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	if e := providers.FindByModel(cfg.Agent.Model); e != nil {
		fmt.Printf("Provider: %s\n", e.Label())
	}
	fmt.Printf("Tool rounds: %d (at most %d model calls per turn)\n", cfg.Agent.MaxToolLoop, cfg.Agent.MaxToolLoop+1)
	fmt.Printf("Memory: %s (%d chunks per session)\n", cfg.Memory.Backend, cfg.Bot.MaxMemoryLength)

	if stickers, err := agent.LoadStickers(cfg.StickerDir()); err == nil {
		fmt.Printf("Stickers: %d\n", stickers.Len())
	}

	fmt.Println("\nAdapters:")
	if len(cfg.Adapters) == 0 {
		fmt.Println("  (none)")
	}
	for _, a := range cfg.Adapters {
		fmt.Printf("  %s (%s): ws://%s:%d/ws/%s\n", a.Name, a.Platform, cfg.Gateway.Host, cfg.Gateway.Port, a.Name)
	}
	return nil
}
