package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dayuer/kira-go/internal/agent"
	"github.com/dayuer/kira-go/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize kira configuration and workspace",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

var workspaceTemplates = map[string]string{
	agent.PersonaFile: "You are Kira, a regular member of the chats you are in.\n\n" +
		"- Talk like a person: short messages, casual tone, no assistant phrasing\n" +
		"- You can stay silent when nothing needs a reply\n" +
		"- Remember lasting facts about people with the memory tools\n",
}

func runOnboard(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists at %s\n", path)
	} else {
		cfg := config.DefaultConfig()
		cfg.Adapters = []config.AdapterConfig{{
			Name:         "qq",
			Platform:     "qq",
			MessageTypes: []string{"text", "img", "at", "reply", "record", "emoji", "sticker", "poke", "selfie"},
			AccessToken:  uuid.NewString(),
		}}
		if err := config.Save(cfg, path); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Printf("✓ Created config at %s\n", path)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	workspace := cfg.WorkspaceDir()
	for _, dir := range []string{workspace, cfg.MemoryDir(), cfg.StickerDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	for filename, content := range workspaceTemplates {
		p := filepath.Join(workspace, filename)
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", filename, err)
		}
		fmt.Printf("  Created %s\n", filename)
	}

	fmt.Println("\nkira is ready!")
	fmt.Println("Next steps:")
	fmt.Printf("  1. Set provider.api_key in %s (or export KIRA_PROVIDER_API_KEY)\n", path)
	fmt.Println("  2. Point your bridge at ws://<host>:<port>/ws/<adapter name> with the adapter's access_token as a bearer token")
	fmt.Println("  3. Run: kira gateway   (or try it locally with: kira chat)")
	return nil
}
