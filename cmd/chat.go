package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/channels"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with kira in the terminal",
	Long:  "Runs the full pipeline with a console adapter reading lines from stdin until EOF.",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Adapters = nil

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	msgBus := bus.NewMessageBus(inboundBufferSize)
	console := channels.NewConsoleChannel(channels.AdapterConfig{
		Name:         "console",
		Platform:     "console",
		Desc:         "local terminal",
		BotPID:       "kira",
		MessageTypes: []string{"text"},
	}, msgBus, os.Stdin, os.Stdout, logger)

	p, err := buildPipeline(ctx, cfg, msgBus, logger, console)
	if err != nil {
		return err
	}
	defer p.shutdown()

	fmt.Println("🤖 kira chat (Ctrl-D to quit)")

	done := p.start(ctx)
	go func() {
		if err := p.channels.StartAll(ctx); err != nil {
			logger.Error("adapter failed", "error", err)
			cancel()
		}
	}()

	select {
	case <-ctx.Done():
	case <-console.Done():
		drain(ctx, p)
	}
	cancel()
	<-done
	return nil
}

// drain waits for queued input to be consumed and for running turns to finish.
func drain(ctx context.Context, p *pipeline) {
	for p.bus.InboundSize() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	p.processor.Wait()
}
