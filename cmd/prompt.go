package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/totalrecall/internal/aiconnectors"
	"github.com/totalrecall/internal/chat"
)

// PromptCommand sends a single prompt to a provider and prints the reply
func PromptCommand() *cli.Command {
	return &cli.Command{
		Name:      "prompt",
		Usage:     "Send one prompt to a provider without storing it",
		ArgsUsage: "<prompt text>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Provider to ask (openai or anthropic)",
				Value: string(aiconnectors.ProviderOpenAI),
			},
		},
		Action: func(c *cli.Context) error {
			prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if prompt == "" {
				return fmt.Errorf("a prompt is required")
			}

			cfg, err := loadConfig(c.String("config"), c.String("env-file"))
			if err != nil {
				return err
			}

			ctx := context.Background()
			gw, err := buildGateway(ctx, cfg, nil)
			if err != nil {
				return err
			}

			// no conversation state is touched, so no store is opened
			svc := chat.NewService(nil, gw)
			text, err := svc.SendPrompt(ctx, prompt, c.String("provider"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, text)
			return nil
		},
	}
}
