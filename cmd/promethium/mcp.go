package main

import (
	"github.com/spf13/cobra"

	"promethium-examples/runner/internal/mcp"
	"promethium-examples/runner/internal/payload"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve workflow tools over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  serveMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&templatePath, "template", "", "workflow template file (YAML or JSON)")
	rootCmd.AddCommand(mcpCmd)
}

func serveMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tmpl, err := payload.DefaultTemplate()
	if templatePath != "" {
		tmpl, err = payload.LoadTemplate(templatePath)
	}
	if err != nil {
		return err
	}
	builder, err := payload.NewBuilder(tmpl, a.cfg.Resources.GPUType)
	if err != nil {
		return err
	}

	a.logger.Info("serving MCP tools on stdio")
	return mcp.NewServer(Version, builder, a.client, a.runner).ServeStdio()
}
