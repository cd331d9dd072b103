package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"promethium-examples/runner/internal/payload"
	"promethium-examples/runner/internal/services"
	"promethium-examples/runner/pkg/models"
)

var (
	inputSMILES  []string
	inputNames   []string
	templatePath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit workflows, wait for them and write their results",
	Long: `Build one conformer search workflow per input molecule, submit them in
order, then wait for each one and write its results to the output directory.

Without --smiles the built-in example molecules are used.`,
	Example: `  # example molecules
  promethium run

  # explicit inputs
  promethium run --smiles CCOCC --name Diethyl_Ether`,
	Args: cobra.NoArgs,
	RunE: runWorkflows,
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit workflows without waiting for them",
	Long: `Submit workflows and record their ids in the ledger. Use "promethium
collect" later to wait for them and fetch their results.`,
	Args: cobra.NoArgs,
	RunE: submitWorkflows,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, submitCmd} {
		c.Flags().StringSliceVar(&inputSMILES, "smiles", nil, "SMILES strings to submit")
		c.Flags().StringSliceVar(&inputNames, "name", nil, "labels for the SMILES strings, in the same order")
		c.Flags().StringVar(&templatePath, "template", "", "workflow template file (YAML or JSON)")
		rootCmd.AddCommand(c)
	}
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func buildRequests(gpuType string) ([]*models.WorkflowRequest, error) {
	inputs := payload.ExampleInputs()
	if len(inputSMILES) > 0 || len(inputNames) > 0 {
		var err error
		if inputs, err = payload.PairInputs(inputSMILES, inputNames); err != nil {
			return nil, err
		}
	}

	tmpl, err := payload.DefaultTemplate()
	if templatePath != "" {
		tmpl, err = payload.LoadTemplate(templatePath)
	}
	if err != nil {
		return nil, err
	}

	builder, err := payload.NewBuilder(tmpl, gpuType)
	if err != nil {
		return nil, err
	}
	return builder.Build(inputs)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := buildRequests(a.cfg.Resources.GPUType)
	if err != nil {
		return err
	}

	subs, cols, err := a.runner.Run(ctx, reqs)
	out := cmd.OutOrStdout()
	printSubmissions(out, subs)
	printCollections(out, cols)
	if err != nil {
		return err
	}
	return errors.Join(subs.Err(), cols.Err())
}

func submitWorkflows(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reqs, err := buildRequests(a.cfg.Resources.GPUType)
	if err != nil {
		return err
	}

	subs := a.runner.SubmitAll(ctx, reqs)
	printSubmissions(cmd.OutOrStdout(), subs)
	return subs.Err()
}

func printSubmissions(w io.Writer, subs services.Submissions) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tWORKFLOW ID\tSTATUS")
	for _, s := range subs {
		if s.Err != nil {
			fmt.Fprintf(tw, "%s\t-\tsubmit failed: %v\n", s.Name, s.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Workflow.Name, s.Workflow.ID, s.Workflow.Status)
	}
	tw.Flush()
}

func printCollections(w io.Writer, cols services.Collections) {
	for _, c := range cols {
		switch {
		case c.Err != nil:
			fmt.Fprintf(w, "\n%s: %v\n", c.ID, c.Err)
		default:
			fmt.Fprintf(w, "\n%s (%s) finished in %.2fs: %s\n", c.Workflow.Name, c.Workflow.Status, c.Workflow.DurationSeconds, c.ResultPath)
			if c.Summary != nil {
				fmt.Fprint(w, c.Summary.String())
			}
		}
	}
}
