package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"promethium-examples/runner/internal/repository"
	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/internal/services"
)

var collectCmd = &cobra.Command{
	Use:   "collect [ids...]",
	Short: "Wait for workflows and write their results",
	Long: `Wait for the given workflow ids and write their results. Without ids,
every workflow in the ledger whose results were not collected yet is used.`,
	RunE: collectWorkflows,
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the current status of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  showStatus,
}

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Fetch the results of a finished workflow and write them to the output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  fetchResults,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List submitted workflows recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE:  listLedger,
}

var ledgerPendingOnly bool

func init() {
	ledgerCmd.Flags().BoolVar(&ledgerPendingOnly, "pending", false, "only list workflows whose results were not collected")
	rootCmd.AddCommand(collectCmd, statusCmd, resultsCmd, ledgerCmd)
}

func collectWorkflows(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids := args
	if len(ids) == 0 {
		if a.ledger == nil {
			return errors.New("no workflow ids given and the ledger is disabled")
		}
		pending, err := a.ledger.Pending(ctx)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		for _, e := range pending {
			ids = append(ids, e.WorkflowID)
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to collect")
			return nil
		}
	}

	cols, err := a.runner.CollectAll(ctx, ids)
	printCollections(cmd.OutOrStdout(), cols)
	if err != nil {
		return err
	}
	return cols.Err()
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	wf, err := a.client.Get(ctx, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(wf)
}

func fetchResults(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := writeResults(ctx, a.client, a.ledger, results.NewWriter(a.cfg.Output.Dir), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// writeResults fetches the results of a completed workflow and writes them.
// Workflows that are still running or did not complete are rejected, as in
// the batch runner.
func writeResults(ctx context.Context, client services.WorkflowClient, ledger repository.Ledger, w services.ResultWriter, id string) (string, error) {
	wf, err := client.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch {
	case !wf.Status.IsTerminal():
		return "", fmt.Errorf("workflow %s is still %s", id, wf.Status)
	case !wf.Status.Succeeded():
		return "", &services.WorkflowError{ID: id, Status: wf.Status, Err: services.ErrWorkflowFailed, Reason: wf.Error}
	}

	res, err := client.Results(ctx, id)
	if err != nil {
		return "", err
	}
	name := wf.Name
	if name == "" {
		name = id
	}
	path, err := w.Write(name, res)
	if err != nil {
		return "", err
	}
	if ledger != nil {
		if err := ledger.MarkCollected(ctx, id, wf.Status, path); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return path, fmt.Errorf("failed to update ledger: %w", err)
		}
	}
	return path, nil
}

func listLedger(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.ledger == nil {
		return errors.New("the ledger is disabled (ledger.driver is none)")
	}

	list := a.ledger.List
	if ledgerPendingOnly {
		list = a.ledger.Pending
	}
	entries, err := list(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKFLOW ID\tNAME\tSTATUS\tSUBMITTED\tRESULTS")
	for _, e := range entries {
		result := "-"
		if e.Collected() {
			result = e.ResultPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.WorkflowID, e.Name, e.Status, e.SubmittedAt.Local().Format("2006-01-02 15:04:05"), result)
	}
	return tw.Flush()
}
