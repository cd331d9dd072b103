package main

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promethium-examples/runner/internal/api"
	"promethium-examples/runner/internal/logging"
	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/internal/services"
	"promethium-examples/runner/pkg/models"
)

func submitMolecule(t *testing.T, client *services.HTTPWorkflowClient, name, molecule string) string {
	t.Helper()
	wf, err := client.Submit(context.Background(), &models.WorkflowRequest{
		Name: name,
		Kind: models.WorkflowKindConformerSearch,
		Parameters: models.WorkflowParameters{
			Molecule: models.Molecule{Base64Data: base64.StdEncoding.EncodeToString([]byte(molecule)), FileType: "smi"},
		},
	})
	require.NoError(t, err)
	return wf.ID
}

func TestWriteResults(t *testing.T) {
	sandbox := httptest.NewServer(api.NewRouter(api.NewServer(2, logging.NewNop()), "", logging.NewNop()))
	t.Cleanup(sandbox.Close)

	ctx := context.Background()
	client := services.NewHTTPWorkflowClient(sandbox.URL)
	outDir := t.TempDir()
	w := results.NewWriter(outDir)

	id := submitMolecule(t, client, "ether", "CCOCC")

	// first poll only moves the workflow to RUNNING
	_, err := writeResults(ctx, client, nil, w, id)
	assert.ErrorContains(t, err, "still RUNNING")

	path, err := writeResults(ctx, client, nil, w, id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "ether_results.json"), path)

	failed := submitMolecule(t, client, "empty", "   ")
	_, err = writeResults(ctx, client, nil, w, failed)
	require.Error(t, err)
	_, err = writeResults(ctx, client, nil, w, failed)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrWorkflowFailed)
	assert.Contains(t, err.Error(), "FAILED")

	_, statErr := os.Stat(filepath.Join(outDir, "empty_results.json"))
	assert.True(t, os.IsNotExist(statErr))
}
