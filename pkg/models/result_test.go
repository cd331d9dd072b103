package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowResultKeepsUnknownFields(t *testing.T) {
	body := `{"workflow_id":"wf-1","name":"job","artifacts":{"conformers":[{"energy":-1.5}]},"metrics":{"n":3}}`

	var res WorkflowResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, "wf-1", res.WorkflowID)
	assert.JSONEq(t, `{"n":3}`, string(res.Extra["metrics"]))
	assert.NotContains(t, res.Extra, "artifacts")

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))

	confs, err := res.Conformers()
	require.NoError(t, err)
	assert.Equal(t, []Conformer{{Energy: -1.5}}, confs)
}

func TestWorkflowResultWithoutExtra(t *testing.T) {
	var res WorkflowResult
	require.NoError(t, json.Unmarshal([]byte(`{"workflow_id":"wf-1","artifacts":{}}`), &res))
	assert.Nil(t, res.Extra)

	out, err := json.Marshal(&res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"workflow_id":"wf-1","name":"","artifacts":{}}`, string(out))
}

func TestParseWorkflowStatus(t *testing.T) {
	assert.Equal(t, WorkflowStatusCompleted, ParseWorkflowStatus(" completed "))
	assert.True(t, ParseWorkflowStatus("Cancelled").IsTerminal())
	assert.False(t, ParseWorkflowStatus("paused").IsValid())
	assert.False(t, WorkflowStatusFailed.Succeeded())
}
