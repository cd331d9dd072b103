package payload

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/pkg/models"
)

func mustJSON(t require.TestingT, v interface{}) string {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestDefaultTemplate(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)

	assert.Equal(t, "v1", tmpl.Version)
	assert.Equal(t, models.WorkflowKindConformerSearch, tmpl.Kind)
	assert.Equal(t, "a100", tmpl.Resources.GPUType)
	require.Len(t, tmpl.Parameters.Filters, 3)

	var order []string
	for _, f := range tmpl.Parameters.Filters {
		order = append(order, f.FilterType)
	}
	assert.Equal(t, []string{"ForceField", "ANI", "DFT"}, order)

	dft := tmpl.Parameters.Filters[2]
	assert.Equal(t, "DFT Stage 1 (Coarse Filtering)", dft.Key)
	require.NotNil(t, dft.System)
	assert.Equal(t, "b3lyp-d3", dft.System.Params["methodname"])
	require.NotNil(t, dft.JKBuilder)
	assert.Equal(t, "core_dfjk", dft.JKBuilder.Type)
	assert.Nil(t, tmpl.Parameters.Filters[0].System)
}

func TestBuildSubstitutesMoleculeFields(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	b, err := NewBuilder(tmpl, "h100")
	require.NoError(t, err)

	reqs, err := b.Build([]Input{{Name: "Diethyl_Ether", SMILES: "CCOCC"}})
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	assert.Equal(t, "Diethyl_Ether_api_conformer-search", req.Name)
	assert.Equal(t, "smi", req.Parameters.Molecule.FileType)
	decoded, err := base64.StdEncoding.DecodeString(req.Parameters.Molecule.Base64Data)
	require.NoError(t, err)
	assert.Equal(t, "CCOCC", string(decoded))
	assert.Equal(t, "h100", req.Resources.GPUType)
	assert.Equal(t, "a100", tmpl.Resources.GPUType)
	assert.Equal(t, "name_placeholder", tmpl.Name)
}

func TestBuildWireFormat(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	b, err := NewBuilder(tmpl, "")
	require.NoError(t, err)

	req, err := b.BuildOne(Input{Name: "X", SMILES: "C"})
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(mustJSON(t, req)), &wire))

	params := wire["parameters"].(map[string]interface{})
	molecule := params["molecule"].(map[string]interface{})
	assert.Equal(t, "Qw==", molecule["base64data"])
	assert.Equal(t, "smi", molecule["filetype"])

	filters := params["filters"].([]interface{})
	ff := filters[0].(map[string]interface{})
	assert.NotContains(t, ff, "system")
	dft := filters[2].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "core_dfjk", "params": map[string]interface{}{}}, dft["jk_builder"])
	assert.Equal(t, map[string]interface{}{"gpu_type": "a100"}, wire["resources"])
}

func TestBuildDoesNotShareNestedState(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	before := mustJSON(t, tmpl)

	b, err := NewBuilder(tmpl, "")
	require.NoError(t, err)
	reqs, err := b.Build(ExampleInputs())
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	reqs[0].Parameters.Params["charge"] = 1
	reqs[0].Parameters.Filters[0].Params["max_n_conformers"] = 5
	reqs[0].Parameters.Filters[2].System.Params["basisname"] = "def2-tzvp"
	reqs[0].Parameters.Filters = append(reqs[0].Parameters.Filters[:1], reqs[0].Parameters.Filters[2:]...)

	assert.Equal(t, before, mustJSON(t, tmpl))
	assert.Equal(t, 50, reqs[1].Parameters.Filters[0].Params["max_n_conformers"])
	assert.Equal(t, "def2-svp", reqs[1].Parameters.Filters[2].System.Params["basisname"])
}

func TestBuildRejectsBadInput(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	b, err := NewBuilder(tmpl, "")
	require.NoError(t, err)

	_, err = b.Build([]Input{{Name: "", SMILES: "C"}})
	assert.Error(t, err)
	_, err = b.Build([]Input{{Name: "Methane", SMILES: "  "}})
	assert.Error(t, err)
}

func TestBuildRejectsLabelsUnusableAsFileNames(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	b, err := NewBuilder(tmpl, "")
	require.NoError(t, err)

	for _, label := range []string{"batch1/Diethyl_Ether", `batch1\Diethyl_Ether`, ".", ".."} {
		_, err := b.BuildOne(Input{Name: label, SMILES: "CCOCC"})
		assert.Error(t, err, label)
	}

	// every accepted name must be writable
	req, err := b.BuildOne(Input{Name: "Diethyl_Ether.v2", SMILES: "CCOCC"})
	require.NoError(t, err)
	assert.NoError(t, results.ValidateName(req.Name))
}

func TestNewBuilderRejectsMalformedTemplate(t *testing.T) {
	_, err := NewBuilder(nil, "")
	assert.Error(t, err)

	_, err = NewBuilder(&models.WorkflowRequest{Version: "v1", Kind: "Docking"}, "")
	assert.Error(t, err)

	_, err = ParseTemplate([]byte("kind: ConformerSearch\nversion: v1\nparameters:\n  filters:\n    - key: FF\n"))
	assert.Error(t, err)
}

func TestLoadTemplateAcceptsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	doc := `{"name":"n","version":"v2","kind":"ConformerSearch","parameters":{"molecule":{},"params":{"charge":-1},"filters":[{"filtertype":"ANI","params":{"max_n_conformers":3},"key":"ANI"}]},"resources":{"gpu_type":"l4"}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", tmpl.Version)
	assert.Equal(t, -1, tmpl.Parameters.Params["charge"])
	assert.Equal(t, "l4", tmpl.Resources.GPUType)

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPairInputs(t *testing.T) {
	inputs, err := PairInputs([]string{"CCOCC", "C"}, []string{"Diethyl_Ether", "Methane"})
	require.NoError(t, err)
	assert.Equal(t, []Input{{Name: "Diethyl_Ether", SMILES: "CCOCC"}, {Name: "Methane", SMILES: "C"}}, inputs)

	_, err = PairInputs([]string{"C"}, nil)
	assert.Error(t, err)
}

func TestBuildProperties(t *testing.T) {
	tmpl, err := DefaultTemplate()
	require.NoError(t, err)
	before := mustJSON(t, tmpl)

	b, err := NewBuilder(tmpl, "")
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Za-z][A-Za-z0-9_]{0,15}`), 1, 8, rapid.ID[string]).Draw(rt, "labels")
		smiles := rapid.SliceOfN(rapid.StringMatching(`[CNOSFcno()=#\[\]@+0-9]{1,40}`), len(labels), len(labels)).Draw(rt, "smiles")

		inputs, err := PairInputs(smiles, labels)
		require.NoError(rt, err)
		reqs, err := b.Build(inputs)
		require.NoError(rt, err)
		require.Len(rt, reqs, len(inputs))

		seen := make(map[string]bool)
		for i, req := range reqs {
			assert.Equal(rt, WorkflowName(labels[i]), req.Name)
			assert.False(rt, seen[req.Name], "duplicate name %s", req.Name)
			seen[req.Name] = true

			decoded, err := base64.StdEncoding.DecodeString(req.Parameters.Molecule.Base64Data)
			require.NoError(rt, err)
			assert.Equal(rt, smiles[i], string(decoded))

			// Everything other than the substituted fields matches the template.
			clone := *req
			clone.Name = tmpl.Name
			clone.Parameters.Molecule = tmpl.Parameters.Molecule
			assert.Equal(rt, before, mustJSON(rt, &clone))
		}
		assert.Equal(rt, before, mustJSON(rt, tmpl))
	})
}
