package k8sobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"kibibytes to bytes", "16Ki", "16384"},
		{"millis to fraction", "250m", "0.25"},
		{"small millis", "100m", "0.1"},
		{"empty becomes zero", "", "0"},
		{"plain number passthrough", "42", "42"},
		{"string passthrough", "Running", "Running"},
		{"suffix inside string untouched", "5Kib", "5Kib"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TransformValue(tt.input))
		})
	}
}

func TestSlugit(t *testing.T) {
	assert.Equal(t, "default/nginx", Slugit("default", "nginx", 40))
	assert.Equal(t, "nginx", Slugit("", "nginx", 40))

	long := Slugit("verylongnamespacename", "a-deployment-with-a-very-long-name", 40)
	assert.Contains(t, long, "~")
	assert.Equal(t, "verylongnamespacena~ith-a-very-long-name", long)
}

func TestComputeChecksumStable(t *testing.T) {
	a := map[string]interface{}{
		"metadata": map[string]interface{}{"name": "p", "namespace": "n"},
		"spec":     map[string]interface{}{"replicas": float64(2)},
	}
	b := map[string]interface{}{
		"spec":     map[string]interface{}{"replicas": float64(2)},
		"metadata": map[string]interface{}{"namespace": "n", "name": "p"},
	}

	sumA, err := ComputeChecksum(a)
	require.NoError(t, err)
	sumB, err := ComputeChecksum(b)
	require.NoError(t, err)
	assert.Equal(t, sumA, sumB)

	b["spec"].(map[string]interface{})["replicas"] = float64(3)
	sumC, err := ComputeChecksum(b)
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumC)
}

func TestRecordUID(t *testing.T) {
	rec := newRecord(KindPods, "n", "p")
	assert.Equal(t, "pods_n_p", rec.UID())

	clusterScoped := newRecord(KindNodes, "", "worker-1")
	assert.Equal(t, "nodes_worker-1", clusterScoped.UID())
}

func TestRecordClone(t *testing.T) {
	rec := newRecord(KindPods, "n", "p")
	rec.Payload["phase"] = "Running"

	cp := rec.Clone()
	cp.Payload["phase"] = "Failed"
	assert.Equal(t, "Running", rec.Payload["phase"])
}

func TestExcludeKinds(t *testing.T) {
	kinds := ExcludeKinds(AllKinds(), []string{"secrets", "pvcs"})
	assert.NotContains(t, kinds, KindSecrets)
	assert.NotContains(t, kinds, KindPVCs)
	assert.Contains(t, kinds, KindPods)
	assert.Len(t, kinds, len(AllKinds())-2)
}
