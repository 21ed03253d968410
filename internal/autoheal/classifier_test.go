package autoheal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/models"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		text string
		want models.Classification
	}{
		{name: "401 is auth", text: "server returned 401 Unauthorized", want: models.ClassAuth},
		{name: "expired token is auth", text: "token expired, please login again", want: models.ClassAuth},
		{name: "permission denied is auth", text: "permission denied (publickey)", want: models.ClassAuth},
		{name: "connection refused is network", text: "dial tcp: connection refused", want: models.ClassNetwork},
		{name: "timeout is network", text: "request timeout after 30s", want: models.ClassNetwork},
		{name: "dns failure is network", text: "lookup api.internal: no such host", want: models.ClassNetwork},
		{name: "503 is network", text: "upstream returned 503 Service Unavailable", want: models.ClassNetwork},
		{name: "unmatched is unknown", text: "segmentation fault", want: models.ClassUnknown},
		{name: "empty is unknown", text: "", want: models.ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifierFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- classification: network
  keywords: ["flux capacitor offline"]
`), 0644))

	c, err := NewClassifierFromFile(path)
	require.NoError(t, err)

	// Extra patterns match before the builtin set.
	assert.Equal(t, models.ClassNetwork, c.Classify("flux capacitor offline"))
	// Builtins still apply.
	assert.Equal(t, models.ClassAuth, c.Classify("401 unauthorized"))
}

func TestClassifierFromFileRejectsBadClassification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- classification: cosmic
  keywords: ["ray"]
`), 0644))

	_, err := NewClassifierFromFile(path)
	require.Error(t, err)
}
