package migrate

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedVersions(t *testing.T) {
	versions, err := embeddedVersions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	assert.Equal(t, "0001_profiles", versions[0])
	assert.True(t, sort.StringsAreSorted(versions))
	for _, v := range versions {
		script, readErr := migrationsFS.ReadFile("migrations/" + v + ".sql")
		require.NoError(t, readErr)
		assert.NotEmpty(t, script, v)
	}
}
