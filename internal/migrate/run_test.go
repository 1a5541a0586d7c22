package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsOnDiskSorted(t *testing.T) {
	versions, err := versionsOnDisk()
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	assert.Equal(t, "0001_users", versions[0])
	assert.IsNonDecreasing(t, versions)
	for _, v := range versions {
		body, err := migrationsFS.ReadFile("migrations/" + v + ".sql")
		require.NoError(t, err, v)
		assert.NotEmpty(t, body, v)
	}
}
