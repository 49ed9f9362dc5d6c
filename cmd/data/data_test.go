package datacmd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRedactsUnlessFull(t *testing.T) {
	full := exportCmd.Flags().Lookup("full")
	require.NotNil(t, full)
	assert.Equal(t, "false", full.DefValue)
	assert.Nil(t, exportCmd.Flags().Lookup("redact"))
}

func TestImportModeFlagsAreExclusive(t *testing.T) {
	require.NotNil(t, importCmd.Flags().Lookup("merge"))

	DataCmd.SetOut(io.Discard)
	DataCmd.SetErr(io.Discard)
	DataCmd.SetArgs([]string{"import", "--input", "snapshot.json", "--skip-existing", "--merge"})
	t.Cleanup(func() {
		DataCmd.SetArgs(nil)
		flagImportSkipExisting, flagImportMerge = false, false
	})

	err := DataCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge")
	assert.Contains(t, err.Error(), "skip-existing")
}
