package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bushta-cyber/fastmed/pkg/interfaces"
)

func TestFileStorageRoundTrip(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.Write(interfaces.SlotAccess, "token-value"))

	value, err := storage.Read(interfaces.SlotAccess)
	require.NoError(t, err)
	assert.Equal(t, "token-value", value)

	require.NoError(t, storage.Write(interfaces.SlotAccess, "replaced"))
	value, err = storage.Read(interfaces.SlotAccess)
	require.NoError(t, err)
	assert.Equal(t, "replaced", value)
}

func TestFileStorageAbsentSlot(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	value, err := storage.Read(interfaces.SlotRefresh)
	require.NoError(t, err)
	assert.Empty(t, value)

	// Deleting a slot that was never written is not an error.
	assert.NoError(t, storage.Delete(interfaces.SlotRefresh))
}

func TestFileStorageClear(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.Write(interfaces.SlotAccess, "a"))
	require.NoError(t, storage.Write(interfaces.SlotRefresh, "r"))
	require.NoError(t, storage.Write(interfaces.SlotUser, "{}"))

	require.NoError(t, storage.Clear())

	for _, slot := range []string{interfaces.SlotAccess, interfaces.SlotRefresh, interfaces.SlotUser} {
		value, err := storage.Read(slot)
		require.NoError(t, err)
		assert.Empty(t, value)
	}
}
