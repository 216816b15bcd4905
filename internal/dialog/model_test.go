package dialog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/form"
)

func TestPayloadHelpers(t *testing.T) {
	raw := []byte(`{"material_id": 42, "order_datetime": "01.03.2025 12:00"}`)
	var p Payload
	require.NoError(t, json.Unmarshal(raw, &p))

	id, ok := GetInt64(p, KeyMaterialID)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	s, ok := GetString(p, KeyDatetime)
	require.True(t, ok)
	assert.Equal(t, "01.03.2025 12:00", s)

	_, ok = GetInt64(p, KeyCountryID)
	assert.False(t, ok)
	_, ok = GetString(p, KeyMaterialID)
	assert.False(t, ok)
}

func TestDecodeForm(t *testing.T) {
	f, err := decodeForm(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = decodeForm([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = decodeForm([]byte(`{"template_id": 7}`))
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = decodeForm([]byte(`{"template_id": "семь"`))
	require.Error(t, err)
	assert.True(t, form.IsConfigError(err), "got %v", err)
}
