package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeData(t *testing.T) {
	got, err := DecodeData("aGFsbw==")
	require.NoError(t, err)
	assert.Equal(t, "halo", string(got))

	got, err = DecodeData("data:image/png;base64,aGFsbw==")
	require.NoError(t, err)
	assert.Equal(t, "halo", string(got))

	_, err = DecodeData("data:image/png;base64,")
	assert.Error(t, err)
	_, err = DecodeData("%%%")
	assert.Error(t, err)
}

func TestRequestPayloadIndexZero(t *testing.T) {
	var p RequestPayload
	require.NoError(t, json.Unmarshal([]byte(`{"action":"set_answer","index":0,"field":"answer_text","value":"x"}`), &p))
	require.NotNil(t, p.Index)
	assert.Equal(t, 0, *p.Index)

	p = RequestPayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"submit"}`), &p))
	assert.Nil(t, p.Index)
}
