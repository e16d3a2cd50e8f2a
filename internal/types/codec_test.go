package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTripRequest(t *testing.T, req *CommandRequest) *CommandRequest {
	t.Helper()
	data, err := req.Marshal()
	require.NoError(t, err)

	var got CommandRequest
	require.NoError(t, got.Unmarshal(data))
	return &got
}

func TestRequestRoundTrip(t *testing.T) {
	requests := []*CommandRequest{
		NewHget("score", "u1"),
		NewHgetall("score"),
		NewHmget("score", []string{"u1", "u2", "u3"}),
		NewHset("score", "u1", IntegerValue(10)),
		NewHmset("score", []KvPair{
			Pair("u1", IntegerValue(10)),
			Pair("u2", StringValue("hello")),
			Pair("u3", BoolValue(true)),
		}),
		NewHdel("score", "u1"),
		NewHmdel("score", []string{"u1", "u2"}),
		NewHexist("score", "u1"),
		NewHmexist("score", []string{"u1", "u2"}),
		NewSubscribe("news"),
		NewUnsubscribe("news", 7),
		NewPublish("news", []Value{StringValue("hi"), FloatValue(2.5)}),
	}

	for _, req := range requests {
		t.Run(req.CommandName(), func(t *testing.T) {
			got := roundTripRequest(t, req)
			assert.Equal(t, req, got)
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		StringValue("hello"),
		StringValue(""),
		BinaryValue([]byte{0x00, 0x01, 0xff}),
		IntegerValue(42),
		IntegerValue(-42),
		FloatValue(3.14159),
		FloatValue(-0.5),
		BoolValue(true),
		BoolValue(false),
	}

	for _, v := range values {
		data, err := v.Marshal()
		require.NoError(t, err)

		var got Value
		require.NoError(t, got.Unmarshal(data))
		assert.Equal(t, v, got)
	}
}

func TestEmptyValueRoundTrip(t *testing.T) {
	var v Value
	data, err := v.Marshal()
	require.NoError(t, err)
	assert.Empty(t, data)

	var got Value
	require.NoError(t, got.Unmarshal(data))
	assert.True(t, got.IsNone())
}

func TestResponseRoundTrip(t *testing.T) {
	responses := []*CommandResponse{
		OK(),
		FromValue(IntegerValue(10)),
		FromValues([]Value{StringValue("a"), {}, BoolValue(false)}),
		FromPairs([]KvPair{Pair("k1", StringValue("v1")), Pair("k2", IntegerValue(2))}),
		ErrorResponse(StatusNotFound, "Not found: table:score, key:u2"),
		ErrorResponse(StatusInternalError, "boom"),
	}

	for _, resp := range responses {
		data, err := resp.Marshal()
		require.NoError(t, err)

		var got CommandResponse
		require.NoError(t, got.Unmarshal(data))
		assert.Equal(t, resp, &got)
	}
}

func TestPlaceholderValueKeepsPosition(t *testing.T) {
	resp := FromValues([]Value{IntegerValue(1), {}, IntegerValue(3)})
	data, err := resp.Marshal()
	require.NoError(t, err)

	var got CommandResponse
	require.NoError(t, got.Unmarshal(data))
	require.Len(t, got.Values, 3)
	assert.True(t, got.Values[1].IsNone())
	assert.Equal(t, int64(3), got.Values[2].Int)
}

func TestEmptyRequestDecodesToNilCommand(t *testing.T) {
	req := &CommandRequest{}
	data, err := req.Marshal()
	require.NoError(t, err)
	assert.Empty(t, data)

	var got CommandRequest
	require.NoError(t, got.Unmarshal(data))
	assert.Nil(t, got.Cmd)
	assert.Equal(t, "none", got.CommandName())
}

func TestUnmarshalGarbageFails(t *testing.T) {
	var req CommandRequest
	assert.Error(t, req.Unmarshal([]byte{0xff, 0xff, 0xff}))
}
