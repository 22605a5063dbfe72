package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nowhere/internal/ir"
)

func TestHeadersCanonicalForm(t *testing.T) {
	got := Headers(map[string][]string{
		"X-B":          {"2", "1"},
		"Content-Type": {" application/json "},
		"  ":           {"dropped"},
	})
	assert.Equal(t, []ir.Header{
		{Name: "content-type", Value: "application/json"},
		{Name: "x-b", Value: "1"},
		{Name: "x-b", Value: "2"},
	}, got)
}

func TestNormalizeHeadersMatchesHeaders(t *testing.T) {
	got := NormalizeHeaders([]ir.Header{{Name: "X-B", Value: "2"}, {Name: "Content-Type", Value: "application/json"}, {Name: "x-b", Value: "1"}})
	want := Headers(map[string][]string{"Content-Type": {"application/json"}, "X-B": {"1", "2"}})
	assert.Equal(t, want, got)
}

func TestEncodeEnvelopeIsByteStable(t *testing.T) {
	p := ir.RawPayload{
		Status:  200,
		Headers: []ir.Header{{Name: "Content-Type", Value: "text/plain"}},
		Body:    []byte("hi"),
	}
	data, err := EncodeEnvelope(p)
	require.NoError(t, err)
	assert.Equal(t, `{"body":"aGk=","headers":[["content-type","text/plain"]],"status":200}`, string(data))

	again, err := EncodeEnvelope(ir.RawPayload{Status: 200, Headers: []ir.Header{{Name: " content-type", Value: "text/plain "}}, Body: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	p := ir.RawPayload{
		Status:  404,
		Headers: []ir.Header{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
		Body:    []byte{0x00, 0xff, '{'},
	}
	data, err := EncodeEnvelope(p)
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"missing status", `{"body":"","headers":[]}`},
		{"missing body", `{"headers":[],"status":200}`},
		{"unknown field", `{"body":"","headers":[],"status":200,"extra":1}`},
		{"bad base64", `{"body":"!!","headers":[],"status":200}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestParseBody(t *testing.T) {
	v, err := ParseBody([]byte(`{"Title":"A  B","score":1.5,"n":2,"gone":null,"list":[1,null,"x"]}`))
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{
		"Title": ir.IRString("A  B"),
		"score": ir.IRString("1.5"),
		"n":     ir.IRInt(2),
		"list":  ir.IRArray{ir.IRInt(1), ir.IRString("x")},
	}, v)
}

func TestParseBodyRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid utf8", "{\"a\":\"\xff\"}"},
		{"truncated", `{"a":`},
		{"trailing value", `{"a":1} {"b":2}`},
		{"trailing brace", `{"a":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBody([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}
