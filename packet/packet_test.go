package packet_test

import (
	"testing"

	"github.com/nplabs/meshrouter/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := packet.New("lsr", packet.TypeMessage, "A", "D", 5)
	p.Headers[packet.HeaderTS] = int64(1000)
	p.SetPath([]string{"A", "B"})
	p.Payload = "HOLA D"
	id := p.EnsureMsgID()
	require.NotEmpty(t, id)

	data, err := packet.Encode(p)
	require.NoError(t, err)

	decoded, err := packet.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, p.Proto, decoded.Proto)
	assert.Equal(t, p.Type, decoded.Type)
	assert.Equal(t, p.From, decoded.From)
	assert.Equal(t, p.To, decoded.To)
	assert.Equal(t, p.TTL, decoded.TTL)
	assert.Equal(t, p.Payload, decoded.Payload)
	assert.Equal(t, id, decoded.MsgID())
	assert.Equal(t, []string{"A", "B"}, decoded.GetPath())
}

func TestDecodeUnknownHeaderKeysPreserved(t *testing.T) {
	data := []byte(`{"proto":"flooding","type":"hello","from":"A","to":"broadcast","ttl":1,"headers":{"msg_id":"x","custom_key":"custom_value"},"payload":""}`)
	p, err := packet.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "custom_value", p.Headers["custom_key"])

	// and it survives a re-encode
	out, err := packet.Encode(p)
	require.NoError(t, err)
	p2, err := packet.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "custom_value", p2.Headers["custom_key"])
}

func TestDecodeMissingRequiredField(t *testing.T) {
	cases := []string{
		`{"type":"hello","from":"A","to":"broadcast","ttl":1}`,
		`{"proto":"p","from":"A","to":"broadcast","ttl":1}`,
		`{"proto":"p","type":"hello","to":"broadcast","ttl":1}`,
		`{"proto":"p","type":"hello","from":"A","ttl":1}`,
		`{"proto":"p","type":"hello","from":"A","to":"broadcast"}`,
	}
	for _, c := range cases {
		_, err := packet.Decode([]byte(c))
		require.Error(t, err)
		var malformed *packet.MalformedPacket
		assert.ErrorAs(t, err, &malformed)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := packet.Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeTypeMismatch(t *testing.T) {
	_, err := packet.Decode([]byte(`{"proto":1,"type":"hello","from":"A","to":"broadcast","ttl":1}`))
	require.Error(t, err)
}

func TestDecodeNegativeTTLRejected(t *testing.T) {
	_, err := packet.Decode([]byte(`{"proto":"p","type":"hello","from":"A","to":"broadcast","ttl":-1}`))
	require.Error(t, err)
}

func TestEnsureMsgIDStable(t *testing.T) {
	p := packet.New("lsr", packet.TypeHello, "A", packet.Broadcast, 1)
	id1 := p.EnsureMsgID()
	id2 := p.EnsureMsgID()
	assert.Equal(t, id1, id2)
}

func TestDecrementTTL(t *testing.T) {
	p := packet.New("lsr", packet.TypeInfo, "A", packet.Broadcast, 1)
	assert.False(t, p.DecrementTTL())
	assert.Equal(t, 0, p.TTL)

	p2 := packet.New("lsr", packet.TypeInfo, "A", packet.Broadcast, 2)
	assert.True(t, p2.DecrementTTL())
	assert.Equal(t, 1, p2.TTL)
}

func TestClonedHeadersDontAlias(t *testing.T) {
	p := packet.New("lsr", packet.TypeInfo, "A", packet.Broadcast, 5)
	p.SetPath([]string{"A"})
	clone := p.Clone()
	clone.SetPath([]string{"A", "B"})
	assert.Equal(t, []string{"A"}, p.GetPath())
	assert.Equal(t, []string{"A", "B"}, clone.GetPath())
}
