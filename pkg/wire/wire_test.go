package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello namespace payload")
	require.NoError(t, WriteMessage(&buf, 42, 0, OpQuery, payload))

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, int32(42), msg.Header.RequestID)
	require.Equal(t, OpQuery, msg.Header.Opcode)
	require.Equal(t, payload, msg.Payload)
}

func TestReadMessageRejectsOversizeHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, 1, 0, OpInsert, nil))
	raw := buf.Bytes()
	raw[0] = 0xFF
	raw[1] = 0xFF
	raw[2] = 0xFF
	raw[3] = 0x7F

	_, err := ReadMessage(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestNamespaceValidity(t *testing.T) {
	require.True(t, Namespace("test.users").Valid())
	require.False(t, Namespace("").Valid())
	require.False(t, Namespace("nodot").Valid())
	require.False(t, Namespace(".users").Valid())
}

func TestNamespaceAdminPseudoCommand(t *testing.T) {
	verb, ok := Namespace("admin.$cmd.sys.killop").IsAdminPseudoCommand()
	require.True(t, ok)
	require.Equal(t, AdminVerbKillOp, verb)

	_, ok = Namespace("test.users").IsAdminPseudoCommand()
	require.False(t, ok)
}

func TestNamespaceIsCommand(t *testing.T) {
	require.True(t, Namespace("test.$cmd").IsCommand())
	require.False(t, Namespace("test.users").IsCommand())
}
