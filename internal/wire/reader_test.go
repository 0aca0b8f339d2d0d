package wire

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameReader(t *testing.T) {
	first, err := PatchElements(Texts("<a>\n<b>"), Options{EventID("7"), RetryDuration(5 * time.Second)}, nil)
	require.NoError(t, err)
	second, err := PatchSignals(`{"n":1}`, nil)
	require.NoError(t, err)

	stream := string(first) + string(Heartbeat) + string(second)
	fr := NewFrameReader(strings.NewReader(stream))

	f, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, EventPatchElements, f.Event)
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, "5000", f.Retry)
	assert.Equal(t, []string{"<a>", "<b>"}, f.Payload(ElementsLiteral))
	assert.Equal(t, first, f.Raw)
	assert.False(t, f.IsHeartbeat())

	f, err = fr.Next()
	require.NoError(t, err)
	assert.True(t, f.IsHeartbeat())
	assert.Equal(t, Heartbeat, f.Raw)

	f, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, EventPatchSignals, f.Event)
	assert.Equal(t, []string{`{"n":1}`}, f.Payload(SignalsLiteral))

	_, err = fr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFrameReader_Truncated(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("event: datastar-patch-elements\ndata: elements <a>"))
	_, err := fr.Next()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestFrame_PayloadIgnoresOtherTags(t *testing.T) {
	f := Frame{Data: []string{"selector #a", "elements <p>", "elements"}}
	assert.Equal(t, []string{"<p>"}, f.Payload(ElementsLiteral))
	assert.Nil(t, f.Payload(SignalsLiteral))
}
