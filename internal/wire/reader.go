package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Frame is one parsed SSE frame.
type Frame struct {
	Event string
	ID    string
	Retry string
	Data  []string
	Raw   []byte
}

// IsHeartbeat reports whether the frame carried no fields at all.
func (f Frame) IsHeartbeat() bool {
	return f.Event == "" && f.ID == "" && f.Retry == "" && len(f.Data) == 0
}

// Payload returns the data lines starting with tag, with the tag stripped.
// Payload("elements") of "data: elements <div>" yields "<div>".
func (f Frame) Payload(tag string) []string {
	var out []string
	prefix := tag + " "
	for _, d := range f.Data {
		if strings.HasPrefix(d, prefix) {
			out = append(out, strings.TrimPrefix(d, prefix))
		}
	}
	return out
}

// FrameReader splits an SSE byte stream into frames.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. A bare blank line is returned as a
// heartbeat frame. io.EOF is returned once the stream ends between frames;
// a stream ending mid-frame yields io.ErrUnexpectedEOF.
func (fr *FrameReader) Next() (Frame, error) {
	var (
		f   Frame
		raw strings.Builder
	)
	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if raw.Len() == 0 && line == "" {
					return Frame{}, io.EOF
				}
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		raw.WriteString(line)
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if line == "" {
			f.Raw = []byte(raw.String())
			return f, nil
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
		case "id":
			f.ID = value
		case "retry":
			f.Retry = value
		case "data":
			f.Data = append(f.Data, value)
		}
	}
}
