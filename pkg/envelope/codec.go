package envelope

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pacrec/pacrec/pkg/engine"
)

// Decoder reads task requests from an input stream.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(bufio.NewReader(r))}
}

// Decode reads and validates one task request.
func (d *Decoder) Decode() (*TaskRequest, error) {
	var req TaskRequest
	if err := d.dec.Decode(&req); err != nil {
		if err == io.EOF {
			return nil, engine.NewInvalidInputError("empty task input")
		}
		return nil, engine.NewInvalidInputError(fmt.Sprintf("malformed task input: %v", err))
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Encoder writes task results to an output stream, one JSON document per
// line.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one task result.
func (e *Encoder) Encode(result *TaskResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return e.w.Flush()
}
