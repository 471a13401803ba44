package sink

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/akave-ai/mockreceiver/internal/model"
)

const (
	HeaderLine = "--- MOCK API RECEIVED STALE ENTITIES ---"
	FooterLine = "----------------------------------------"
)

// Sink receives parsed payloads from the receiver.
type Sink interface {
	Insert(model.Payload) error
}

// Console writes each payload between HeaderLine and FooterLine.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a Console writing to w (normally os.Stdout).
func NewConsole(w io.Writer) *Console {
	return &Console{out: w}
}

// Insert renders the whole block first and emits it in one Write so blocks
// from concurrent requests never interleave.
func (c *Console) Insert(p model.Payload) error {
	body, err := p.Pretty()
	if err != nil {
		return err
	}

	var b bytes.Buffer
	b.Grow(len(HeaderLine) + len(body) + len(FooterLine) + 3)
	b.WriteString(HeaderLine)
	b.WriteByte('\n')
	b.Write(body)
	b.WriteByte('\n')
	b.WriteString(FooterLine)
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(b.Bytes()); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
