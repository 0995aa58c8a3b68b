package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// Confirmer asks yes/no questions on a terminal.
type Confirmer struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewConfirmer creates a confirmer reading answers from r and prompting on w.
func NewConfirmer(r io.Reader, w io.Writer) *Confirmer {
	return &Confirmer{reader: bufio.NewReader(r), writer: w}
}

// Confirm prompts until the user answers. An empty answer is no.
func (c *Confirmer) Confirm(ctx context.Context, question string) (bool, error) {
	for {
		if _, err := fmt.Fprint(c.writer, FormatPrompt(question+" [y/N]")); err != nil {
			return false, err
		}

		line, err := c.readLine(ctx)
		if err != nil {
			return false, err
		}

		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		fmt.Fprintln(c.writer, FormatWarning("Please answer y or n."))
	}
}

// readLine reads a trimmed line, returning early when ctx is canceled. The
// read goroutine finishes on its own once input arrives.
func (c *Confirmer) readLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	ch := make(chan result, 1)

	go func() {
		value, err := c.reader.ReadString('\n')
		ch <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-ch:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.value != "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}
