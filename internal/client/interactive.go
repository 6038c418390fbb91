package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxInputLine bounds one line of interactive input. Stackwalk JSON pasted
// as a prompt argument can be large.
const maxInputLine = 16 << 20

// lineReader asks questions on out and reads answers from in.
type lineReader struct {
	sc  *bufio.Scanner
	out io.Writer
}

// ask returns the trimmed answer, or io.EOF once input ends.
func (r *lineReader) ask(label string) (string, error) {
	fmt.Fprintf(r.out, "%s: ", label)
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.sc.Text()), nil
}

// askRequired repeats the question until the answer is not empty.
func (r *lineReader) askRequired(label string) (string, error) {
	for {
		v, err := r.ask(label)
		if err != nil || v != "" {
			return v, err
		}
		fmt.Fprintln(r.out, "A value is required.")
	}
}

func (r *lineReader) confirm(label string) (bool, error) {
	v, err := r.ask(label + " [y/N]")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Interactive runs a menu-driven session reading answers from in. It ends
// on the exit choice or at end of input. Errors from a single action are
// printed and the menu is shown again.
func (c *Client) Interactive(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxInputLine)
	r := &lineReader{sc: sc, out: c.out}

	fmt.Fprintln(c.out, "MCP interactive client")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "Select an action:")
		fmt.Fprintln(c.out, "1. List tools")
		fmt.Fprintln(c.out, "2. List prompts")
		fmt.Fprintln(c.out, "3. Call a tool")
		fmt.Fprintln(c.out, "4. Call a prompt")
		fmt.Fprintln(c.out, "5. Exit")

		choice, err := r.ask("Your choice")
		if err != nil {
			return endOfInput(err)
		}

		switch choice {
		case "1":
			err = c.browseTools(ctx, r)
		case "2":
			err = c.browsePrompts(ctx, r)
		case "3":
			err = c.interactiveCallTool(ctx, r)
		case "4":
			err = c.interactiveCallPrompt(ctx, r)
		case "5", "q", "quit", "exit":
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(c.out, "Please choose 1-5.")
			continue
		}

		switch {
		case err == nil, errors.Is(err, ErrToolFailed):
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Client) browseTools(ctx context.Context, r *lineReader) error {
	if err := c.ListTools(ctx, false); err != nil {
		return err
	}
	ok, err := r.confirm("View tool details?")
	if err != nil || !ok {
		return err
	}
	name, err := r.askRequired("Tool name")
	if err != nil {
		return err
	}
	return c.DescribeTool(ctx, name)
}

func (c *Client) browsePrompts(ctx context.Context, r *lineReader) error {
	if err := c.ListPrompts(ctx, false); err != nil {
		return err
	}
	ok, err := r.confirm("View prompt details?")
	if err != nil || !ok {
		return err
	}
	name, err := r.askRequired("Prompt name")
	if err != nil {
		return err
	}
	return c.DescribePrompt(ctx, name)
}

func (c *Client) interactiveCallTool(ctx context.Context, r *lineReader) error {
	name, err := r.askRequired("Tool name")
	if err != nil {
		return err
	}
	t, err := c.findTool(ctx, name)
	if err != nil {
		return err
	}

	s := decodeSchema(t.InputSchema)
	args := make(map[string]any)
	for _, prop := range s.order() {
		p := s.Properties[prop]
		label := fmt.Sprintf("%s (%s)", prop, p.typeName())
		if p.Description != "" {
			label += " - " + p.Description
		}

		var raw string
		if s.required(prop) {
			raw, err = r.askRequired(label + " [required]")
		} else {
			raw, err = r.ask(label)
		}
		if err != nil {
			return err
		}
		if raw == "" {
			continue
		}

		v, err := Coerce(raw, p.typeName())
		if err != nil {
			fmt.Fprintf(c.out, "Warning: %s: %v; sending it as a string\n", prop, err)
		}
		args[prop] = v
	}

	fmt.Fprintf(c.out, "\nCalling tool %s...\n", t.Name)
	return c.CallTool(ctx, t.Name, args)
}

func (c *Client) interactiveCallPrompt(ctx context.Context, r *lineReader) error {
	name, err := r.askRequired("Prompt name")
	if err != nil {
		return err
	}
	p, err := c.findPrompt(ctx, name)
	if err != nil {
		return err
	}

	args := make(map[string]string)
	for _, a := range p.Arguments {
		label := a.Name
		if a.Description != "" {
			label += " - " + a.Description
		}

		var v string
		if a.Required {
			v, err = r.askRequired(label + " [required]")
		} else {
			v, err = r.ask(label)
		}
		if err != nil {
			return err
		}
		if v != "" {
			args[a.Name] = v
		}
	}

	fmt.Fprintf(c.out, "\nGetting prompt %s...\n", p.Name)
	return c.CallPrompt(ctx, p.Name, args)
}
