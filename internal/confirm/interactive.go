package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/skillrunner/internal/models"
)

// ConsoleInteractive prompts on a terminal. It reports ErrUnsupported when
// the input is not a TTY so the chain can fall through.
type ConsoleInteractive struct {
	In  io.Reader
	Out io.Writer

	// RequireTTY, when set, declines to prompt unless In is a terminal.
	// The plain fallback backend leaves it unset.
	RequireTTY bool
}

// NewConsoleInteractive builds the standard two-backend chain: a TTY-only
// colored prompt first, then a plain reader fallback.
func NewConsoleInteractive() []Interactive {
	return []Interactive{
		&ConsoleInteractive{In: os.Stdin, Out: os.Stdout, RequireTTY: true},
		&ConsoleInteractive{In: os.Stdin, Out: os.Stdout},
	}
}

// Prompt implements Interactive. The answer is an option number or an
// option value, optionally suffixed with "!" to remember the selection.
func (c *ConsoleInteractive) Prompt(ctx context.Context, req models.ConfirmationRequest) (string, bool, error) {
	if c.RequireTTY {
		f, ok := c.In.(*os.File)
		if !ok || !isatty.IsTerminal(f.Fd()) {
			return "", false, ErrUnsupported
		}
	}

	c.render(req)

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		reader := bufio.NewReader(c.In)
		line, err := reader.ReadString('\n')
		ch <- answer{text: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return "", false, fmt.Errorf("read answer: %w", a.err)
		}
		return c.parse(req, a.text)
	}
}

func (c *ConsoleInteractive) render(req models.ConfirmationRequest) {
	title := req.Title
	if c.RequireTTY {
		title = color.New(color.Bold).Sprint(title)
	}
	fmt.Fprintf(c.Out, "\n%s\n%s\n", title, req.Message)
	for i, opt := range req.Options {
		fmt.Fprintf(c.Out, "  %d) %s\n", i+1, opt.Label)
	}
	fmt.Fprintf(c.Out, "Select (append ! to remember): ")
}

func (c *ConsoleInteractive) parse(req models.ConfirmationRequest, answer string) (string, bool, error) {
	remember := strings.HasSuffix(answer, "!")
	answer = strings.TrimSuffix(answer, "!")
	answer = strings.TrimSpace(answer)

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(req.Options) {
			return "", false, fmt.Errorf("option %d out of range", n)
		}
		return req.Options[n-1].Value, remember, nil
	}
	if req.HasOption(answer) {
		return answer, remember, nil
	}
	return "", false, fmt.Errorf("unrecognized answer %q", answer)
}
