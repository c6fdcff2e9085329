package mtcli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hnpf/MTCLI/pkg/app"
)

// prompter asks line based questions before the reader takes the terminal.
type prompter struct {
	in  *app.Input
	out io.Writer
}

func newPrompter(in *app.Input, out io.Writer) *prompter {
	return &prompter{in: in, out: out}
}

// line returns the trimmed answer. At end of input it returns "" and
// io.EOF.
func (p *prompter) line(question string) (string, error) {
	fmt.Fprint(p.out, question)
	answer, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		fmt.Fprintln(p.out)
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// confirm asks a y/n question. An empty answer or end of input picks def.
func (p *prompter) confirm(question string, def bool) (bool, error) {
	hint := " [y/N] "
	if def {
		hint = " [Y/n] "
	}
	for {
		answer, err := p.line(question + hint)
		if errors.Is(err, io.EOF) {
			return def, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// choose asks for a number in 1..n and returns its zero based index, or -1
// when the user cancels with an empty answer or end of input.
func (p *prompter) choose(question string, n int) (int, error) {
	for {
		answer, err := p.line(fmt.Sprintf("%s [1-%d, empty to cancel]: ", question, n))
		if errors.Is(err, io.EOF) {
			return -1, nil
		}
		if err != nil {
			return -1, err
		}
		if answer == "" {
			return -1, nil
		}
		i, err := strconv.Atoi(answer)
		if err == nil && i >= 1 && i <= n {
			return i - 1, nil
		}
		fmt.Fprintf(p.out, "%q is not a number between 1 and %d.\n", answer, n)
	}
}
