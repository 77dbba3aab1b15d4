package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"rag-memory/internal/domain"
)

// prompter asks for values that were not given as flags.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) line(question string) (string, error) {
	fmt.Fprint(p.out, question)
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// tag keeps asking until a valid tag is entered.
func (p *prompter) tag(filename string) (domain.Tag, error) {
	for {
		s, err := p.line(fmt.Sprintf("Tag for %s [P=private, B=business, PB=both]: ", filename))
		if err != nil {
			return "", err
		}
		tag, err := domain.ParseTag(s)
		if err == nil {
			return tag, nil
		}
		fmt.Fprintln(p.out, "Please enter P, B or PB.")
	}
}
