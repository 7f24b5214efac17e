package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

// errAborted is returned when the user abandons a prompt.
var errAborted = errors.New("aborted")

// Prompter collects input from the user.
type Prompter interface {
	// Credentials asks for a password, and for the email unless one is given.
	Credentials(email string) (string, string, error)
	// Email asks for an email address.
	Email() (string, error)
	// Code asks for a verification code. hint describes the challenge.
	Code(hint string) (string, error)
}

// FormPrompter prompts with huh forms.
type FormPrompter struct{}

func (FormPrompter) Credentials(email string) (string, string, error) {
	var password string
	fields := []huh.Field{}
	if email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Value(&email).
			Validate(required("email")))
	}
	fields = append(fields, huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Validate(required("password")))
	if err := run(huh.NewForm(huh.NewGroup(fields...))); err != nil {
		return "", "", err
	}
	return email, password, nil
}

func (FormPrompter) Email() (string, error) {
	var email string
	err := run(huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(&email).Validate(required("email")),
	)))
	return email, err
}

func (FormPrompter) Code(hint string) (string, error) {
	var code string
	err := run(huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Verification code").
			Description(hint).
			Value(&code),
	)))
	return code, err
}

func run(form *huh.Form) error {
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errAborted
		}
		return err
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// LinePrompter reads one answer per line, for pipes and scripts.
type LinePrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewLinePrompter reads answers from in and writes prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewScanner(in), out: out}
}

func (p *LinePrompter) Credentials(email string) (string, string, error) {
	if email == "" {
		var err error
		if email, err = p.ask("Email: "); err != nil {
			return "", "", err
		}
	}
	password, err := p.ask("Password: ")
	return email, password, err
}

func (p *LinePrompter) Email() (string, error) {
	return p.ask("Email: ")
}

func (p *LinePrompter) Code(hint string) (string, error) {
	return p.ask(fmt.Sprintf("Verification code (%s): ", hint))
}

func (p *LinePrompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", errAborted
	}
	return strings.TrimSpace(p.in.Text()), nil
}
