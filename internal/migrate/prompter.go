package migrate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/temirov/pdsmigrate/internal/utils/flags"
)

const (
	promptWithDefaultTemplateConstant = "%s (%s): "
	promptTemplateConstant            = "%s: "
	confirmPromptTemplateConstant     = "%s [y/N]: "
	validationMessageTemplateConstant = "  %s\n"
	confirmationRetryMessageConstant  = "Answer yes or no"
	promptClosedMessageConstant       = "input closed before the prompt was answered"
	passwordReadTemplateConstant      = "unable to read password: %w"
	newlineConstant                   = "\n"
)

// ErrPromptClosed is returned when input ends before a prompt is answered.
var ErrPromptClosed = errors.New(promptClosedMessageConstant)

// Validator returns an empty string for acceptable input and a message otherwise.
type Validator func(value string) string

// Prompter collects answers from the person running the migration.
type Prompter interface {
	Input(prompt string, defaultValue string, validate Validator) (string, error)
	Password(prompt string, validate Validator) (string, error)
	Confirm(prompt string) (bool, error)
	WaitForEnter(prompt string) error
}

// PasswordReader reads a secret without echoing it.
type PasswordReader func() (string, error)

// IOPrompter reads answers line by line from an io.Reader.
type IOPrompter struct {
	reader         *bufio.Reader
	writer         io.Writer
	passwordReader PasswordReader
}

// NewIOPrompter constructs a prompter from the provided reader and writer.
// Passwords are read without echo when input is a terminal.
func NewIOPrompter(input io.Reader, output io.Writer) *IOPrompter {
	prompter := &IOPrompter{reader: bufio.NewReader(input), writer: output}
	if inputFile, isFile := input.(*os.File); isFile && term.IsTerminal(int(inputFile.Fd())) {
		fileDescriptor := int(inputFile.Fd())
		prompter.passwordReader = func() (string, error) {
			secret, readError := term.ReadPassword(fileDescriptor)
			if writeError := prompter.write(newlineConstant); writeError != nil {
				return "", writeError
			}
			return string(secret), readError
		}
	}
	return prompter
}

// Input asks for a value, offering defaultValue when the answer is blank, and
// repeats the prompt until validate accepts the answer.
func (prompter *IOPrompter) Input(prompt string, defaultValue string, validate Validator) (string, error) {
	formattedPrompt := fmt.Sprintf(promptTemplateConstant, prompt)
	if len(defaultValue) > 0 {
		formattedPrompt = fmt.Sprintf(promptWithDefaultTemplateConstant, prompt, defaultValue)
	}

	for {
		if writeError := prompter.write(formattedPrompt); writeError != nil {
			return "", writeError
		}
		answer, readError := prompter.readLine()
		if readError != nil {
			return "", readError
		}
		if len(answer) == 0 {
			answer = defaultValue
		}
		if accepted, reportError := prompter.accept(answer, validate); reportError != nil || accepted {
			return answer, reportError
		}
	}
}

// Password asks for a secret and repeats the prompt until validate accepts it.
func (prompter *IOPrompter) Password(prompt string, validate Validator) (string, error) {
	for {
		if writeError := prompter.write(fmt.Sprintf(promptTemplateConstant, prompt)); writeError != nil {
			return "", writeError
		}
		secret, readError := prompter.readSecret()
		if readError != nil {
			return "", readError
		}
		if accepted, reportError := prompter.accept(secret, validate); reportError != nil || accepted {
			return secret, reportError
		}
	}
}

// Confirm asks a yes/no question. A blank answer means no.
func (prompter *IOPrompter) Confirm(prompt string) (bool, error) {
	for {
		if writeError := prompter.write(fmt.Sprintf(confirmPromptTemplateConstant, prompt)); writeError != nil {
			return false, writeError
		}
		answer, readError := prompter.readLine()
		if readError != nil {
			return false, readError
		}
		if len(answer) == 0 {
			return false, nil
		}
		confirmed, parseError := flags.ParseToggle(answer)
		if parseError == nil {
			return confirmed, nil
		}
		if writeError := prompter.write(fmt.Sprintf(validationMessageTemplateConstant, confirmationRetryMessageConstant)); writeError != nil {
			return false, writeError
		}
	}
}

// WaitForEnter shows prompt and blocks until a line is entered.
func (prompter *IOPrompter) WaitForEnter(prompt string) error {
	if writeError := prompter.write(prompt); writeError != nil {
		return writeError
	}
	_, readError := prompter.readLine()
	return readError
}

func (prompter *IOPrompter) accept(value string, validate Validator) (bool, error) {
	if validate == nil {
		return true, nil
	}
	message := validate(value)
	if len(message) == 0 {
		return true, nil
	}
	return false, prompter.write(fmt.Sprintf(validationMessageTemplateConstant, message))
}

func (prompter *IOPrompter) readSecret() (string, error) {
	if prompter.passwordReader == nil {
		return prompter.readLine()
	}
	secret, readError := prompter.passwordReader()
	if readError != nil {
		return "", fmt.Errorf(passwordReadTemplateConstant, readError)
	}
	return strings.TrimSpace(secret), nil
}

func (prompter *IOPrompter) readLine() (string, error) {
	line, readError := prompter.reader.ReadString('\n')
	if readError != nil {
		if !errors.Is(readError, io.EOF) {
			return "", readError
		}
		if len(line) == 0 {
			return "", ErrPromptClosed
		}
	}
	return strings.TrimSpace(line), nil
}

func (prompter *IOPrompter) write(text string) error {
	if prompter.writer == nil {
		return nil
	}
	_, writeError := io.WriteString(prompter.writer, text)
	return writeError
}
