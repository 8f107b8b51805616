package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/vault-cli/vaultguard/internal/domain"
)

// PromptPassword prompts for a password. On a terminal the input is not
// echoed; otherwise one line is read from in.
func PromptPassword(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	line, err := readLine(in)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return line, nil
}

// PromptPasswordConfirm prompts for a password and confirmation
func PromptPasswordConfirm(in io.Reader, out io.Writer, prompt string) (string, error) {
	password, err := PromptPassword(in, out, prompt)
	if err != nil {
		return "", err
	}

	confirm, err := PromptPassword(in, out, "Confirm password: ")
	if err != nil {
		return "", err
	}

	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}

	return password, nil
}

// PromptConfirm prompts for yes/no confirmation
func PromptConfirm(in io.Reader, out io.Writer, prompt string, defaultYes bool) (bool, error) {
	suffix := " [y/N]: "
	if defaultYes {
		suffix = " [Y/n]: "
	}
	fmt.Fprint(out, prompt+suffix)

	input, err := readLine(in)
	if err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

// readLine reads up to and excluding the next newline one byte at a time,
// so nothing past the line is consumed from a shared reader.
func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			if sb.Len() == 0 {
				return "", io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimRight(sb.String(), "\r"), nil
}

// terminalGate asks the user on the terminal to confirm their presence. It
// stands in for the platform biometric prompt and reports the check as
// unavailable when stdin is not a terminal.
type terminalGate struct {
	in  *os.File
	out io.Writer
}

func (g terminalGate) Evaluate(ctx context.Context, reason string) (domain.BiometricOutcome, error) {
	if g.in == nil || !term.IsTerminal(int(g.in.Fd())) {
		return domain.BiometricUnavailable, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BiometricFailure, err
	}

	ok, err := PromptConfirm(g.in, g.out, reason+". Continue?", false)
	if err != nil {
		return domain.BiometricFailure, err
	}
	if !ok {
		return domain.BiometricFailure, nil
	}
	return domain.BiometricSuccess, nil
}
