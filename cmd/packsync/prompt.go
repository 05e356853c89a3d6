package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"packsync-go/internal/identity"
)

var stdin = bufio.NewReader(os.Stdin)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// readSecret prompts for a value without echo. Piped input is read as a line.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine("")
	}
	b, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(os.Stderr, prompt)
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readNewPassphrase prompts twice and checks both entries match.
func readNewPassphrase() (string, error) {
	first, err := readSecret("New passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase must not be empty")
	}
	second, err := readSecret("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

// promptInputs asks the user for every input p declares.
func promptInputs(p identity.Provider) (map[string]string, error) {
	inputs := make(map[string]string)
	for _, in := range p.Inputs() {
		label := in.Label
		if len(in.Choices) > 0 {
			label += " (" + strings.Join(in.Choices, ", ") + ")"
		}

		var v string
		var err error
		if in.Secret {
			v, err = readSecret(label + ": ")
		} else {
			v, err = readLine(label + ": ")
		}
		if err != nil {
			return nil, err
		}
		if v != "" {
			inputs[in.Name] = v
		}
	}
	return inputs, nil
}
