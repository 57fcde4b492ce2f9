package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves the engine keystore passphrase from an environment variable
// or, failing that, by prompting on the terminal. The first result is cached.
type Source struct {
	envVar string

	lookupEnv func(string) (string, bool)
	terminal  func() bool
	prompt    func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on stderr.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:    strings.TrimSpace(envVar),
		lookupEnv: os.LookupEnv,
		terminal:  func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		prompt: func() ([]byte, error) {
			fmt.Fprint(os.Stderr, "Enter engine keystore passphrase: ")
			defer fmt.Fprintln(os.Stderr)
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// Get returns the cached passphrase or resolves it on the first call.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.terminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("engine keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("engine keystore passphrase required and no terminal available")
	}
	raw, err := s.prompt()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("engine keystore passphrase cannot be empty")
	}
	return string(raw), nil
}
