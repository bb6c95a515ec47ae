package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/tui-campuschat/internal/identity"
)

var checkCmd = &cobra.Command{
	Use:   "check [identity...]",
	Short: "Test identities against the configured policy",
	Long: `Run the configured identity policy against each argument, or against
each line of standard input when no arguments are given. In a terminal the
command prompts for identities until EOF (Ctrl+D).

Exits with status 1 if any identity is rejected.

Examples:
  campuschat check alice@uni.edu bob@gmail.com
  cat emails.txt | campuschat check`,
	Run: runCheck,
}

func runCheck(_ *cobra.Command, args []string) {
	cfg := loadConfig()
	policy, err := cfg.Policy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating identity policy: %v\n", err)
		os.Exit(1)
	}

	rejected := 0
	check := func(id string) {
		if err := policy.Validate(id); err != nil {
			rejected++
			var re *identity.RejectedError
			if errors.As(err, &re) {
				fmt.Printf("rejected  %s: %s\n", id, re.Reason)
			} else {
				fmt.Printf("rejected  %s: %v\n", id, err)
			}
			return
		}
		fmt.Printf("ok        %s\n", identity.Normalize(id))
	}

	if len(args) > 0 {
		for _, id := range args {
			check(id)
		}
	} else {
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			fmt.Printf("Policy %q. Enter identities, Ctrl+D to finish.\n", policy.Name())
		}
		if err := readLines(os.Stdin, interactive, check); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			os.Exit(1)
		}
	}

	if rejected > 0 {
		os.Exit(1)
	}
}

// readLines calls fn for every non-blank line of r.
func readLines(r io.Reader, prompt bool, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	for {
		if prompt {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
	if prompt {
		fmt.Println()
	}
	return scanner.Err()
}
