// Package safety holds the confirmation prompt guarding destructive
// commands such as restore and prune.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks the operator to confirm a destructive action.
// Dry runs always decline without prompting; --yes and --force accept
// without prompting. A nil in reads as an empty answer.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.DryRun {
		return false, nil
	}
	if opts.Yes || opts.Force {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	if in == nil {
		return false, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.TrimSpace(strings.ToLower(line))
	return ans == "y" || ans == "yes", nil
}
