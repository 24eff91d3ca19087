package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// promptLine writes prompt to w and reads one line from r. The trailing
// newline, surrounding whitespace and surrounding double quotes are removed.
func promptLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return cleanPath(line), nil
}

// cleanPath strips whitespace and the quotes a shell or file manager adds
// when a path is pasted.
func cleanPath(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"`)
}

// waitForEnter blocks until a line (or EOF) is read from r.
func waitForEnter(r *bufio.Reader, w io.Writer) {
	fmt.Fprint(w, "\nPress Enter to exit...")
	_, _ = r.ReadString('\n')
}
