package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feedwatch/feedwatch/internal/output"
)

var errOutputConflict = errors.New("--out and --out-dir are mutually exclusive")

// addOutputFlags registers the shared rendering flags on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to <dir>/<command>.<ext>")
}

// outputOptions is the parsed form of the shared output flags.
type outputOptions struct {
	format output.Format
	file   string
	dir    string
}

func parseOutputOptions(cmd *cobra.Command) (outputOptions, error) {
	flags := cmd.Flags()
	var opts outputOptions

	raw, err := flags.GetString("output-format")
	if err != nil {
		return opts, err
	}
	if opts.format, err = output.ParseFormat(raw); err != nil {
		return opts, err
	}
	if opts.file, err = flags.GetString("out"); err != nil {
		return opts, err
	}
	if opts.dir, err = flags.GetString("out-dir"); err != nil {
		return opts, err
	}
	opts.file, opts.dir = strings.TrimSpace(opts.file), strings.TrimSpace(opts.dir)
	if opts.file != "" && opts.dir != "" {
		return opts, errOutputConflict
	}
	return opts, nil
}

// destination returns the file written for a result called name, or "" for
// the command's stdout.
func (o outputOptions) destination(name string) string {
	if o.dir != "" {
		return filepath.Join(o.dir, sanitizeFilename(name)+"."+o.format.Extension())
	}
	if o.file == "-" {
		return ""
	}
	return o.file
}

// writeRendered renders data with the command's output flags. name is the
// file stem used with --out-dir.
func writeRendered(cmd *cobra.Command, name string, data output.Tabular) error {
	opts, err := parseOutputOptions(cmd)
	if err != nil {
		return err
	}
	rendered, err := output.Render(opts.format, data)
	if err != nil {
		return err
	}

	path := opts.destination(name)
	if path == "" {
		return writeLine(cmd.OutOrStdout(), rendered)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeLine(f, rendered); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}
