package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/pkg/ocpkg"
)

func init() {
	unpackCmd.SilenceErrors = true
	unpackCmd.SilenceUsage = true
}

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Unpack an ocpkg container back to its original files",
	Long: `Unpack a container (.ocpkg) back to its original files, verifying
every item's Encrypt-then-MAC tag and the manifest's own authentication
along the way. A single bit flipped anywhere in an item's ciphertext is
reported as an authentication failure instead of silently corrupted output.

If no password is provided, you will be prompted to enter one
interactively.

Examples:
  # Unpack interactively (prompts for password)
  ocpkg unpack -i bundle.ocpkg -d output-dir

  # Unpack with password on command line
  ocpkg unpack -i bundle.ocpkg -d output-dir -p "mypassword"

  # Read password from stdin (for scripts)
  echo "mypassword" | ocpkg unpack -i bundle.ocpkg -d output-dir -P`,
	RunE: runUnpack,
}

var (
	unpackInput         string
	unpackOutputDir     string
	unpackPassword      string
	unpackPasswordStdin bool
	unpackKeyfiles      []string
	unpackKeyfileOrder  bool
	unpackQuiet         bool
	unpackYes           bool
)

func init() {
	rootCmd.AddCommand(unpackCmd)

	unpackCmd.Flags().StringVarP(&unpackInput, "input", "i", "", "Input .ocpkg file to unpack")
	unpackCmd.Flags().StringVarP(&unpackOutputDir, "output-dir", "d", ".", "Directory to write unpacked items into")

	unpackCmd.Flags().StringVarP(&unpackPassword, "password", "p", "", "Unpacking password")
	unpackCmd.Flags().BoolVarP(&unpackPasswordStdin, "password-stdin", "P", false, "Read password from stdin")

	unpackCmd.Flags().StringArrayVar(&unpackKeyfiles, "keyfile", nil, "Keyfile to mix into the password (can be specified multiple times)")
	unpackCmd.Flags().BoolVar(&unpackKeyfileOrder, "keyfile-ordered", false, "Keyfile order matters (default: order-independent)")

	unpackCmd.Flags().BoolVarP(&unpackQuiet, "quiet", "q", false, "Suppress progress output")
	unpackCmd.Flags().BoolVarP(&unpackYes, "yes", "y", false, "Overwrite existing output files without prompting")

	_ = unpackCmd.MarkFlagRequired("input")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	if unpackInput == "" {
		return fmt.Errorf("input file is required (-i)")
	}

	info, err := os.Stat(unpackInput)
	if err != nil {
		return fmt.Errorf("input file not found: %s", unpackInput)
	}
	if info.IsDir() {
		return fmt.Errorf("input must be a file, not a directory: %s", unpackInput)
	}

	password := unpackPassword
	if unpackPasswordStdin {
		var err error
		password, err = ReadPasswordFromStdin()
		if err != nil {
			return err
		}
	} else if password == "" {
		var err error
		password, err = ReadPasswordInteractive(false)
		if err != nil {
			return fmt.Errorf("password input: %w", err)
		}
	}

	preKey, err := resolvePreKey(password, unpackKeyfiles, unpackKeyfileOrder)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(unpackOutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	reporter := NewReporter(unpackQuiet)
	globalReporter = reporter

	in, err := os.Open(unpackInput)
	if err != nil {
		return fmt.Errorf("opening %s: %w", unpackInput, err)
	}
	defer in.Close()

	var openFiles []*os.File
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	if !unpackQuiet {
		fmt.Fprintf(os.Stderr, "Unpacking %s into %s\n", unpackInput, unpackOutputDir)
	}

	req := &ocpkg.UnpackRequest{
		Source:           in,
		CandidatePreKeys: [][]byte{clonePreKey(preKey)},
		Resolver: func(uuid.UUID) ([]byte, bool) {
			return clonePreKey(preKey), true
		},
		SinkResolver: func(item *manifest.PayloadItem) (io.Writer, error) {
			destPath := filepath.Join(unpackOutputDir, filepath.Base(item.RelativePath))
			if _, err := os.Stat(destPath); err == nil && !unpackYes {
				if !confirmOverwrite(destPath) {
					return nil, fmt.Errorf("operation cancelled for %s", destPath)
				}
			}
			f, err := os.Create(destPath)
			if err != nil {
				return nil, fmt.Errorf("creating %s: %w", destPath, err)
			}
			openFiles = append(openFiles, f)
			return f, nil
		},
	}

	m, err := ocpkg.Unpack(req)
	reporter.Finish()
	if err != nil {
		reporter.PrintError("%v", err)
		return err
	}

	if !unpackQuiet {
		var names []string
		for _, item := range m.PayloadItems {
			names = append(names, item.RelativePath)
		}
		reporter.PrintSuccess("Unpacked %d item(s): %s", len(m.PayloadItems), strings.Join(names, ", "))
	}
	return nil
}
