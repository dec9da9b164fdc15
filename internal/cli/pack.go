package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/ocrand"
	"github.com/ocpkg/ocpkg/internal/util"
	"github.com/ocpkg/ocpkg/pkg/ocpkg"
)

func init() {
	packCmd.SilenceErrors = true
	packCmd.SilenceUsage = true
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack one or more files into an ocpkg container",
	Long: `Pack one or more files into a single encrypted, authenticated
container (.ocpkg). Each input file becomes its own bundled item, keyed
independently off the same password.

If no password is provided, you will be prompted to enter one
interactively (with confirmation). The password is hidden while typing.

Examples:
  # Pack interactively (prompts for password)
  ocpkg pack -i secret.txt -o secret.ocpkg

  # Pack multiple files
  ocpkg pack -i a.txt -i b.txt -o bundle.ocpkg

  # Pack with paranoid cipher/MAC tier and Frameshift padding
  ocpkg pack -i data.db -o data.ocpkg --paranoid --frameshift 16,256

  # Read password from stdin (for scripts)
  echo "mypassword" | ocpkg pack -i secret.txt -o secret.ocpkg -P

  # Require a keyfile in addition to the password
  ocpkg pack -i secret.txt -o secret.ocpkg --keyfile usb.key`,
	RunE: runPack,
}

var (
	packInput         []string
	packOutput        string
	packPassword      string
	packPasswordStdin bool
	packParanoid      bool
	packFrameshift    string
	packFabric        string
	packKeyfiles      []string
	packKeyfileOrder  bool
	packQuiet         bool
	packYes           bool
)

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringArrayVarP(&packInput, "input", "i", nil, "Input file(s) to pack (can be specified multiple times)")
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "Output .ocpkg file path")

	packCmd.Flags().StringVarP(&packPassword, "password", "p", "", "Packing password")
	packCmd.Flags().BoolVarP(&packPasswordStdin, "password-stdin", "P", false, "Read password from stdin")

	packCmd.Flags().BoolVar(&packParanoid, "paranoid", false, "Use the stronger cipher/MAC tier (Serpent-CTR, HMAC-SHA3-512)")
	packCmd.Flags().StringVar(&packFrameshift, "frameshift", "", "Use Frameshift layout with random padding bounds \"min,max\"")
	packCmd.Flags().StringVar(&packFabric, "fabric", "", "Use Fabric layout with stripe length bounds \"min,max\"")

	packCmd.Flags().StringArrayVar(&packKeyfiles, "keyfile", nil, "Keyfile to mix into the password (can be specified multiple times)")
	packCmd.Flags().BoolVar(&packKeyfileOrder, "keyfile-ordered", false, "Keyfile order matters (default: order-independent)")

	packCmd.Flags().BoolVarP(&packQuiet, "quiet", "q", false, "Suppress progress output")
	packCmd.Flags().BoolVarP(&packYes, "yes", "y", false, "Overwrite output file without prompting")

	_ = packCmd.MarkFlagRequired("input")
}

func runPack(cmd *cobra.Command, args []string) error {
	if len(packInput) == 0 {
		return fmt.Errorf("at least one input file is required (-i)")
	}

	var files []string
	for _, input := range packInput {
		matches, err := filepath.Glob(input)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", input, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("input file not found: %s", input)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return fmt.Errorf("cannot access %s: %w", match, err)
			}
			if info.IsDir() {
				return fmt.Errorf("input must be a file, not a directory: %s", match)
			}
			files = append(files, match)
		}
	}

	outputFile := packOutput
	if outputFile == "" {
		if len(packInput) == 1 {
			outputFile = packInput[0] + ".ocpkg"
		} else {
			outputFile = "bundle.ocpkg"
		}
	}
	if !strings.HasSuffix(outputFile, ".ocpkg") {
		outputFile += ".ocpkg"
	}

	if _, err := os.Stat(outputFile); err == nil && !packYes {
		if !confirmOverwrite(outputFile) {
			return fmt.Errorf("operation cancelled")
		}
	}

	password := packPassword
	if packPasswordStdin {
		var err error
		password, err = ReadPasswordFromStdin()
		if err != nil {
			return err
		}
	} else if password == "" {
		var err error
		password, err = ReadPasswordInteractive(true)
		if err != nil {
			return fmt.Errorf("password input: %w", err)
		}
	}

	preKey, err := resolvePreKey(password, packKeyfiles, packKeyfileOrder)
	if err != nil {
		return err
	}

	payloadCfg, mode, err := resolvePayloadCfg()
	if err != nil {
		return err
	}

	reporter := NewReporter(packQuiet)
	globalReporter = reporter

	entropy := ocrand.NewCryptoSource()
	items := make([]*ocpkg.Item, 0, len(files))
	openFiles := make([]*os.File, 0, len(files))
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		openFiles = append(openFiles, f)
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		kdfCfg, err := ocpkg.NewKDFConfig(entropy, password)
		if err != nil {
			return err
		}
		items = append(items, &ocpkg.Item{
			Identifier:     uuid.New(),
			Type:           "file",
			RelativePath:   filepath.Base(path),
			ExternalLength: uint64(info.Size()),
			Mode:           mode,
			Source:         f,
			KDFCfg:         kdfCfg,
		})
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFile, err)
	}
	defer out.Close()

	if !packQuiet {
		fmt.Fprintf(os.Stderr, "Packing %d file(s) into %s\n", len(files), outputFile)
	}

	req := &ocpkg.PackRequest{
		Output:                 out,
		Items:                  items,
		PayloadCfg:             payloadCfg,
		Mode:                   mode,
		ManifestPreKey:         clonePreKey(preKey),
		ManifestPassphraseHint: password,
		Resolver: func(uuid.UUID) ([]byte, bool) {
			return clonePreKey(preKey), true
		},
		NonFilesystemTypes: nil,
		Entropy:            entropy,
	}

	_, err = ocpkg.Pack(req)
	reporter.Finish()
	if err != nil {
		reporter.PrintError("%v", err)
		_ = os.Remove(outputFile)
		return err
	}

	size := "unknown size"
	if info, err := os.Stat(outputFile); err == nil {
		size = util.Sizeify(info.Size())
	}
	reporter.PrintSuccess("Packed successfully: %s (%s)", outputFile, size)
	return nil
}

func resolvePayloadCfg() (*manifest.PayloadConfig, ocpkg.Mode, error) {
	mode := ocpkg.ModeStandard
	if packParanoid {
		mode = ocpkg.ModeParanoid
	}
	entropy := ocrand.NewCryptoSource()

	switch {
	case packFrameshift != "":
		min, max, err := parseBounds(packFrameshift)
		if err != nil {
			return nil, mode, fmt.Errorf("--frameshift: %w", err)
		}
		cfg, err := ocpkg.NewFrameshiftPayloadConfig(entropy, min, max)
		return cfg, mode, err
	case packFabric != "":
		min, max, err := parseBounds(packFabric)
		if err != nil {
			return nil, mode, fmt.Errorf("--fabric: %w", err)
		}
		cfg, err := ocpkg.NewFabricPayloadConfig(entropy, min, max)
		return cfg, mode, err
	default:
		cfg, err := ocpkg.NewSimplePayloadConfig(entropy)
		return cfg, mode, err
	}
}

func parseBounds(s string) (min, max int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"min,max\", got %q", s)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &min); err != nil {
		return 0, 0, fmt.Errorf("invalid min: %w", err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &max); err != nil {
		return 0, 0, fmt.Errorf("invalid max: %w", err)
	}
	return min, max, nil
}

func confirmOverwrite(path string) bool {
	fmt.Fprintf(os.Stderr, "Output file %s already exists. Overwrite? [y/N]: ", path)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
