package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocpkg/ocpkg/internal/util"
)

func init() {
	genpassCmd.SilenceErrors = true
	genpassCmd.SilenceUsage = true
	rootCmd.AddCommand(genpassCmd)

	genpassCmd.Flags().IntVarP(&genpassLength, "length", "l", 24, "Password length")
	genpassCmd.Flags().BoolVar(&genpassNoUpper, "no-upper", false, "Exclude uppercase letters")
	genpassCmd.Flags().BoolVar(&genpassNoLower, "no-lower", false, "Exclude lowercase letters")
	genpassCmd.Flags().BoolVar(&genpassNoNumbers, "no-numbers", false, "Exclude digits")
	genpassCmd.Flags().BoolVar(&genpassSymbols, "symbols", false, "Include symbols")
}

var (
	genpassLength    int
	genpassNoUpper   bool
	genpassNoLower   bool
	genpassNoNumbers bool
	genpassSymbols   bool
)

var genpassCmd = &cobra.Command{
	Use:   "genpass",
	Short: "Generate a cryptographically secure passphrase",
	Long: `Generate a passphrase suitable for packing a container, using
crypto/rand rather than a deterministic PRNG.

Examples:
  ocpkg genpass
  ocpkg genpass --length 40 --symbols`,
	RunE: runGenpass,
}

func runGenpass(cmd *cobra.Command, args []string) error {
	password, err := util.GenPassword(util.PassgenOptions{
		Length:  genpassLength,
		Upper:   !genpassNoUpper,
		Lower:   !genpassNoLower,
		Numbers: !genpassNoNumbers,
		Symbols: genpassSymbols,
	})
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("no character set selected")
	}
	fmt.Println(password)
	return nil
}
