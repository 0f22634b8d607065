package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"docvault/pkg/models"

	"github.com/spf13/cobra"
)

var (
	checkinInput string
	checkinName  string
	checkinLevel string
)

// checkinCmd represents the checkin command
var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Check a document into the store",
	Long: `Read a local file and check it into the store under the logged-in
principal's namespace. The security level controls at-rest protection:
none, confidentiality (encrypted), integrity (signed), or all.`,
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)

	checkinCmd.Flags().StringVarP(&checkinInput, "input", "i", "", "Input file to check in")
	checkinCmd.Flags().StringVarP(&checkinName, "name", "n", "", "Filename in the store (defaults to the input basename)")
	checkinCmd.Flags().StringVarP(&checkinLevel, "level", "l", "all", "Security level: none, confidentiality, integrity, all")

	checkinCmd.MarkFlagRequired("input")
}

func runCheckin(cmd *cobra.Command, args []string) error {
	level, err := models.ParseSecurityLevel(checkinLevel)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(checkinInput)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	name := checkinName
	if name == "" {
		name = filepath.Base(checkinInput)
	}

	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.CheckIn(name, level, content); err != nil {
		return fmt.Errorf("check-in refused: %w", err)
	}

	fmt.Printf("✓ Checked in %s/%s (%d bytes, level=%s)\n", principal, name, len(content), level)
	return nil
}
