package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	checkoutOwner  string
	checkoutName   string
	checkoutOutput string
)

// checkoutCmd represents the checkout command
var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Check a document out of the store",
	Long: `Retrieve a document from the store. The owner's own documents are
always accessible; anyone else needs a live delegation grant. The
document is also mirrored into the local checkout cache, which is
flushed when the session ends.`,
	RunE: runCheckout,
}

func init() {
	rootCmd.AddCommand(checkoutCmd)

	checkoutCmd.Flags().StringVar(&checkoutOwner, "owner", "", "Owning principal (defaults to the logged-in principal)")
	checkoutCmd.Flags().StringVarP(&checkoutName, "name", "n", "", "Filename in the store")
	checkoutCmd.Flags().StringVarP(&checkoutOutput, "output", "o", "", "Write the document here instead of stdout")

	checkoutCmd.MarkFlagRequired("name")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	owner := checkoutOwner
	if owner == "" {
		owner = principal
	}

	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	content, level, err := c.CheckOut(owner, checkoutName)
	if err != nil {
		return fmt.Errorf("checkout refused: %w", err)
	}

	if checkoutOutput == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(checkoutOutput, content, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Printf("✓ Checked out %s/%s (%d bytes, level=%s) to %s\n", owner, checkoutName, len(content), level, checkoutOutput)
	return nil
}
