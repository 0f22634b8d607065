package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteName string

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an owned document",
	Long: `Remove a document from the store along with its grants. Only the
owner may delete; delegated access never includes deletion.`,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringVarP(&deleteName, "name", "n", "", "Filename in the store")
	deleteCmd.MarkFlagRequired("name")
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Delete(principal, deleteName); err != nil {
		return fmt.Errorf("delete refused: %w", err)
	}

	fmt.Printf("✓ Deleted %s/%s\n", principal, deleteName)
	return nil
}
