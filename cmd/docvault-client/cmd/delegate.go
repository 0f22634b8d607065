package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	delegateOwner     string
	delegateName      string
	delegateGrantee   string
	delegateDuration  time.Duration
	delegatePropagate bool
)

// delegateCmd represents the delegate command
var delegateCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Delegate access to a document",
	Long: `Grant another principal time-limited checkout access to a document.
Owners delegate freely; a non-owner needs a live propagating grant and
can never delegate past their own expiry. The server sends no response
for delegation, so this command only confirms that the request was
sent.`,
	RunE: runDelegate,
}

func init() {
	rootCmd.AddCommand(delegateCmd)

	delegateCmd.Flags().StringVar(&delegateOwner, "owner", "", "Owning principal (defaults to the logged-in principal)")
	delegateCmd.Flags().StringVarP(&delegateName, "name", "n", "", "Filename in the store")
	delegateCmd.Flags().StringVarP(&delegateGrantee, "grantee", "g", "", "Principal receiving access")
	delegateCmd.Flags().DurationVarP(&delegateDuration, "duration", "d", time.Hour, "How long the grant lasts")
	delegateCmd.Flags().BoolVar(&delegatePropagate, "propagate", false, "Allow the grantee to re-delegate")

	delegateCmd.MarkFlagRequired("name")
	delegateCmd.MarkFlagRequired("grantee")
}

func runDelegate(cmd *cobra.Command, args []string) error {
	owner := delegateOwner
	if owner == "" {
		owner = principal
	}

	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Delegate(owner, delegateName, delegateGrantee, delegateDuration, delegatePropagate); err != nil {
		return fmt.Errorf("failed to send delegation: %w", err)
	}

	fmt.Printf("✓ Delegation sent: %s may access %s/%s for %s (propagate=%t)\n",
		delegateGrantee, owner, delegateName, delegateDuration, delegatePropagate)
	return nil
}
