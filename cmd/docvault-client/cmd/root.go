package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docvault/pkg/client"
	"docvault/pkg/identity"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverAddr string
	principal  string
	certsPath  string
	cacheDir   string
	timeout    time.Duration
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docvault-client",
	Short: "DocVault Client - Check documents in and out of a secure store",
	Long: `DocVault Client is a command-line tool for working with a DocVault
document store: checking documents in under a security level, checking
them out, delegating time-limited access to other principals, and
deleting owned documents. Authentication uses the X.509 certificate
issued to the principal by the store's trusted root.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultCerts := filepath.Join(home, ".docvault", "certs")
	defaultCache := filepath.Join(home, ".docvault", "checkout")

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:8088", "Document store address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&principal, "principal", "p", "", "Principal to authenticate as")
	rootCmd.PersistentFlags().StringVar(&certsPath, "certs", defaultCerts, "Credential store directory (<principal>.key / <principal>.crt)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", defaultCache, "Local checkout cache directory")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Dial timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.MarkPersistentFlagRequired("principal")
}

// connect dials the server and logs in as the configured principal. The
// caller owns the returned client and must Close it.
func connect() (*client.Client, error) {
	creds := identity.NewCredentialStore(certsPath)
	cert, err := creds.LoadCertificate(principal)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate for %q from %s: %w", principal, certsPath, err)
	}

	if verbose {
		fmt.Printf("Server: %s\n", serverAddr)
		fmt.Printf("Principal: %s\n", principal)
	}

	c, err := client.Connect(client.Options{
		ServerAddress: serverAddr,
		DialTimeout:   timeout,
		CacheDir:      cacheDir,
	})
	if err != nil {
		return nil, err
	}

	if err := c.Login(principal, cert.Raw); err != nil {
		c.Close()
		return nil, fmt.Errorf("login failed: %w", err)
	}

	if verbose {
		fmt.Printf("✓ Logged in; server identity %q\n", c.ServerCertificate().Subject.CommonName)
	}
	return c, nil
}
