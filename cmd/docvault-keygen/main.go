// docvault-keygen provisions the PEM credential store: a self-signed root
// authority plus key pairs and root-signed certificates for principals.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"docvault/logging"
	"docvault/pkg/identity"
)

var (
	storePath  = flag.String("store", "./certs", "Credential store directory")
	initRoot   = flag.Bool("init-root", false, "Generate the trusted root authority")
	principals = flag.String("issue", "", "Comma-separated principals to issue certificates for")
	validity   = flag.Duration("validity", 365*24*time.Hour, "Certificate validity period")
)

func main() {
	flag.Parse()

	logger := logging.GetLogger()

	if !*initRoot && *principals == "" {
		fmt.Fprintln(os.Stderr, "Nothing to do: pass -init-root and/or -issue <name>[,<name>...]")
		flag.Usage()
		os.Exit(2)
	}

	creds := identity.NewCredentialStore(*storePath)

	if *initRoot {
		if _, err := creds.RootCertificate(); err == nil {
			logger.Error("Refusing to overwrite existing root in %s", *storePath)
			os.Exit(1)
		}
		if err := creds.GenerateRoot(*validity); err != nil {
			logger.Error("Failed to generate root: %v", err)
			os.Exit(1)
		}
		logger.Startup("Generated root authority in %s (valid %s)", *storePath, *validity)
	}

	if *principals != "" {
		for _, name := range strings.Split(*principals, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if strings.Contains(name, "/") {
				logger.Error("Principal %q is invalid: names cannot contain '/'", name)
				os.Exit(1)
			}
			if err := creds.IssuePrincipal(name, *validity); err != nil {
				logger.Error("Failed to issue credentials for %q: %v", name, err)
				os.Exit(1)
			}
			logger.Startup("Issued %s.key and %s.crt (valid %s)", name, name, *validity)
		}
	}
}
