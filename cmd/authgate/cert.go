// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"fmt"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	certs "github.com/authgate/authgate/internal/tls"
	"github.com/authgate/authgate/internal/xdg"
)

// NewCertCmd creates the cert subcommand, which writes a self-signed
// certificate for serving HTTPS in development.
func NewCertCmd() *cobra.Command {
	var (
		outDir   string
		hosts    []string
		validFor time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Generate a self-signed development certificate",
		Long: `Generate a self-signed P-256 certificate and key for local HTTPS.
Point tls-cert and tls-key at the written files to serve the API over TLS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" {
				dir, err := xdg.CertsDir()
				if err != nil {
					return oops.With("operation", "resolve certificate directory").Wrap(err)
				}
				outDir = dir
			}
			sc, err := certs.GenerateSelfSigned(hosts, time.Now(), validFor)
			if err != nil {
				return oops.With("operation", "generate certificate").Wrap(err)
			}
			certPath, keyPath, err := certs.Save(outDir, sc)
			if err != nil {
				return oops.With("operation", "save certificate").Wrap(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Certificate: %s\n", certPath)
			fmt.Fprintf(out, "Key:         %s\n", keyPath)
			fmt.Fprintf(out, "Expires:     %s\n", sc.Certificate.NotAfter.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default $XDG_CONFIG_HOME/authgate/certs)")
	cmd.Flags().StringSliceVar(&hosts, "host", certs.DefaultHosts(), "DNS names and IP addresses the certificate covers")
	cmd.Flags().DurationVar(&validFor, "valid-for", certs.DefaultValidity, "certificate lifetime")
	return cmd
}
