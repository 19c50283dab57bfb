// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/web"
)

// NewSchemaCmd creates the schema subcommand, which writes the JSON Schemas
// of the API request bodies.
func NewSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the request JSON Schemas",
		Long: `Write one <name>.schema.json file per API request body. With no
--out directory the schemas are printed to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeSchemas(cmd, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	return cmd
}

func writeSchemas(cmd *cobra.Command, outDir string) error {
	schemas := web.RequestSchemas()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return oops.Code("SCHEMA_WRITE_FAILED").With("dir", outDir).Wrap(err)
		}
	}

	for _, name := range names {
		data, err := json.MarshalIndent(schemas[name], "", "  ")
		if err != nil {
			return oops.Code("SCHEMA_ENCODE_FAILED").With("schema", name).Wrap(err)
		}
		if outDir == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			continue
		}
		path := filepath.Join(outDir, name+".schema.json")
		if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
			return oops.Code("SCHEMA_WRITE_FAILED").With("file", path).Wrap(err)
		}
		cmd.Printf("Generated %s\n", path)
	}
	return nil
}
