// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/github-dev-app/pkg/devapp/manifest"
	"github.com/telekom/github-dev-app/pkg/devapp/output"
)

func NewManifestCommand() *cobra.Command {
	var (
		outputFormat string
		name         string
		description  string
		redirectURL  string
	)

	cmd := &cobra.Command{
		Use:   "manifest MANIFEST",
		Short: "Validate a manifest and print it as it would be sent to GitHub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			if name != "" {
				*m = m.WithName(name)
			}
			if description != "" {
				*m = m.WithDescription(description)
			}
			if redirectURL != "" {
				*m = m.WithRedirectURL(redirectURL)
			}

			if format != output.FormatText {
				return output.WriteObject(rt.Writer(), format, m)
			}
			serialized, err := m.Serialize()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), serialized)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, yaml (default compact JSON)")
	cmd.Flags().StringVar(&name, "name", "", "Override the manifest's app name")
	cmd.Flags().StringVar(&description, "description", "", "Override the manifest's description")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "Set the manifest's redirect_url")

	return cmd
}
