package cmd

import (
	"fmt"

	"github.com/pypeclub/tmplbuild/api"
	"github.com/spf13/cobra"
)

var placeholderNode string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Import the template for the current task and populate it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.builder.BuildTemplate(s.cfg.Profiles(s.ctx.Host)); err != nil {
			return err
		}
		if err := s.scene.Save(); err != nil {
			return fmt.Errorf("save workfile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Built %s\n", workfilePath(s.ctx))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Load representations missing from the current workfile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if placeholderNode != "" {
			err = s.builder.UpdatePlaceholder(api.NodeRef(placeholderNode))
		} else {
			err = s.builder.UpdateMissingContainers()
		}
		if err != nil {
			return err
		}
		if err := s.scene.Save(); err != nil {
			return fmt.Errorf("save workfile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", workfilePath(s.ctx))
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVarP(&placeholderNode, "placeholder", "p", "", "Only update this placeholder node")
	rootCmd.AddCommand(buildCmd, updateCmd)
}
