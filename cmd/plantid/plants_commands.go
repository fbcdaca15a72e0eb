package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"go-plant-identifier/internal/container"
	"go-plant-identifier/internal/presenter"
)

func newPlantsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plants",
		Short: "Inspect the saved plants list",
	}
	cmd.AddCommand(newPlantsListCommand(ctx))
	cmd.AddCommand(newPlantsSearchCommand(ctx))
	return cmd
}

func newPlantsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved plants in save order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withContainer(cmd.Context(), func(c *container.Container) error {
				plants, err := c.PlantService().ListSaved(cmd.Context())
				if err != nil {
					return describeError(err)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, plants)
				}
				fmt.Fprintln(out, presenter.RenderSavedPlants(plants))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the saved records as JSON")
	return cmd
}

func newPlantsSearchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find saved plants by scientific or common name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withContainer(cmd.Context(), func(c *container.Container) error {
				matches, err := c.PlantService().SearchSaved(cmd.Context(), query)
				if err != nil {
					return describeError(err)
				}
				if limit > 0 && len(matches) > limit {
					matches = matches[:limit]
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, matches)
				}
				fmt.Fprintln(out, presenter.RenderMatches(matches))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of matches (0 for all)")
	return cmd
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
