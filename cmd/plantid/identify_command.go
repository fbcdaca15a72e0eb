package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"go-plant-identifier/internal/container"
	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/presenter"
	"go-plant-identifier/pkg/models"
)

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var save bool
	var details bool

	cmd := &cobra.Command{
		Use:   "identify <image>",
		Short: "Identify a plant from a photo",
		Long: `Send a photo to the plant.id service and print the identified plant.
The image may be a local file or an http(s) URL. Failed attempts are retried
twice before giving up.

Examples:
  plantid identify leaf.jpg
  plantid identify leaf.jpg --details --save
  plantid identify https://example.org/leaf.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			return ctx.withContainer(cmd.Context(), func(c *container.Container) error {
				svc := c.PlantService()
				id := svc.CreateSession().ID

				var err error
				if isURL(source) {
					_, err = svc.SelectImageURL(cmd.Context(), id, source)
				} else {
					var image *models.ImageBlob
					image, err = readImageFile(source)
					if err == nil {
						_, err = svc.SelectImage(cmd.Context(), id, image)
					}
				}
				if err != nil {
					return describeError(err)
				}

				state, err := svc.Identify(cmd.Context(), id)
				if err != nil {
					if state.Error != "" {
						return errors.New(state.Error)
					}
					return describeError(err)
				}
				if details {
					if state, err = svc.ToggleExpanded(id); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, presenter.RenderText(presenter.Build(state), shouldColorize(out)))

				if save {
					_, count, err := svc.Save(cmd.Context(), id)
					if err != nil {
						return describeError(err)
					}
					fmt.Fprintf(out, "Saved. %d plant(s) in your list.\n", count)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Append the result to the saved plants list")
	cmd.Flags().BoolVar(&details, "details", false, "Show care tips, toxicity and growth details")
	return cmd
}

func readImageFile(path string) (*models.ImageBlob, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &models.ImageBlob{
		Filename: filepath.Base(path),
		Data:     data,
	}, nil
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// describeError prefers the user-facing message of application errors
func describeError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return errors.New(appErr.Message)
	}
	return err
}
