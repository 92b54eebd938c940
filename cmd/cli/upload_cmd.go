package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/upload"
)

func newUploadCmd(opts *globalOpts) *cobra.Command {
	var (
		name        string
		symbol      string
		description string
		imagePath   string
		twitter     string
		telegram    string
		website     string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an image and token metadata without minting",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer deps.Close()

			image, imageName, contentType, err := readImage(imagePath)
			if err != nil {
				return err
			}
			res, err := deps.uploader.Upload(cmd.Context(), upload.Request{
				Image:       image,
				FileName:    imageName,
				ContentType: contentType,
				Name:        name,
				Symbol:      symbol,
				Description: description,
				Twitter:     twitter,
				Telegram:    telegram,
				Website:     website,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\nmetadata: %s\nimage: %s\n", res.Backend, res.MetadataURI, res.ImageURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "token name")
	cmd.Flags().StringVar(&symbol, "symbol", "", "token symbol")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to the image")
	cmd.Flags().StringVar(&twitter, "twitter", "", "twitter URL")
	cmd.Flags().StringVar(&telegram, "telegram", "", "telegram URL")
	cmd.Flags().StringVar(&website, "website", "", "website URL")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
