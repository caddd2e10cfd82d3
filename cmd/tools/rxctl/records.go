package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

func newExtractCmd(st *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image>...",
		Short: "Run OCR on images and store the normalized text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err == nil {
					var record prescription.Record
					record, err = st.pipeline().ExtractAndStore(cmd.Context(), data)
					if err == nil {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", path, record.ID, prescription.Preview(record.RawText))
						continue
					}
				}
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(args))
			}
			return nil
		},
	}
}

func newListCmd(st *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored prescriptions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := st.pipeline().ListPrescriptions(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no prescriptions stored")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tPREVIEW")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), s.Preview)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(st *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the full text of a stored prescription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := st.pipeline().GetPrescription(cmd.Context(), args[0])
			if errors.Is(err, prescription.ErrNotFound) {
				return fmt.Errorf("prescription %s not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), record.RawText)
			return nil
		},
	}
}
