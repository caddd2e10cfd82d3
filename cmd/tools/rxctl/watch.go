package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medlens/rxchat/backend/internal/model/prescription"
	"github.com/medlens/rxchat/backend/internal/service/watch"
)

func newWatchCmd(st *appState) *cobra.Command {
	var processExisting bool
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Extract and store every image dropped into an inbox directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := st.config().Watch
			dir := cfg.Dir
			if len(args) == 1 {
				dir = args[0]
			}

			out := cmd.OutOrStdout()
			w := watch.New(st.pipeline(),
				watch.WithDebounce(cfg.Debounce),
				watch.WithResultHandler(func(r watch.Result) {
					if r.Err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
						return
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", r.Path, r.Record.ID, prescription.Preview(r.Record.RawText))
				}),
			)

			if processExisting {
				if err := w.Scan(cmd.Context(), dir); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "watching %s, press Ctrl-C to stop\n", dir)
			return w.Run(cmd.Context(), dir)
		},
	}
	cmd.Flags().BoolVar(&processExisting, "process-existing", false, "also process images already in the directory before watching")
	return cmd
}
