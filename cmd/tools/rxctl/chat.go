package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medlens/rxchat/backend/internal/service/ai"
	"github.com/medlens/rxchat/backend/internal/service/pipeline"
	"github.com/medlens/rxchat/backend/internal/service/session"
)

const chatHelp = `Type a question and press enter.
  /new   start over with an empty history
  /quit  leave`

func newChatCmd(st *appState) *cobra.Command {
	var (
		recordID string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about a prescription, all prescriptions, or nothing in particular",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recordID != "" && all {
				return errors.New("--prescription and --all are mutually exclusive")
			}
			svc := st.pipeline()
			open := func(ctx context.Context) (*session.Session, error) {
				if all {
					return svc.OpenSessionAll(ctx)
				}
				return svc.OpenSession(ctx, recordID)
			}
			return runChat(cmd.Context(), svc, open, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&recordID, "prescription", "p", "", "ground the chat on one stored prescription")
	cmd.Flags().BoolVar(&all, "all", false, "ground the chat on every stored prescription")
	return cmd
}

// runChat reads one question per line from in until EOF or /quit.
// Model failures are printed and the loop continues.
func runChat(ctx context.Context, svc *pipeline.Service, open func(context.Context) (*session.Session, error), in io.Reader, out io.Writer) error {
	sess, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.CloseSession(context.Background(), sess) }()

	if sess.Anchored() {
		fmt.Fprintln(out, "Grounded on prescription data.")
	} else {
		fmt.Fprintln(out, "No prescription selected, chatting directly.")
	}
	fmt.Fprintln(out, chatHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			_ = svc.CloseSession(ctx, sess)
			if sess, err = open(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		if err := ask(ctx, svc, sess, line, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
			if errors.Is(err, ai.ErrModelUnavailable) {
				fmt.Fprintln(out, "The model is unavailable, try again in a moment.")
			}
		}
	}
}

func ask(ctx context.Context, svc *pipeline.Service, sess *session.Session, line string, out io.Writer) error {
	if !svc.StreamingEnabled() {
		reply, err := svc.SendMessage(ctx, sess, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
		return nil
	}

	_, err := svc.StreamMessage(ctx, sess, line, func(delta string) {
		fmt.Fprint(out, delta)
	})
	fmt.Fprintln(out)
	return err
}
