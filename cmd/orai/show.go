package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/blob"
	"github.com/Hexploration-Inc/orai/internal/compose"
	"github.com/Hexploration-Inc/orai/internal/display"
	"github.com/Hexploration-Inc/orai/internal/types"
)

var (
	showOwner  string
	showNoBody bool
	showLines  int
)

type showOutput struct {
	*types.Message
	BodyHTML string `json:"bodyHtml"`
}

var showCmd = &cobra.Command{
	Use:   "show MESSAGE_ID",
	Short: "Display one cached message with its body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		msg, err := store.GetMessage(ctx, showOwner, args[0])
		if err != nil {
			return err
		}

		var body string
		if !showNoBody && msg.BodyRef != "" {
			blobs, err := blob.Open(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			defer blobs.Close()
			data, err := blobs.Get(ctx, msg.BodyRef)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
			body = string(data)
		}

		if jsonOutput {
			return printJSON(cmd, showOutput{Message: msg, BodyHTML: body})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Subject: %s\n", display.Bold.Render(msg.Subject))
		fmt.Fprintf(w, "From:    %s %s\n", display.SenderLabel(msg.Sender), display.Dim.Render("<"+msg.Sender.Address+">"))
		fmt.Fprintf(w, "Date:    %s\n", msg.ReceivedAt.Local().Format("Mon, 02 Jan 2006 15:04"))
		fmt.Fprintf(w, "State:   %s %s\n", display.StateDot(msg), display.State(msg))
		fmt.Fprintf(w, "Labels:  %s\n", display.Dim.Render(fmt.Sprint(msg.Labels)))
		fmt.Fprintln(w)

		text := compose.TextFromHTML(body)
		if text == "" {
			text = msg.Snippet
		}
		if !showNoBody {
			display.Body(w, text, showLines)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&showOwner, "owner", "", "Mailbox owner id (required)")
	showCmd.Flags().BoolVar(&showNoBody, "no-body", false, "Hide the message body")
	showCmd.Flags().IntVar(&showLines, "lines", 40, "Maximum body lines to print (0 for all)")
	_ = showCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(showCmd)
}
