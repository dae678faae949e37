package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-support/backend/internal/chatsync"
	"github.com/zhouzirui/z-support/backend/internal/visitor"
)

var visitorStatePath string

var visitorCmd = &cobra.Command{
	Use:   "visitor",
	Short: "Chat with support as an anonymous visitor",
	Long: `Opens the visitor side of the chat. The visitor id is kept in a state
file so the same conversation resumes on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}

		path := visitorStatePath
		if path == "" {
			if path, err = visitor.DefaultPath(); err != nil {
				return err
			}
		}
		state, err := visitor.LoadOrCreate(path, s.URL)
		if err != nil {
			return err
		}

		c, err := newClient(s, "")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		room := chatsync.NewVisitorRoom(c, state.VisitorID)
		view := newTranscript(cmd.OutOrStdout(), s.Rows, false, "Chat with us")
		return runRoom(ctx, room, c, view, cmd.InOrStdin())
	},
}

func init() {
	visitorCmd.Flags().StringVar(&visitorStatePath, "state", "", "visitor state file (default <config dir>/z-support/visitor.yaml)")
}
