package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-support/backend/internal/chatsync"
	"github.com/zhouzirui/z-support/backend/internal/client"
	"github.com/zhouzirui/z-support/backend/internal/observability"
)

const heartbeatInterval = time.Minute

var (
	loginEmail        string
	loginPassword     string
	conversationLimit int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Support console commands",
}

var adminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		c, err := newClient(s, "")
		if err != nil {
			return err
		}

		email := strings.TrimSpace(loginEmail)
		password := loginPassword
		if password == "" {
			password = os.Getenv("ZSUPPORT_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		session, err := c.SignIn(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		if err := saveCredentials(credentials{
			Server:      s.URL,
			Email:       session.User.Email,
			AccessToken: session.AccessToken,
			ExpiresAt:   session.ExpiresAt,
		}); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Signed in as "+session.User.Email))
		return nil
	},
}

var adminLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the remembered token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		_ = c.GoOffline(cmd.Context())
		if err := c.SignOut(cmd.Context()); err != nil {
			observability.Logger().Warn("sign out failed", "err", err)
		}
		if err := clearCredentials(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Signed out"))
		return nil
	},
}

var adminDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show session and message counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		dash, err := c.Dashboard(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("Dashboard"))
		fmt.Fprintf(out, "  Total sessions    %d\n", dash.Stats.TotalSessions)
		fmt.Fprintf(out, "  Active sessions   %d\n", dash.Stats.ActiveSessions)
		fmt.Fprintf(out, "  Waiting sessions  %d\n", dash.Stats.WaitingSessions)
		fmt.Fprintf(out, "  Total messages    %d\n", dash.Stats.TotalMessages)
		fmt.Fprintf(out, "  Admins online     %d\n\n", dash.Stats.OnlineAdmins)

		fmt.Fprintln(out, headerStyle.Render("Recent sessions"))
		for _, conv := range dash.RecentSessions {
			printConversation(cmd, conv.ID, string(conv.Status), conv.VisitorID, conv.UpdatedAt, lastText(conv.LastMessage))
		}
		return nil
	},
}

var adminConversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations with their last message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		list, err := c.Conversations(cmd.Context(), conversationLimit)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render("No conversations yet."))
			return nil
		}
		for _, conv := range list {
			printConversation(cmd, conv.ID, string(conv.Status), conv.VisitorID, conv.UpdatedAt, lastText(conv.LastMessage))
		}
		return nil
	},
}

var adminChatCmd = &cobra.Command{
	Use:   "chat <session-id>",
	Short: "Answer a visitor in an existing session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient()
		if err != nil {
			return err
		}
		s, _ := loadSettings()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		go keepOnline(ctx, c)
		defer func() {
			offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.GoOffline(offCtx)
		}()

		room := chatsync.NewAdminRoom(c, args[0])
		view := newTranscript(cmd.OutOrStdout(), s.Rows, true, "Session "+args[0])
		err = runRoom(ctx, room, c, view, cmd.InOrStdin())
		if errors.Is(err, chatsync.ErrSessionNotFound) {
			return fmt.Errorf("session %s not found", args[0])
		}
		return err
	},
}

func init() {
	adminLoginCmd.Flags().StringVar(&loginEmail, "email", "", "admin email")
	adminLoginCmd.Flags().StringVar(&loginPassword, "password", "", "admin password (prompted when empty)")
	_ = adminLoginCmd.MarkFlagRequired("email")

	adminConversationsCmd.Flags().IntVar(&conversationLimit, "limit", 50, "maximum conversations to list")

	adminCmd.AddCommand(adminLoginCmd, adminLogoutCmd, adminDashboardCmd, adminConversationsCmd, adminChatCmd)
}

// adminClient builds a client from ZSUPPORT_TOKEN or the saved login.
func adminClient() (*client.Client, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	token := s.Token
	if token == "" {
		creds, err := loadCredentials()
		if err != nil {
			return nil, err
		}
		if creds.Server != s.URL || creds.AccessToken == "" {
			return nil, fmt.Errorf("not signed in to %s: run widgetctl admin login", s.URL)
		}
		if !creds.ExpiresAt.IsZero() && time.Now().After(creds.ExpiresAt) {
			return nil, fmt.Errorf("session expired: run widgetctl admin login")
		}
		token = creds.AccessToken
	}
	return newClient(s, token)
}

func keepOnline(ctx context.Context, c *client.Client) {
	logger := observability.WithFields("component", "presence")
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		if err := c.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("heartbeat failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printConversation(cmd *cobra.Command, id, status, visitorID string, updated time.Time, last string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %s  %s  %s  %s\n",
		peerStyle.Render(id),
		statusBadge(status),
		metaStyle.Render(visitorID),
		timestampStyle.Render(updated.Local().Format("2006-01-02 15:04")),
	)
	if last != "" {
		fmt.Fprintf(out, "      %s\n", last)
	}
}
