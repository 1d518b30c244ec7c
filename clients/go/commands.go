package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/sechat/clients/go/sechat"
)

type rootOptions struct {
	URL       string
	ConfigDir string
	Format    string // "text" | "json"
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sechat",
		Short:         "SeChat CLI - counseling chat relay client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
	}

	defaultURL := os.Getenv("SECHAT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.URL, "url", defaultURL, "server URL (env SECHAT_URL)")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "config directory (env SECHAT_CONFIG, default ~/.sechat)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newHealthCommand(opts))
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newCreateRoomCommand(opts))
	cmd.AddCommand(newCloseRoomCommand(opts))
	cmd.AddCommand(newJoinCommand(opts))
	cmd.AddCommand(newLeaveCommand(opts))
	cmd.AddCommand(newReadCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

func (o *rootOptions) client() *sechat.Client {
	c := sechat.NewClient(o.URL)
	if o.ConfigDir != "" {
		c.ConfigDir = o.ConfigDir
	}
	return c
}

// savedConfig loads the persisted session, or an empty one bound to the
// current URL when nothing has been saved yet.
func (o *rootOptions) savedConfig(c *sechat.Client) (*sechat.Config, error) {
	cfg, err := c.LoadConfig()
	if errors.Is(err, fs.ErrNotExist) {
		return &sechat.Config{BaseURL: c.BaseURL}, nil
	}
	return cfg, err
}

// joined loads the persisted session and fails when no room was joined.
func (o *rootOptions) joined(c *sechat.Client) (*sechat.Config, error) {
	cfg, err := o.savedConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.RoomID == "" || cfg.SessionID == "" {
		return nil, errors.New("not joined to a room; run `sechat join <code>` first")
	}
	return cfg, nil
}

func (o *rootOptions) print(w io.Writer, v any, text func()) {
	if o.Format == "json" {
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	text()
}

func printMessage(w io.Writer, m sechat.Message) {
	ts := m.CreatedAt.Local().Format("2006-01-02 15:04:05")
	marker := ""
	if sechat.IsOptimistic(m) {
		marker = " (sending)"
	}
	if m.SenderRole == sechat.RoleSystem {
		fmt.Fprintf(w, "[%s] * %s%s\n", ts, m.Content, marker)
		return
	}
	fmt.Fprintf(w, "[%s] %s: %s%s\n", ts, m.SenderName, m.Content, marker)
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts.print(out, resp, func() {
				fmt.Fprintf(out, "%s (version %s)\n", resp.Status, resp.Version)
			})
			return nil
		},
	}
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in as admin and save the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SECHAT_PASSWORD")
			}
			if password == "" {
				return errors.New("password required (--password or SECHAT_PASSWORD)")
			}

			c := opts.client()
			cfg, err := opts.savedConfig(c)
			if err != nil {
				return err
			}
			if err := c.Login(cmd.Context(), args[0], password); err != nil {
				return err
			}
			cfg.AdminToken = c.AdminToken
			if err := c.SaveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in as", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "admin password (env SECHAT_PASSWORD)")
	return cmd
}

func newCreateRoomCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create-room <label>",
		Short: "Open a new counseling room (admin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if _, err := opts.savedConfig(c); err != nil {
				return err
			}
			room, err := c.CreateRoom(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts.print(out, room, func() {
				fmt.Fprintf(out, "Room %s  code %s  %s\n", room.ID, room.Code, room.AdminLabel)
			})
			return nil
		},
	}
}

func newCloseRoomCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "close-room <room-id>",
		Short: "Close a room (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if _, err := opts.savedConfig(c); err != nil {
				return err
			}
			room, err := c.CloseRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			opts.print(out, room, func() {
				fmt.Fprintf(out, "Room %s is %s\n", room.ID, room.Status)
			})
			return nil
		},
	}
}

func newJoinCommand(opts *rootOptions) *cobra.Command {
	var role, name string
	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Join a room by its code and save the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			cfg, err := opts.savedConfig(c)
			if err != nil {
				return err
			}
			res, err := c.Join(cmd.Context(), args[0], role, name)
			if err != nil {
				return err
			}

			cfg.BaseURL = c.BaseURL
			cfg.RoomID = res.RoomID
			cfg.SessionID = res.SessionID
			cfg.Role = res.Role
			cfg.DisplayName = res.DisplayName
			if err := c.SaveConfig(cfg); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts.print(out, res, func() {
				verb := "Joined"
				if res.Reentry {
					verb = "Rejoined"
				}
				fmt.Fprintf(out, "%s room %s as %s (%s)\n", verb, res.RoomID, res.DisplayName, res.Role)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", sechat.RoleClient, "participant role (counselor|client)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newLeaveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the joined room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			cfg, err := opts.joined(c)
			if err != nil {
				return err
			}
			if err := c.Leave(cmd.Context(), cfg.RoomID, cfg.Role); err != nil {
				return err
			}
			cfg.RoomID, cfg.SessionID = "", ""
			if err := c.SaveConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Left room")
			return nil
		},
	}
}

func newReadCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print the joined room's messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			cfg, err := opts.joined(c)
			if err != nil {
				return err
			}
			msgs, err := c.ListMessages(cmd.Context(), cfg.RoomID)
			if err != nil {
				return err
			}
			msgs = sechat.Merge(nil, msgs)
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[len(msgs)-limit:]
			}

			out := cmd.OutOrStdout()
			opts.print(out, msgs, func() {
				for _, m := range msgs {
					printMessage(out, m)
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last n messages")
	return cmd
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to the joined room",
		Long: `Send a message to the joined room.

Each send gets a fresh idempotency key, printed on success. Passing the
same --key again retries that send without creating a duplicate.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			cfg, err := opts.joined(c)
			if err != nil {
				return err
			}
			if key == "" {
				key = sechat.NewClientMessageID()
			}
			res, err := c.SubmitMessage(cmd.Context(), cfg.RoomID, sechat.SubmitRequest{
				SenderRole:      cfg.Role,
				SenderName:      cfg.DisplayName,
				Content:         strings.Join(args, " "),
				ClientMessageID: key,
			})
			if err != nil {
				return fmt.Errorf("%w (retry with --key %s)", err, key)
			}

			out := cmd.OutOrStdout()
			opts.print(out, res.Message, func() {
				if res.Created {
					fmt.Fprintf(out, "Sent %s (key %s)\n", res.Message.ID, key)
				} else {
					fmt.Fprintf(out, "Already delivered as %s\n", res.Message.ID)
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "idempotency key of a send to retry")
	return cmd
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var resync time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the joined room in real time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			cfg, err := opts.joined(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			shown := make(map[string]bool)
			closed := false

			s := sechat.NewSession(c, cfg.RoomID, cfg.Role, cfg.DisplayName)
			s.ResyncInterval = resync
			s.OnError = func(err error) { fmt.Fprintln(errOut, "fetch failed:", err) }
			s.OnChange = func(msgs []sechat.Message) {
				for _, m := range msgs {
					if shown[m.ID] || sechat.IsOptimistic(m) {
						continue
					}
					shown[m.ID] = true
					printMessage(out, m)
				}
				if !closed && s.Closed() {
					closed = true
					fmt.Fprintln(out, "* 상담이 종료되었습니다.")
					stop()
				}
			}

			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&resync, "resync", 30*time.Second, "full history refresh interval (0 disables)")
	return cmd
}
