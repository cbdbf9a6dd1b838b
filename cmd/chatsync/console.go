package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/npezzotti/chatsync/internal/engine"
	"github.com/npezzotti/chatsync/internal/rest"
	"github.com/npezzotti/chatsync/internal/types"
)

var errQuit = errors.New("quit")

// controller is the engine surface driven from the console.
type controller interface {
	Status(ctx context.Context) (engine.Status, error)
	Conversations(ctx context.Context) ([]types.Conversation, error)
	Timeline(ctx context.Context) (engine.TimelineView, error)
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context) error
	Send(ctx context.Context, target int64, content string) (int64, error)
	SendActive(ctx context.Context, content string) (int64, error)
	MarkRead(ctx context.Context, id int64) error
	Hide(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, messageId int64) error
	CreateDM(ctx context.Context, partnerUsername string) (types.Conversation, error)
	CreateGroup(ctx context.Context, name string, participants []string) (types.Conversation, error)
	JoinGroup(ctx context.Context, inviteCode string) (types.Conversation, error)
	UpdateGroup(ctx context.Context, id int64, settings rest.GroupSettings) (types.Conversation, error)
	UpdateProfile(ctx context.Context, p rest.ProfileUpdate) (types.Identity, error)
	Logout(ctx context.Context) error
}

const consoleHelp = `commands:
  list                        conversations in display order
  open <id>                   activate a conversation
  close                       deactivate the current conversation
  show                        messages of the active conversation
  say <text>                  send to the active conversation
  send <id> <text>            send to any conversation
  read <id>                   mark a conversation read
  hide <id>                   hide a conversation
  delete <message id>         delete one of your messages
  dm <username>               start a direct conversation
  group <name> <user,...>     create a group
  join <invite code>          join a group
  rename <id> <name>          rename a group
  nick <username>             change your username
  away | back                 set your status
  status                      connection state
  logout                      sign out and stop
  quit                        stop
`

type console struct {
	eng controller
	out io.Writer
}

// Run reads commands from in until it is exhausted, ctx is done, or a command
// ends the session.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.Exec(ctx, line)
			if errors.Is(err, errQuit) {
				return err
			}
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func parseId(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return id, nil
}

// Exec runs a single command line.
func (c *console) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	name, tail, _ := strings.Cut(line, " ")
	tail = strings.TrimSpace(tail)
	args := strings.Fields(tail)

	need := func(n int) error {
		if len(args) < n {
			return errors.Errorf("%s: expected %d argument(s), see help", name, n)
		}
		return nil
	}

	switch name {
	case "help", "?":
		fmt.Fprint(c.out, consoleHelp)
	case "list":
		convs, err := c.eng.Conversations(ctx)
		if err != nil {
			return err
		}
		st, err := c.eng.Status(ctx)
		if err != nil {
			return err
		}
		c.printConversations(convs, st)
	case "open":
		if err := need(1); err != nil {
			return err
		}
		id, err := parseId(args[0])
		if err != nil {
			return err
		}
		return c.eng.Activate(ctx, id)
	case "close":
		return c.eng.Deactivate(ctx)
	case "show":
		view, err := c.eng.Timeline(ctx)
		if err != nil {
			return err
		}
		c.printTimeline(view)
	case "say":
		id, err := c.eng.SendActive(ctx, tail)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "sending (%d)\n", id)
	case "send":
		if err := need(2); err != nil {
			return err
		}
		target, err := parseId(args[0])
		if err != nil {
			return err
		}
		_, content, _ := strings.Cut(tail, " ")
		id, err := c.eng.Send(ctx, target, strings.TrimSpace(content))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "sending (%d)\n", id)
	case "read", "hide", "delete":
		if err := need(1); err != nil {
			return err
		}
		id, err := parseId(args[0])
		if err != nil {
			return err
		}
		switch name {
		case "read":
			return c.eng.MarkRead(ctx, id)
		case "hide":
			return c.eng.Hide(ctx, id)
		default:
			return c.eng.DeleteMessage(ctx, id)
		}
	case "dm":
		if err := need(1); err != nil {
			return err
		}
		conv, err := c.eng.CreateDM(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "opened %d\n", conv.Id)
	case "group":
		if err := need(2); err != nil {
			return err
		}
		conv, err := c.eng.CreateGroup(ctx, args[0], strings.Split(args[1], ","))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "opened %d\n", conv.Id)
	case "join":
		if err := need(1); err != nil {
			return err
		}
		conv, err := c.eng.JoinGroup(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "opened %d\n", conv.Id)
	case "rename":
		if err := need(2); err != nil {
			return err
		}
		id, err := parseId(args[0])
		if err != nil {
			return err
		}
		_, groupName, _ := strings.Cut(tail, " ")
		_, err = c.eng.UpdateGroup(ctx, id, rest.GroupSettings{Name: strings.TrimSpace(groupName)})
		return err
	case "nick":
		if err := need(1); err != nil {
			return err
		}
		ident, err := c.eng.UpdateProfile(ctx, rest.ProfileUpdate{Username: args[0]})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "you are %s\n", ident.Username)
	case "away", "back":
		status := types.StatusAFK
		if name == "back" {
			status = types.StatusOnline
		}
		_, err := c.eng.UpdateProfile(ctx, rest.ProfileUpdate{Status: status})
		return err
	case "status":
		st, err := c.eng.Status(ctx)
		if err != nil {
			return err
		}
		user := "-"
		if st.User != nil {
			user = st.User.Username
		}
		fmt.Fprintf(c.out, "%s as %s, %d conversations, %d pending\n", st.State, user, st.Conversations, st.PendingSends)
	case "logout":
		if err := c.eng.Logout(ctx); err != nil {
			return err
		}
		return errQuit
	case "quit", "exit":
		return errQuit
	default:
		return errors.Errorf("unknown command %q, try help", name)
	}
	return nil
}

func (c *console) printConversations(convs []types.Conversation, st engine.Status) {
	var self int64
	if st.User != nil {
		self = st.User.Id
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, conv := range convs {
		marker := " "
		if conv.Id == st.ActiveId {
			marker = "*"
		}
		unread := ""
		if conv.UnreadCount > 0 {
			unread = fmt.Sprintf("(%d)", conv.UnreadCount)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", marker, conv.Id, conv.Chat.Title(self), unread, conv.Chat.LastMessagePreview)
	}
	w.Flush()
}

func (c *console) printTimeline(view engine.TimelineView) {
	if view.ConversationId == 0 {
		fmt.Fprintln(c.out, "no active conversation")
		return
	}
	if !view.Loaded {
		fmt.Fprintln(c.out, "loading history...")
	}
	for _, m := range view.Messages {
		from := strconv.FormatInt(m.SenderId, 10)
		if m.Sender != nil && m.Sender.Username != "" {
			from = m.Sender.Username
		}
		pending := ""
		if m.Id < 0 {
			pending = " (sending)"
		}
		fmt.Fprintf(c.out, "[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), from, m.Content, pending)
	}
}
