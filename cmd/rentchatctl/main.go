package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/client"
	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/logging"
	"github.com/matheus3301/rentchat/internal/remote"
	"github.com/matheus3301/rentchat/internal/session"
	"github.com/matheus3301/rentchat/internal/share"
)

const binary = "rentchatctl"

type globals struct {
	session string
	json    bool
	cfg     *config.Config
	viewer  chat.Viewer
}

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	userFlag := flag.String("user", "", "act as this user id (overrides config identity)")
	nameFlag := flag.String("name", "", "display name for --user")
	roleFlag := flag.String("role", "", "role for --user (client, owner, ...)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := session.LoadConfig()
	if err != nil {
		fail(err)
	}
	id := cfg.Identity
	if *userFlag != "" {
		id = config.Identity{UserID: *userFlag, Name: *nameFlag, Role: *roleFlag, EmailVerified: true}
	}
	g := &globals{
		session: sessionName,
		json:    *jsonFlag,
		cfg:     cfg,
		viewer:  chat.Viewer{UserID: id.UserID, Name: id.Name, Role: id.Role, EmailVerified: id.EmailVerified},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		cmdStatus(ctx, g)
	case "sessions":
		if len(rest) >= 1 && rest[0] == "list" {
			cmdSessionsList(g)
		} else {
			usage("sessions list")
		}
	case "share":
		if len(rest) < 1 {
			usage("share <conversation-id> [listing-id]")
		}
		cmdShare(g, rest[0], arg(rest, 1))
	case "register-file":
		if len(rest) < 3 {
			usage("register-file <bucket> <file-id> <object-key> [content-type] [size]")
		}
		cmdRegisterFile(ctx, g, rest)
	default:
		runChat(ctx, g, cmd, rest)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: rentchatctl [--session <name>] [--json] [--user <id> --name <name> --role <role>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  sessions list                          List known sessions")
	fmt.Fprintln(os.Stderr, "  list                                   List conversations")
	fmt.Fprintln(os.Stderr, "  open <id|link>                         Open a conversation and mark it read")
	fmt.Fprintln(os.Stderr, "  messages <id>                          Print messages without marking read")
	fmt.Fprintln(os.Stderr, "  start <owner-id> <listing-id> [title]  Start or reuse a conversation")
	fmt.Fprintln(os.Stderr, "  send <id> <text>                       Send a message")
	fmt.Fprintln(os.Stderr, "  proposal <id> <text>                   Send a proposal")
	fmt.Fprintln(os.Stderr, "  respond <id> <proposal-id> accept|decline [note]")
	fmt.Fprintln(os.Stderr, "  set-status <id> <status>               Change conversation status")
	fmt.Fprintln(os.Stderr, "  presence <user-id>...                  Show online state")
	fmt.Fprintln(os.Stderr, "  watch                                  Stream conversation changes")
	fmt.Fprintln(os.Stderr, "  share <id> [listing-id]                Print a conversation link as QR")
	fmt.Fprintln(os.Stderr, "  register-file <bucket> <file-id> <key> Register an uploaded file")
}

func usage(s string) {
	fmt.Fprintln(os.Stderr, "usage: rentchatctl "+s)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func cmdStatus(ctx context.Context, g *globals) {
	r, err := remote.New(session.SocketPath(g.session), "")
	if err != nil {
		fail(err)
	}
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := r.Status(ctx)
	if err != nil {
		// Daemon unreachable: report who holds the session, if anyone.
		h, held, lerr := lock.Inspect(session.Dir(g.session))
		if lerr == nil && held {
			fail(fmt.Errorf("daemon for session %q is not answering (lock held by PID %d since %s)", g.session, h.PID, h.Since.Format(time.RFC3339)))
		}
		fail(fmt.Errorf("daemon for session %q is not running", g.session))
	}
	if g.json {
		outputJSON(st)
		return
	}
	fmt.Printf("Session:     %v\n", st["session"])
	fmt.Printf("Started:     %v\n", st["startedAt"])
	fmt.Printf("Uptime:      %vs\n", st["uptimeSeconds"])
	fmt.Printf("Subscribers: %v\n", st["subscribers"])
	if counts, ok := st["documents"].(map[string]any); ok {
		for _, c := range []string{g.cfg.Collections.Conversations, g.cfg.Collections.Messages, g.cfg.Collections.Profiles} {
			fmt.Printf("  %-12s %v\n", c, counts[c])
		}
	}
}

type sessionEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
}

func cmdSessionsList(g *globals) {
	entries, err := os.ReadDir(session.BaseDir())
	if err != nil && !os.IsNotExist(err) {
		fail(err)
	}
	var out []sessionEntry
	for _, e := range entries {
		if !e.IsDir() || session.ValidateName(e.Name()) != nil {
			continue
		}
		s := sessionEntry{Name: e.Name(), Path: session.Dir(e.Name())}
		if h, held, err := lock.Inspect(s.Path); err == nil && held {
			s.Running, s.PID = true, h.PID
		}
		out = append(out, s)
	}
	if g.json {
		outputJSON(out)
		return
	}
	if len(out) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range out {
		running := "stopped"
		if s.Running {
			running = "running, pid " + strconv.Itoa(s.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

func cmdShare(g *globals, id, listing string) {
	link := share.Link(id, listing)
	if g.json {
		outputJSON(map[string]string{"link": link})
		return
	}
	qr, err := share.QR(link, "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(qr)
	fmt.Println(link)
}

func cmdRegisterFile(ctx context.Context, g *globals, args []string) {
	var size int64
	if s := arg(args, 4); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fail(fmt.Errorf("size: %w", err))
		}
		size = n
	}
	r, err := remote.New(session.SocketPath(g.session), g.viewer.UserID)
	if err != nil {
		fail(err)
	}
	defer func() { _ = r.Close() }()
	if err := r.RegisterFile(ctx, args[0], args[1], args[2], arg(args, 3), size); err != nil {
		fail(err)
	}
	url, err := r.URL(ctx, args[0], args[1])
	if err != nil {
		fail(err)
	}
	fmt.Println(url)
}

// runChat runs the commands that need a started chat client.
func runChat(ctx context.Context, g *globals, cmd string, args []string) {
	logger, err := logging.NewFile(session.LogPath(g.session, binary), g.session, false)
	if err != nil {
		fail(err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := client.Open(client.Options{
		SessionName: g.session,
		Config:      g.cfg,
		Viewer:      g.viewer,
		Logger:      logger,
	})
	if err != nil {
		fail(fmt.Errorf("cannot connect to daemon for session %q: %w", g.session, err))
	}
	defer func() { _ = c.Close() }()
	// Presence reads profiles only; starting would let the conversation
	// watch set replace the requested ids.
	if cmd != "presence" {
		if err := c.Start(ctx); err != nil {
			fail(err)
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := dispatch(ctx, opCtx, g, c, cmd, args); err != nil {
		_ = c.Close()
		fail(err)
	}
}

func dispatch(ctx, opCtx context.Context, g *globals, c *client.Client, cmd string, args []string) error {
	convs := c.Conversations
	switch cmd {
	case "list":
		list, err := convs.List(opCtx)
		if err != nil {
			return err
		}
		printConversations(g, c, list)
	case "open":
		if len(args) < 1 {
			usage("open <conversation-id|link>")
		}
		id := args[0]
		if parsed, err := share.Parse(id); err == nil {
			id = parsed
		}
		if err := convs.Open(opCtx, id); err != nil {
			return err
		}
		printMessages(g, c, id)
	case "messages":
		if len(args) < 1 {
			usage("messages <conversation-id>")
		}
		if err := c.Stream.Load(opCtx, args[0]); err != nil {
			return err
		}
		printMessages(g, c, args[0])
	case "start":
		if len(args) < 2 {
			usage("start <owner-id> <listing-id> [title]")
		}
		conv, err := convs.GetOrCreate(opCtx,
			chat.Subject{ID: args[1], Title: strings.Join(args[2:], " ")},
			chat.Participant{UserID: args[0]})
		if err != nil {
			return err
		}
		printConversations(g, c, []chat.Conversation{conv})
	case "send", "proposal":
		if len(args) < 2 {
			usage(cmd + " <conversation-id> <text>")
		}
		body := strings.Join(args[1:], " ")
		var (
			msg chat.Message
			err error
		)
		if cmd == "send" {
			msg, err = convs.Send(opCtx, args[0], body)
		} else {
			msg, err = convs.SendProposal(opCtx, args[0], body, nil)
		}
		if err != nil {
			return err
		}
		printMessage(g, msg)
	case "respond":
		if len(args) < 3 || (args[2] != "accept" && args[2] != "decline") {
			usage("respond <conversation-id> <proposal-id> accept|decline [note]")
		}
		msg, err := convs.RespondProposal(opCtx, args[0], args[1], args[2] == "accept", strings.Join(args[3:], " "))
		if err != nil {
			return err
		}
		printMessage(g, msg)
	case "set-status":
		if len(args) < 2 {
			usage("set-status <conversation-id> <active|archived|closed>")
		}
		return convs.UpdateStatus(opCtx, args[0], chat.Status(args[1]))
	case "presence":
		if len(args) < 1 {
			usage("presence <user-id>...")
		}
		c.Profiles.Watch(opCtx, args)
		printPresence(g, c, args)
	case "watch":
		return watch(ctx, g, c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	return nil
}

// watch prints the conversation list on every change until interrupted.
func watch(ctx context.Context, g *globals, c *client.Client) error {
	printConversations(g, c, c.Conversations.All())
	for {
		select {
		case <-c.Changed():
			if !g.json {
				fmt.Println("--")
			}
			printConversations(g, c, c.Conversations.All())
		case <-ctx.Done():
			return nil
		}
	}
}

type conversationOut struct {
	ID          string `json:"id"`
	Listing     string `json:"listing"`
	With        string `json:"with"`
	Online      bool   `json:"online"`
	LastMessage string `json:"lastMessage"`
	Unread      int    `json:"unread"`
	Status      string `json:"status"`
	Updated     string `json:"updated"`
}

func printConversations(g *globals, c *client.Client, list []chat.Conversation) {
	viewer := c.Viewer()
	out := make([]conversationOut, 0, len(list))
	for _, conv := range list {
		other := chat.Other(conv, viewer)
		with := other.Name
		if with == "" {
			with = other.UserID
		}
		out = append(out, conversationOut{
			ID:          conv.ID,
			Listing:     conv.ResourceTitle,
			With:        with,
			Online:      c.Profiles.IsOnline(other.UserID),
			LastMessage: conv.LastMessage,
			Unread:      chat.Unread(conv, viewer),
			Status:      string(conv.Status),
			Updated:     conv.UpdatedAt,
		})
	}
	if g.json {
		outputJSON(out)
		return
	}
	if len(out) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, o := range out {
		dot := " "
		if o.Online {
			dot = "*"
		}
		fmt.Printf("%s %-36s %s%-16s %-20s %3d  %s\n", o.ID, o.Listing, dot, o.With, o.Status, o.Unread, o.LastMessage)
	}
}

func printMessages(g *globals, c *client.Client, id string) {
	conv, _ := c.Conversations.Get(id)
	msgs := c.Stream.Messages()
	if g.json {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		mark := ""
		if m.SenderUserID == c.Viewer().UserID {
			mark = " [" + string(chat.DeliveryStatus(m, conv, c.Viewer())) + "]"
		}
		fmt.Printf("%s %-16s %s%s\n", m.CreatedAt, m.SenderName, m.Body, mark)
	}
}

func printMessage(g *globals, m chat.Message) {
	if g.json {
		outputJSON(m)
		return
	}
	fmt.Printf("%s %s\n", m.ID, m.CreatedAt)
}

func printPresence(g *globals, c *client.Client, ids []string) {
	type entry struct {
		UserID   string `json:"userId"`
		Name     string `json:"name"`
		Online   bool   `json:"online"`
		LastSeen string `json:"lastSeen"`
	}
	out := make([]entry, 0, len(ids))
	for _, id := range ids {
		p, _ := c.Profiles.Get(id)
		out = append(out, entry{UserID: id, Name: p.Name, Online: c.Profiles.IsOnline(id), LastSeen: c.Profiles.LastSeenText(id)})
	}
	if g.json {
		outputJSON(out)
		return
	}
	for _, e := range out {
		state := "offline"
		if e.Online {
			state = "online"
		}
		fmt.Printf("%-20s %-20s %-8s %s\n", e.UserID, e.Name, state, e.LastSeen)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
