package main

import (
	"bufio"
	"context"
	"dm-relay/client"
	"dm-relay/domain"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("chat: %v", err))
	}
	os.Exit(code)
}

type options struct {
	httpAddr string
	grpcAddr string
	username string
	password string
	register bool
	deadline time.Duration
	logLevel string
}

func parseOptions() options {
	var o options
	flag.StringVar(&o.httpAddr, "http", "http://localhost:3000", "relay HTTP API base URL")
	flag.StringVar(&o.grpcAddr, "grpc", "localhost:50051", "relay gRPC address")
	flag.StringVar(&o.username, "user", "", "username")
	flag.StringVar(&o.password, "password", os.Getenv("DM_RELAY_PASSWORD"), "password (or DM_RELAY_PASSWORD)")
	flag.BoolVar(&o.register, "register", false, "create the account before logging in")
	flag.DurationVar(&o.deadline, "ack-deadline", client.DefaultAckDeadline, "how long a message may stay pending")
	flag.StringVar(&o.logLevel, "log", "ERROR", "log level")
	flag.Parse()
	return o
}

func run() (int, error) {
	o := parseOptions()
	if o.username == "" || o.password == "" {
		flag.Usage()
		return exitConfig, fmt.Errorf("-user and -password are required")
	}
	logger := logs.GetLoggerFromString(o.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Identity
	api := client.NewAPIClient(o.httpAddr, 10*time.Second)
	if o.register {
		if _, err := api.Register(o.username, o.password); err != nil {
			return exitRuntime, fmt.Errorf("register: %w", err)
		}
	}
	account, err := api.Login(o.username, o.password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login: %w", err)
	}
	color.Green.Printf("Logged in as %s (#%s)\n", account.Username, account.ID)

	// 2. Real-time link
	conn, err := grpc.NewClient(o.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("grpc client: %w", err)
	}
	defer conn.Close()

	dial := func(ctx context.Context) (client.Link, error) {
		return client.DialSession(ctx, logger, conn, account.Token, 64)
	}
	supervisor := client.NewReconnectSupervisor(logger, dial, client.DefaultReconnectConfig())
	messenger := client.NewMessenger(logger, account.ID, supervisor, client.ConversationConfig{Deadline: o.deadline, SelfName: account.Username})

	ui := newTerminal(api, messenger, account)
	go func() { _ = supervisor.Run(ctx) }()
	go ui.watchStatus(ctx, supervisor.Changes())
	go ui.watchUnrouted(ctx)

	if err := ui.showContacts(); err != nil {
		color.Red.Printf("contacts: %v\n", err)
	}
	ui.help()

	// 3. Input loop
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := ui.handle(ctx, strings.TrimSpace(line)); quit {
				return exitOK, nil
			}
		}
	}
}

// terminal renders conversations and turns input lines into commands.
type terminal struct {
	api       *client.APIClient
	messenger *client.Messenger
	account   client.Account

	mu       sync.Mutex
	contacts map[domain.UserID]string
	current  *client.Conversation
	stopView context.CancelFunc
	printed  map[string]bool
}

func newTerminal(api *client.APIClient, messenger *client.Messenger, account client.Account) *terminal {
	return &terminal{
		api:       api,
		messenger: messenger,
		account:   account,
		contacts:  make(map[domain.UserID]string),
		printed:   make(map[string]bool),
	}
}

func (t *terminal) help() {
	color.Gray.Println("Commands: /to <user>  /contacts  /history  /retry  /reconnect  /status  /quit")
	color.Gray.Println("Anything else is sent to the open conversation.")
}

func (t *terminal) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit":
		return true
	case "/contacts":
		if err := t.showContacts(); err != nil {
			color.Red.Printf("contacts: %v\n", err)
		}
	case "/to":
		t.open(ctx, strings.TrimSpace(arg))
	case "/history":
		t.showHistory()
	case "/retry":
		t.retry(ctx)
	case "/reconnect":
		color.Yellow.Println("Reconnecting...")
		t.messenger.Reconnect()
	case "/status":
		status := t.messenger.Status()
		color.Cyan.Printf("%s via %s, attempts %d, last error %v\n", status.State, lo.Ternary(status.Transport == "", "-", status.Transport), status.Attempts, status.LastError)
	default:
		t.compose(ctx, line)
	}
	return false
}

func (t *terminal) showContacts() error {
	contacts, err := t.api.Contacts(t.account.ID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	for _, c := range contacts {
		t.contacts[c.ID] = c.Username
	}
	t.mu.Unlock()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Username"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, c := range contacts {
		table.Append([]string{c.ID.String(), c.Username})
	}
	table.Render()
	return nil
}

func (t *terminal) peerByName(name string) (domain.UserID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, username := range t.contacts {
		if strings.EqualFold(username, name) {
			return id, true
		}
	}
	return 0, false
}

func (t *terminal) nameOf(id domain.UserID) string {
	if id == t.account.ID {
		return "me"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if name, ok := t.contacts[id]; ok {
		return name
	}
	return "#" + id.String()
}

func (t *terminal) open(ctx context.Context, name string) {
	peer, ok := t.peerByName(name)
	if !ok {
		color.Red.Printf("unknown contact %q, try /contacts\n", name)
		return
	}

	conv := t.messenger.Open(peer)
	history, err := t.api.History(t.account.ID, peer)
	if err != nil {
		color.Red.Printf("history: %v\n", err)
	} else {
		conv.LoadHistory(history)
	}

	t.mu.Lock()
	if t.stopView != nil {
		t.stopView()
	}
	viewCtx, cancel := context.WithCancel(ctx)
	t.current = conv
	t.stopView = cancel
	t.printed = make(map[string]bool)
	t.mu.Unlock()

	color.Green.Printf("Talking to %s\n", name)
	t.render(conv)
	go t.watchConversation(viewCtx, conv)
}

func (t *terminal) conversation() *client.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *terminal) compose(ctx context.Context, content string) {
	conv := t.conversation()
	if conv == nil {
		color.Red.Println("no open conversation, use /to <user>")
		return
	}
	if _, err := conv.Compose(ctx, content); err != nil {
		color.Red.Printf("send: %v\n", err)
	}
}

// retry resends every failed message of the open conversation.
func (t *terminal) retry(ctx context.Context) {
	conv := t.conversation()
	if conv == nil {
		return
	}
	for _, entry := range conv.Entries() {
		if entry.State != client.Failed {
			continue
		}
		if _, err := conv.Retry(ctx, entry.TempID); err != nil {
			color.Red.Printf("retry: %v\n", err)
		}
	}
}

func (t *terminal) showHistory() {
	conv := t.conversation()
	if conv == nil {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "From", "Message", "State"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, entry := range conv.Entries() {
		table.Append([]string{
			entry.Message.Timestamp.Local().Format("15:04:05"),
			t.nameOf(entry.Message.SenderID),
			entry.Message.Content,
			entry.State.String(),
		})
	}
	table.Render()
}

func (t *terminal) watchConversation(ctx context.Context, conv *client.Conversation) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conv.Updates():
			t.render(conv)
		}
	}
}

// render prints the entries not printed yet in their current state.
func (t *terminal) render(conv *client.Conversation) {
	for _, entry := range conv.Entries() {
		key := entryKey(entry)
		t.mu.Lock()
		seen := t.printed[key]
		t.printed[key] = true
		t.mu.Unlock()
		if seen {
			continue
		}

		at := entry.Message.Timestamp.Local().Format("15:04:05")
		from := t.nameOf(entry.Message.SenderID)
		switch entry.State {
		case client.Pending:
			color.Gray.Printf("%s %s: %s (sending)\n", at, from, entry.Message.Content)
		case client.Failed:
			color.Red.Printf("%s %s: %s (failed, %s: %s)\n", at, from, entry.Message.Content, entry.Failure, entry.Error)
		default:
			color.Printf("<cyan>%s</> <green>%s</>: %s\n", at, from, entry.Message.Content)
		}
	}
}

func entryKey(entry client.Entry) string {
	if entry.State == client.Confirmed {
		return "id:" + fmt.Sprint(entry.Message.ID)
	}
	return fmt.Sprintf("tmp:%d:%s", entry.TempID, entry.State)
}

func (t *terminal) watchStatus(ctx context.Context, changes <-chan client.Status) {
	last := client.Disconnected
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-changes:
			if status.State == last && status.State == client.Connected {
				continue
			}
			switch {
			case status.State == client.Connected:
				color.Green.Printf("Connected (%s)\n", status.Transport)
			case status.LastError != nil:
				color.Yellow.Printf("Disconnected, attempt %d: %v\n", status.Attempts, status.LastError)
			case last == client.Connected:
				color.Yellow.Println("Disconnected")
			}
			last = status.State
		}
	}
}

func (t *terminal) watchUnrouted(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.messenger.Unrouted():
			from := lo.Ternary(msg.SenderName != "", msg.SenderName, t.nameOf(msg.SenderID))
			color.Magenta.Printf("New message from %s: %s (/to %s)\n", from, msg.Content, from)
		}
	}
}
