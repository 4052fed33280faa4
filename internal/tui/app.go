// Package tui is the terminal chat shell. It renders the chat core and
// forwards user actions to it; all state lives in the stores.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/chat"
	"github.com/matheus3301/rentchat/internal/client"
	"github.com/matheus3301/rentchat/internal/status"
	"github.com/matheus3301/rentchat/internal/tui/keys"
	"github.com/matheus3301/rentchat/internal/tui/model"
	"github.com/matheus3301/rentchat/internal/tui/ui"
	"github.com/matheus3301/rentchat/internal/tui/views"
	"github.com/rivo/tview"
)

// Page names.
const (
	pageList    = "conversations"
	pageThread  = "thread"
	pageDetails = "details"
	pageHelp    = "help"
)

const refreshInterval = 15 * time.Second

// App is the main TUI application shell.
type App struct {
	app         *tview.Application
	root        *tview.Flex
	pages       *ui.Pages
	theme       *ui.Theme
	crumbs      *ui.Crumbs
	menu        *ui.Menu
	prompt      *ui.Prompt
	flash       *ui.FlashModel
	flashBar    *ui.FlashBar
	sessionInfo *ui.SessionInfo
	list        *views.ConversationList
	thread      *views.MessageThread
	details     *views.ConversationInfo
	help        *views.HelpView
	statusBar   *views.StatusBar
	registry    *keys.Registry
	components  map[string]ui.Component

	core        *client.Client
	sessionName string
	started     time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates the TUI application on screen. The client must be started.
func NewApp(c *client.Client, screen tcell.Screen, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		pages:       ui.NewPages(),
		theme:       theme,
		crumbs:      ui.NewCrumbs(theme),
		menu:        ui.NewMenu(theme),
		prompt:      ui.NewPrompt(theme),
		flash:       ui.NewFlashModel(),
		flashBar:    ui.NewFlashBar(theme),
		sessionInfo: ui.NewSessionInfo(theme),
		list:        views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		details:     views.NewConversationInfo(theme),
		help:        views.NewHelpView(theme),
		statusBar:   views.NewStatusBar(theme),
		registry:    keys.NewRegistry(),
		core:        c,
		sessionName: sessionName,
		started:     time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	if screen != nil {
		a.app.SetScreen(screen)
	}
	a.components = map[string]ui.Component{
		pageList:    a.list,
		pageThread:  a.thread,
		pageDetails: a.details,
		pageHelp:    a.help,
	}

	a.statusBar.SetSession(sessionName, c.Viewer().Name)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "::command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddView(pageList, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageList, "clear", &keys.Action{
		Rune: '0', Key: tcell.KeyRune,
		Handler: func() { a.list.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageList, "jump"+strconv.Itoa(n), &keys.Action{
			Rune: rune('0' + n), Key: tcell.KeyRune,
			Handler: func() {
				if id := a.list.ConversationByIndex(n); id != "" {
					a.openConversation(id)
				}
			},
		})
	}
	a.registry.AddView(pageThread, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Description: "d:details", Visible: true,
		Handler: func() { a.push(pageDetails) },
	})
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(row, _ int) {
		if id := a.list.ConversationByIndex(row); id != "" {
			a.openConversation(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		id := a.core.Conversations.ActiveID()
		if id == "" {
			return
		}
		go func() {
			if _, err := a.core.Conversations.Send(a.ctx, id, text); err != nil {
				a.flashErr(fmt.Errorf("send failed: %w", err))
				a.app.QueueUpdateDraw(func() { a.thread.RestoreDraft(text) })
			}
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.list.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.prompt.SetCommands(commandNames)

	a.pages.SetOnChange(func(stack []string) {
		a.updateChrome(stack)
		if c, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(c.Hints())
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageList, a.list, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	header := tview.NewFlex().
		AddItem(a.sessionInfo, 40, 0, false).
		AddItem(a.menu, 0, 1, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.pages.Reset(pageList)
	a.app.SetFocus(a.list)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Text inputs handle their own keys; Esc leaves the composer.
		switch a.app.GetFocus() {
		case a.prompt:
			return event
		case a.thread.Composer():
			if event.Key() == tcell.KeyEscape {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}
		if event.Key() == tcell.KeyEscape {
			a.back()
			return nil
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

// updateChrome redraws the breadcrumbs. The thread crumbs carry the
// counterpart's name.
func (a *App) updateChrome(stack []string) {
	names := make([]string, 0, len(stack))
	for _, p := range stack {
		names = append(names, a.components[p].Name())
	}
	detail := ""
	if slices.Contains(stack, pageThread) {
		detail = a.thread.Title()
	}
	a.crumbs.Update(names, detail)
}

func (a *App) push(page string) {
	if a.pages.Current() == page {
		return
	}
	a.pages.Push(page)
	a.render()
	a.focusCurrent()
}

func (a *App) back() {
	if a.pages.Pop() == pageThread {
		a.core.Conversations.Close()
	}
	a.render()
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	if c, ok := a.components[a.pages.Current()]; ok {
		a.app.SetFocus(c.FocusTarget())
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) openConversation(id string) {
	a.pages.Reset(pageList)
	a.push(pageThread)
	go func() {
		if err := a.core.Conversations.Open(a.ctx, id); err != nil {
			a.flashErr(err)
		}
	}()
}

func (a *App) runCommand(cmd Command) {
	convs := a.core.Conversations
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "open":
		n, err := strconv.Atoi(cmd.Args)
		if id := a.list.ConversationByIndex(n); err == nil && id != "" {
			a.openConversation(id)
			return
		}
		a.flash.Warn("no conversation " + cmd.Args)
	case "start":
		args := cmd.Split(3)
		owner, listing, title := args[0], args[1], args[2]
		if owner == "" || listing == "" {
			a.flash.Warn("usage: start <owner-id> <listing-id> [title]")
			return
		}
		a.async("start", func(ctx context.Context) error {
			conv, err := convs.GetOrCreate(ctx, chat.Subject{ID: listing, Title: title}, chat.Participant{UserID: owner})
			if err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() { a.openConversation(conv.ID) })
			return nil
		})
	case "status":
		id := convs.ActiveID()
		if id == "" {
			a.flash.Warn("open a conversation first")
			return
		}
		a.async("status", func(ctx context.Context) error {
			return convs.UpdateStatus(ctx, id, chat.Status(cmd.Args))
		})
	case "propose":
		id := convs.ActiveID()
		body := cmd.Args
		a.async("propose", func(ctx context.Context) error {
			if _, err := convs.SendProposal(ctx, id, body, nil); err != nil {
				a.app.QueueUpdateDraw(func() { a.thread.RestoreDraft(body) })
				return err
			}
			return nil
		})
	case "accept", "decline":
		args := cmd.Split(2)
		id := convs.ActiveID()
		accept := cmd.Name == "accept"
		if args[0] == "" {
			a.flash.Warn("usage: " + cmd.Name + " <proposal-id> [note]")
			return
		}
		a.async(cmd.Name, func(ctx context.Context) error {
			_, err := convs.RespondProposal(ctx, id, args[0], accept, args[1])
			return err
		})
	case "logout":
		a.async("logout", func(context.Context) error {
			if err := a.core.Logout(); err != nil {
				return err
			}
			a.app.QueueUpdateDraw(a.Stop)
			return nil
		})
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
	}
}

// async runs fn off the UI goroutine and flashes its outcome.
func (a *App) async(name string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.flashErr(fmt.Errorf("%s: %w", name, err))
			return
		}
		a.flash.Info(name + ": done")
	}()
}

func (a *App) flashErr(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	a.flash.Err(err)
}

// render copies store state into the views. Runs on the UI goroutine.
func (a *App) render() {
	now := time.Now()
	convs := a.core.Conversations
	viewer := a.core.Viewer()
	activeID := convs.ActiveID()

	rows := model.ConversationRows(convs.All(), viewer, activeID, a.core.Profiles, now)
	a.list.Update(rows)

	if active, ok := convs.Active(); ok {
		var row model.ConversationRow
		for _, r := range rows {
			if r.ID == active.ID {
				row = r
			}
		}
		a.thread.SetHeader(row.Counterpart, row.LastSeen, row.Online)
		stream := a.core.Stream
		a.thread.Update(model.MessageLines(stream.Messages(), active, viewer, now), stream.Loading())
		if a.pages.Current() == pageDetails {
			a.details.Update(row, active.ResourceID)
		}
	} else if cur := a.pages.Current(); cur == pageThread || cur == pageDetails {
		// The open conversation went away underneath us.
		a.pages.Reset(pageList)
		a.focusCurrent()
	}

	links := a.core.Links()
	a.statusBar.SetLinks(links)
	a.statusBar.SetUnread(convs.TotalUnread())
	a.sessionInfo.Update(&ui.SessionData{
		Session:       a.sessionName,
		User:          viewer.Name,
		Role:          viewer.Role,
		Link:          string(worstLink(links)),
		Conversations: len(rows),
		Unread:        convs.TotalUnread(),
		Uptime:        now.Sub(a.started),
	})
	a.flashBar.Update(a.flash.Current())
	a.updateChrome(a.pages.Stack())
}

// worstLink summarizes the links by the least healthy state. The messages
// link is only open while a conversation is, so Idle or Closed there is not
// a fault.
func worstLink(links map[string]status.State) status.State {
	rank := map[status.State]int{status.Live: 0, status.Connecting: 1, status.Reconnecting: 2, status.Idle: 3, status.Closed: 4}
	worst := status.Live
	for link, s := range links {
		if link == client.LinkMessages && (s == status.Idle || s == status.Closed) {
			continue
		}
		if rank[s] > rank[worst] {
			worst = s
		}
	}
	return worst
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	defer a.cancel()
	go a.refreshLoop()
	a.render()
	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.core.Changed():
		case <-a.flash.Changed():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// Bell rings the terminal bell for inbound messages.
type Bell struct {
	screen tcell.Screen
}

// NewBell returns a notifier that beeps on screen.
func NewBell(screen tcell.Screen) *Bell {
	return &Bell{screen: screen}
}

// Notify implements backend.Notifier.
func (b *Bell) Notify(_ context.Context, _ backend.Notification) {
	_ = b.screen.Beep()
}
