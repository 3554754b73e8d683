// Package cli implements the operator console: live tables of games,
// sessions and the matchmaking queue, plus kick and shutdown commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/session"
)

// AccountLister lists registered accounts.
type AccountLister interface {
	ListAccounts(ctx context.Context) ([]session.Account, error)
}

// CLI is the interactive operator console.
type CLI struct {
	in  io.Reader
	out io.Writer

	bus      *events.EventBus
	sessions *session.Manager
	games    *game.Engine
	accounts AccountLister
}

// NewCLI creates a console reading commands from in and writing to out.
// accounts may be nil.
func NewCLI(in io.Reader, out io.Writer, bus *events.EventBus, sessions *session.Manager, games *game.Engine, accounts AccountLister) *CLI {
	return &CLI{
		in:       in,
		out:      out,
		bus:      bus,
		sessions: sessions,
		games:    games,
		accounts: accounts,
	}
}

// Start runs the read-eval loop until ctx ends or input is exhausted.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nBlazer console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "blazer> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				log.Debug().Msg("console input closed")
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "games", "g":
		return c.printGames(args)
	case "sessions":
		c.printSessions()
	case "queue":
		c.printQueue()
	case "accounts":
		return c.printAccounts(ctx)
	case "kick":
		return c.cmdKick(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down Blazer...")
		c.bus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status            Server totals
  games [id]        List games, or show one game's members
  sessions          List connected sessions
  queue             Show the matchmaking queue
  accounts          List registered accounts
  kick <session>    Disconnect a session
  quit              Shut down Blazer
  help              Show this help message`)
}

func (c *CLI) newTable(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	stats := c.games.Stats()
	tw := c.newTable("Sessions", "Authenticated", "Games", "Players", "Queued")
	tw.Append([]string{
		strconv.Itoa(c.sessions.Count()),
		strconv.Itoa(c.sessions.CountAuthenticated()),
		strconv.Itoa(stats.Games),
		strconv.Itoa(stats.Players),
		strconv.Itoa(stats.Queued),
	})
	tw.Render()
}

func (c *CLI) printGames(args []string) error {
	if len(args) > 0 {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid game id: %s", args[0])
		}
		snap, ok := c.games.Get(uint32(id))
		if !ok {
			return fmt.Errorf("game %d not found", id)
		}
		c.printGameDetail(snap)
		return nil
	}

	tw := c.newTable("ID", "State", "Host", "Players", "Attributes", "Age")
	for _, g := range c.games.List() {
		tw.Append([]string{
			strconv.FormatUint(uint64(g.ID), 10),
			g.State.String(),
			strconv.FormatUint(uint64(g.Host), 10),
			fmt.Sprintf("%d/%d", g.Players, g.Capacity),
			formatAttrs(g.Attributes),
			time.Since(g.CreatedAt).Truncate(time.Second).String(),
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) printGameDetail(snap game.Snapshot) {
	fmt.Fprintf(c.out, "\n  Game:       %d\n", snap.ID)
	fmt.Fprintf(c.out, "  State:      %s\n", snap.State)
	fmt.Fprintf(c.out, "  Capacity:   %d\n", snap.Capacity)
	fmt.Fprintf(c.out, "  Attributes: %s\n", formatAttrs(snap.Attributes))

	tw := c.newTable("Slot", "Session", "Joined", "Attributes")
	for _, m := range snap.Members {
		tw.Append([]string{
			strconv.Itoa(m.Slot),
			strconv.FormatUint(uint64(m.SessionID), 10),
			m.JoinedAt.Format(time.TimeOnly),
			formatAttrs(m.Attributes),
		})
	}
	tw.Render()
}

func (c *CLI) printSessions() {
	tw := c.newTable("ID", "Remote", "State", "Persona", "Game", "Idle", "Dropped")
	for _, s := range c.sessions.Snapshot() {
		gameCol := "-"
		if s.InGame {
			gameCol = strconv.FormatUint(uint64(s.GameID), 10)
		}
		tw.Append([]string{
			strconv.FormatUint(uint64(s.ID), 10),
			s.Remote,
			s.State.String(),
			s.Persona,
			gameCol,
			time.Since(s.LastActivity).Truncate(time.Second).String(),
			strconv.FormatUint(s.Dropped, 10),
		})
	}
	tw.Render()
}

func (c *CLI) printQueue() {
	tw := c.newTable("#", "Session", "Criteria", "Waiting")
	for i, q := range c.games.Queue() {
		tw.Append([]string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(uint64(q.SessionID), 10),
			formatAttrs(q.Criteria),
			time.Since(q.Enqueued).Truncate(time.Second).String(),
		})
	}
	tw.Render()
}

func (c *CLI) printAccounts(ctx context.Context) error {
	if c.accounts == nil {
		return fmt.Errorf("account store unavailable")
	}
	accounts, err := c.accounts.ListAccounts(ctx)
	if err != nil {
		return err
	}
	tw := c.newTable("ID", "Email", "Persona", "Last Login")
	for _, a := range accounts {
		last := "-"
		if !a.LastLogin.IsZero() {
			last = a.LastLogin.Format(time.DateTime)
		}
		tw.Append([]string{strconv.FormatUint(uint64(a.ID), 10), a.Email, a.Persona, last})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdKick(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <session>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid session id: %s", args[0])
	}
	if !c.sessions.Disconnect(uint32(id), "kicked by operator") {
		return fmt.Errorf("session %d not found", id)
	}
	fmt.Fprintf(c.out, "Session %d disconnected\n", id)
	return nil
}

func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k]
	}
	return strings.Join(parts, " ")
}
