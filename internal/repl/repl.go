// Package repl is the interactive console front end over the sync engine.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"ChatSync/internal/chat"
	"ChatSync/internal/engine"
	"ChatSync/internal/gateway"

	"github.com/fatih/color"
)

// Notifier prints user-visible errors to the console in red.
type Notifier struct{}

func (Notifier) Notify(message string) {
	color.Red("! %s", message)
}

// REPL reads user input and drives the engine.
type REPL struct {
	engine  *engine.Engine
	gateway *gateway.Client
	logger  *slog.Logger
}

// New creates a REPL over the given engine.
func New(eng *engine.Engine, gw *gateway.Client, logger *slog.Logger) *REPL {
	return &REPL{engine: eng, gateway: gw, logger: logger}
}

// Run starts the interactive loop.
func (r *REPL) Run() error {
	ctx := context.Background()

	if err := r.engine.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}

	fmt.Println("=== ChatSync ===")
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := r.handleCommand(ctx, input)
			if err != nil {
				color.Red("Error: %v", err)
				r.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := r.send(ctx, input); err != nil {
			if !errors.Is(err, engine.ErrSendInFlight) {
				color.Red("Error: %v", err)
			}
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Println("Goodbye!")
	return nil
}

func (r *REPL) send(ctx context.Context, input string) error {
	err := r.engine.AddMessage(ctx, chat.Message{Role: chat.RoleUser, Content: input})
	if errors.Is(err, engine.ErrSendInFlight) {
		color.Yellow("A message is already being sent, try again in a moment")
		return err
	}
	if err != nil {
		return err
	}

	for _, c := range r.engine.Chats() {
		if !c.Active || len(c.Messages) == 0 {
			continue
		}
		last := c.Messages[len(c.Messages)-1]
		if last.Role == chat.RoleAssistant {
			color.Cyan("Bot: %s\n", last.Content)
		}
	}
	return nil
}

func (r *REPL) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		id, err := r.engine.CreateNewChat(ctx)
		if err != nil {
			return false, err
		}
		fmt.Printf("Started new chat %d\n", id)
		return false, nil

	case "/chats":
		chats := r.engine.Chats()
		if len(chats) == 0 {
			fmt.Println("No chats yet.")
			return false, nil
		}
		fmt.Println()
		for _, c := range chats {
			marker := " "
			if c.Active {
				marker = "*"
			}
			t := c.Title
			if t == "" {
				t = "(untitled)"
			}
			fmt.Printf("%s %d: %s (%d messages)\n", marker, c.ID, t, len(c.Messages))
		}
		fmt.Println()
		return false, nil

	case "/open":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /open <chat-id>")
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid chat id: %q", parts[1])
		}
		if err := r.engine.SetCurrentChat(ctx, id); err != nil {
			return false, err
		}
		r.printCurrent()
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <chat-id>")
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid chat id: %q", parts[1])
		}
		if err := r.engine.DeleteChat(ctx, id); err != nil {
			return false, err
		}
		fmt.Printf("Deleted chat %d\n", id)
		return false, nil

	case "/sync":
		if err := r.engine.FetchAndSyncConversations(ctx); err != nil {
			return false, err
		}
		fmt.Printf("Synced %d conversations from the server\n", len(r.engine.Chats()))
		return false, nil

	case "/remote":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /remote <conversation-id>")
		}
		conv, err := r.gateway.GetConversation(ctx, parts[1])
		if err != nil {
			return false, err
		}
		fmt.Printf("\n%s (%s, created %s)\n", conv.Title, conv.ID, conv.CreatedAt.Format("2006-01-02 15:04"))
		for _, m := range conv.Messages {
			fmt.Printf("  [%s] %s\n", m.Role, m.Content)
		}
		fmt.Println()
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit       - Exit")
		fmt.Println("  /new               - Start a new chat")
		fmt.Println("  /chats             - List local chats (* marks the current one)")
		fmt.Println("  /open <id>         - Select a chat and show its transcript")
		fmt.Println("  /delete <id>       - Delete a chat")
		fmt.Println("  /sync              - Replace the local cache with the server's conversations")
		fmt.Println("  /remote <conv-id>  - Show a conversation as the server has it")
		fmt.Println("  /help              - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}

func (r *REPL) printCurrent() {
	for _, c := range r.engine.Chats() {
		if !c.Active {
			continue
		}
		t := c.Title
		if t == "" {
			t = "(untitled)"
		}
		fmt.Printf("\nChat %d: %s\n", c.ID, t)
		for _, m := range c.Messages {
			fmt.Printf("  [%s] %s\n", m.Role, m.Content)
		}
		fmt.Println()
		return
	}
}
