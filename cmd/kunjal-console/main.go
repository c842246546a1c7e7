// ABOUTME: Interactive console client for the agent chat backend.
// ABOUTME: Streams assistant replies over SSE and drives the approval flow.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/kunjal/agent-console/internal/auth"
	"github.com/kunjal/agent-console/internal/chat"
	"github.com/kunjal/agent-console/internal/config"
	"github.com/kunjal/agent-console/internal/mcp"
	"github.com/kunjal/agent-console/internal/stream"
)

var (
	assistantColor = color.New(color.FgGreen)
	systemColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	dimColor       = color.New(color.FgHiBlack)
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: "+config.DefaultPath()+")")
	server := flag.String("server", "", "Backend base URL (overrides config)")
	token := flag.String("token", "", "Bearer token (overrides env and token file)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Server.BaseURL = *server
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	var tokens auth.TokenProvider
	if *token != "" {
		tokens = auth.Static(*token)
	} else {
		tokenFile := cfg.Auth.TokenFile
		if tokenFile == "" {
			tokenFile = auth.DefaultTokenPath()
		}
		tokens = &auth.FileProvider{EnvVar: cfg.Auth.TokenEnv, Path: tokenFile}
	}

	fmt.Printf("kunjal-console connected to %s\n", cfg.Server.BaseURL)
	if tok := tokens.Token(); tok != "" {
		fmt.Println("Auth: bearer token configured")
		if exp := auth.ExpiresAt(tok); !exp.IsZero() && exp.Before(time.Now()) {
			errorColor.Printf("Warning: token expired at %s\n", exp.Format(time.RFC3339))
		}
	} else {
		fmt.Printf("Auth: none (set %s or -token)\n", cfg.Auth.TokenEnv)
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newConsole(cfg, tokens, logger)
	defer app.stream.Disconnect()

	if err := app.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// console owns the client stack and renders conversation state to stdout.
type console struct {
	ctrl    *chat.Controller
	stream  *stream.Client
	gateway *mcp.Gateway

	mu           sync.Mutex
	lastRendered int
	lastApproval string
}

func newConsole(cfg *config.Config, tokens auth.TokenProvider, logger *slog.Logger) *console {
	app := &console{
		ctrl:    chat.New(cfg.Server.BaseURL, tokens, logger),
		stream:  stream.New(cfg.Server.BaseURL, tokens, logger),
		gateway: mcp.New(cfg.Server.BaseURL, tokens, logger),
	}
	app.stream.SetReconnectDelay(cfg.Stream.ReconnectDelay)

	app.stream.OnEvent("message", app.ctrl.HandleMessage)
	app.stream.OnEvent("approval", app.ctrl.HandleApproval)
	app.stream.OnEvent("error", app.ctrl.HandleError)
	app.stream.OnEvent("done", app.ctrl.HandleDone)
	app.stream.OnConnectionChange(app.ctrl.SetConnected)
	app.ctrl.OnSessionEstablished(app.stream.Connect)
	app.ctrl.OnChange(app.render)

	return app
}

// render prints messages added since the last snapshot and surfaces a
// newly arrived approval request. Called from stream goroutines.
func (app *console) render(st chat.State) {
	app.mu.Lock()
	defer app.mu.Unlock()

	for ; app.lastRendered < len(st.Messages); app.lastRendered++ {
		msg := st.Messages[app.lastRendered]
		switch msg.Role {
		case chat.RoleUser:
			// Already echoed at the prompt.
		case chat.RoleSystem:
			errorColor.Printf("\n%s\n", msg.Content)
		default:
			assistantColor.Print("\nagent: ")
			fmt.Println(stripMarkdown(msg.Content))
		}
	}

	if st.PendingApproval != nil && st.PendingApproval.Message != app.lastApproval {
		app.lastApproval = st.PendingApproval.Message
		systemColor.Printf("\n[approval needed] %s\n", st.PendingApproval.Message)
		if st.PendingApproval.Placeholder != "" {
			dimColor.Printf("(%s)\n", st.PendingApproval.Placeholder)
		}
		fmt.Println("Reply with: yes <code>  or  no")
	}
	if st.PendingApproval == nil {
		app.lastApproval = ""
	}
}

func (app *console) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if app.ctrl.Snapshot().PendingApproval != nil {
			fmt.Print("approve> ")
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			if err := app.runCommand(ctx, input); err != nil {
				errorColor.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if app.ctrl.Snapshot().PendingApproval != nil {
			app.handleApprovalInput(ctx, input)
			continue
		}

		if err := app.ctrl.SendMessage(ctx, input); err != nil {
			errorColor.Printf("[error] %v\n", err)
		}
	}
}

// handleApprovalInput parses a "yes <code>" or "no" reply.
func (app *console) handleApprovalInput(ctx context.Context, input string) {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "yes", "y":
		if len(fields) < 2 {
			fmt.Println("Usage: yes <verification code>")
			return
		}
		if err := app.ctrl.SendApprovalDecision(ctx, true, fields[1]); err != nil {
			errorColor.Printf("[error] %v\n", err)
		}
	case "no", "n":
		if err := app.ctrl.SendApprovalDecision(ctx, false, ""); err != nil {
			errorColor.Printf("[error] %v\n", err)
		}
	default:
		fmt.Println("A decision is pending. Reply with: yes <code>  or  no")
	}
}

func (app *console) runCommand(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printHelp()
		return nil
	case "/orders":
		status := ""
		if len(args) > 0 {
			status = args[0]
		}
		return app.showOrders(ctx, status)
	case "/order":
		if len(args) < 1 {
			return fmt.Errorf("usage: /order <order id>")
		}
		return app.showOrder(ctx, args[0])
	case "/cancel":
		if len(args) < 1 {
			return fmt.Errorf("usage: /cancel <order id> [reason]")
		}
		return app.requestCancel(ctx, args[0], strings.Join(args[1:], " "))
	case "/confirm":
		if len(args) < 2 {
			return fmt.Errorf("usage: /confirm <approval id> <code>")
		}
		return app.confirmCancel(ctx, args[0], args[1])
	case "/tools":
		return app.showTools(ctx)
	case "/resources":
		return app.showResources(ctx)
	case "/prompts":
		return app.showPrompts(ctx)
	case "/health":
		return app.showHealth(ctx)
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /orders [status]            List your orders, optionally by status")
	fmt.Println("  /order <id>                 Show full order details")
	fmt.Println("  /cancel <id> [reason]       Request an order cancellation")
	fmt.Println("  /confirm <approval> <code>  Confirm a cancellation with its code")
	fmt.Println("  /tools                      List available tools")
	fmt.Println("  /resources                  List available resources")
	fmt.Println("  /prompts                    List available prompts")
	fmt.Println("  /health                     Check backend health")
	fmt.Println("  /help                       Show this help")
	fmt.Println("  /quit                       Exit the console")
}

func (app *console) showOrders(ctx context.Context, status string) error {
	list, err := app.gateway.ListOrders(ctx, 10, status)
	if err != nil {
		return err
	}
	if !list.Success {
		return fmt.Errorf("%s", list.Error)
	}
	if list.Count == 0 {
		fmt.Println("No orders found")
		return nil
	}
	fmt.Printf("%d orders:\n", list.Count)
	for _, o := range list.Orders {
		fmt.Printf("  %s  %-11s $%8.2f  %d item(s)  %s\n",
			o.OrderID, o.Status, o.Total, o.ItemCount, o.Date)
	}
	return nil
}

func (app *console) showOrder(ctx context.Context, orderID string) error {
	details, err := app.gateway.GetOrderDetails(ctx, orderID)
	if err != nil {
		return err
	}
	if !details.Success {
		return fmt.Errorf("%s", details.Error)
	}
	o := details.Order
	fmt.Printf("Order %s for %s\n", o.OrderID, o.CustomerName)
	fmt.Printf("  Status: %s\n", o.Status)
	fmt.Printf("  Items:  %s\n", strings.Join(o.Items, ", "))
	fmt.Printf("  Total:  $%.2f\n", o.Total)
	fmt.Printf("  Date:   %s\n", o.Date)
	return nil
}

func (app *console) requestCancel(ctx context.Context, orderID, reason string) error {
	req, err := app.gateway.RequestCancellation(ctx, orderID, reason)
	if err != nil {
		return err
	}
	if !req.Success {
		return fmt.Errorf("%s", req.Error)
	}
	fmt.Println(req.Message)
	fmt.Printf("Approval ID: %s\n", req.ApprovalID)
	fmt.Printf("Complete with: /confirm %s <code>\n", req.ApprovalID)
	return nil
}

func (app *console) confirmCancel(ctx context.Context, approvalID, code string) error {
	res, err := app.gateway.ConfirmCancellation(ctx, approvalID, code)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Printf("%s (refund: $%.2f)\n", res.Message, res.RefundAmount)
	return nil
}

func (app *console) showTools(ctx context.Context) error {
	tools, err := app.gateway.ListTools(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d tools:\n", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %s: %s\n", tool.Name, tool.Description)
		for name, p := range tool.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			dimColor.Printf("    %s <%s>%s %s\n", name, p.Type, req, p.Description)
		}
	}
	return nil
}

func (app *console) showResources(ctx context.Context) error {
	resources, err := app.gateway.ListResources(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d resources:\n", len(resources))
	for _, r := range resources {
		fmt.Printf("  %s  %s (%s)\n", r.URI, r.Name, r.MIMEType)
	}
	return nil
}

func (app *console) showPrompts(ctx context.Context) error {
	prompts, err := app.gateway.ListPrompts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d prompts:\n", len(prompts))
	for _, p := range prompts {
		fmt.Printf("  %s: %s\n", p.Name, p.Description)
		for _, a := range p.Arguments {
			dimColor.Printf("    %s <%s> required=%s\n", a.Name, a.Type, strconv.FormatBool(a.Required))
		}
	}
	return nil
}

func (app *console) showHealth(ctx context.Context) error {
	h, err := app.gateway.CheckHealth(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", h.Status, h.Message)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// stripMarkdown removes common markdown formatting from text.
func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return s
}
