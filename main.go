package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pulse/chat"
	"pulse/config"
	"pulse/memory"
	"pulse/model"
	"pulse/provider"
	"pulse/storage"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

// stderrNotifier prints transient status messages without interleaving them
// with conversation output on stdout.
type stderrNotifier struct{}

func (stderrNotifier) Notify(message string, level chat.Level) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
}

type app struct {
	cfg        *config.Config
	registry   *provider.Registry
	creds      *config.CredentialStore
	sessions   *storage.SessionStorage
	memories   *storage.MemoryStore
	retrieval  *memory.Client
	state      *chat.SessionState
	controller *chat.Controller

	providerID string
	searchDeb  *memory.Debouncer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	registry := provider.NewRegistry()
	for _, override := range cfg.Providers {
		if err := registry.ApplyOverride(override.ID, override.BaseURL, override.DefaultModel); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: ignoring override for %q: %v\n", override.ID, err)
		}
	}

	method, sshKeyPath := cfg.CredentialMethod()
	creds := config.NewCredentialStore(method, sshKeyPath)
	if err := creds.Load(cfg.DataDir()); err != nil {
		fmt.Printf("Failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	sessionStorage, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to initialize session storage: %v\n", err)
		os.Exit(1)
	}

	var memoryStore *storage.MemoryStore
	var searcher memory.Searcher
	if cfg.Memory.Enabled {
		memoryStore, err = storage.NewMemoryStore(cfg.DataDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: memory store unavailable: %v\n", err)
		} else {
			searcher = memoryStore
			defer memoryStore.Close()
		}
	}
	retrieval := memory.NewClient(searcher, memory.Options{
		AugmentTopK:      cfg.Memory.TopK,
		AugmentThreshold: cfg.Memory.Threshold,
		MinQueryLength:   cfg.Memory.MinQueryLength,
	})

	// Resume the last session when one exists, otherwise start fresh.
	var session *storage.Session
	if lastID, err := sessionStorage.LoadCurrentSessionID(); err == nil {
		session, _ = sessionStorage.Load(lastID)
	}
	if session == nil {
		session, err = sessionStorage.Create()
		if err != nil {
			fmt.Printf("Failed to create session: %v\n", err)
			os.Exit(1)
		}
	}
	if err := sessionStorage.SaveCurrentSessionID(session.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to record current session: %v", err)
	}

	notifier := stderrNotifier{}
	state := chat.NewSessionState(sessionStorage, notifier, session.ID, storage.ToModelMessages(session.Messages))
	controller := chat.NewController(registry, creds, provider.NewDispatcher(), retrieval,
		state, notifier, cfg.DefaultSystemPrompt, cfg.HistoryWindow)
	defer state.Flush()

	a := &app{
		cfg:        cfg,
		registry:   registry,
		creds:      creds,
		sessions:   sessionStorage,
		memories:   memoryStore,
		retrieval:  retrieval,
		state:      state,
		controller: controller,
		providerID: cfg.DefaultProvider,
		searchDeb:  memory.NewDebouncer(time.Duration(cfg.Memory.SearchDebounceMs) * time.Millisecond),
	}

	a.run()
}

func (a *app) run() {
	fmt.Printf("pulse %s (provider: %s, session: %s)\n", Version, a.providerID, a.state.SessionID())
	fmt.Println("Type /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.command(line); quit {
				return
			}
			continue
		}
		a.send(line)
	}
}

func (a *app) send(text string) {
	err := a.controller.Send(context.Background(), text, a.providerID)
	switch {
	case err == nil:
		a.printLastAssistant()
	case errors.Is(err, chat.ErrBusy):
		fmt.Println("A request is already in flight.")
	case isValidation(err):
		fmt.Printf("Cannot send: %v\n", err)
	case errors.Is(err, provider.ErrUnknownProvider):
		fmt.Printf("Error: %v\n", err)
	default:
		// Dispatch failure: the error record is already in the log.
		a.printLastAssistant()
	}
}

func (a *app) command(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printHelp()
	case "/quit", "/exit":
		return true
	case "/providers":
		for _, p := range a.registry.List() {
			marker := " "
			if p.ID == a.providerID {
				marker = "*"
			}
			fmt.Printf("%s %-10s %s (%s)\n", marker, p.ID, p.DefaultModel, p.Shape)
		}
	case "/provider":
		if len(args) == 0 {
			fmt.Printf("Current provider: %s\n", a.providerID)
			break
		}
		if !a.registry.Has(args[0]) {
			fmt.Printf("Unsupported provider: %s\n", args[0])
			break
		}
		a.providerID = args[0]
		a.persistDefaultProvider()
		fmt.Printf("Switched to %s\n", a.providerID)
	case "/key":
		if len(args) == 2 && args[0] == "remove" {
			a.removeKey(args[1])
			break
		}
		if len(args) < 2 {
			fmt.Println("Usage: /key <provider> <secret> | /key remove <provider>")
			break
		}
		if err := a.creds.Set(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Printf("Error: %v\n", err)
			break
		}
		if err := a.creds.Save(a.cfg.DataDir()); err != nil {
			fmt.Printf("Error saving credentials: %v\n", err)
			break
		}
		fmt.Printf("Stored key for %s\n", args[0])
	case "/retry":
		a.retry()
	case "/clear":
		a.state.Clear()
		fmt.Println("Conversation cleared.")
	case "/new":
		a.newSession()
	case "/sessions":
		a.listSessions()
	case "/switch":
		if len(args) == 0 {
			fmt.Println("Usage: /switch <session-id>")
			break
		}
		a.switchSession(args[0])
	case "/rename":
		if len(args) == 0 {
			fmt.Println("Usage: /rename <title>")
			break
		}
		title := strings.Join(args, " ")
		if err := a.sessions.Rename(a.state.SessionID(), title); err != nil {
			fmt.Printf("Error renaming session: %v\n", err)
			break
		}
		fmt.Printf("Renamed session to %q\n", title)
	case "/search":
		if len(args) == 0 {
			fmt.Println("Usage: /search <query>")
			break
		}
		a.search(strings.Join(args, " "))
	case "/remember":
		if len(args) == 0 {
			fmt.Println("Usage: /remember <text>")
			break
		}
		a.remember(strings.Join(args, " "))
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", cmd)
	}
	return false
}

// removeKey deletes a stored credential. When the removed provider is the
// active selection, the selection falls back to the configured default.
func (a *app) removeKey(providerID string) {
	if !a.creds.Has(providerID) {
		fmt.Printf("No key stored for %s\n", providerID)
		return
	}
	a.creds.Remove(providerID)
	if err := a.creds.Save(a.cfg.DataDir()); err != nil {
		fmt.Printf("Error saving credentials: %v\n", err)
		return
	}
	fmt.Printf("Removed key for %s\n", providerID)

	if a.providerID == providerID {
		a.providerID = a.cfg.DefaultProvider
		if a.providerID == providerID {
			// The default itself lost its key; fall back to any provider
			// that still has one.
			for _, p := range a.registry.List() {
				if a.creds.Has(p.ID) {
					a.providerID = p.ID
					break
				}
			}
		}
		fmt.Printf("Active provider is now %s\n", a.providerID)
	}
}

// persistDefaultProvider records the active provider as the configured
// default so it survives restarts.
func (a *app) persistDefaultProvider() {
	userCfg, err := config.LoadUserConfig(a.cfg.DataDir())
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("Warning: failed to load user config: %v", err)
		}
		return
	}
	userCfg.DefaultProvider = a.providerID
	if err := config.SaveUserConfig(userCfg, a.cfg.DataDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save default provider: %v\n", err)
	}
}

func (a *app) retry() {
	err := a.controller.RetryLast(context.Background())
	switch {
	case err == nil:
		a.printLastAssistant()
	case errors.Is(err, chat.ErrBusy):
		fmt.Println("A request is already in flight.")
	case isValidation(err):
		fmt.Printf("Cannot retry: %v\n", err)
	default:
		a.printLastAssistant()
	}
}

func (a *app) newSession() {
	session, err := a.sessions.Create()
	if err != nil {
		fmt.Printf("Error creating session: %v\n", err)
		return
	}
	a.state.Switch(session.ID, nil)
	if err := a.sessions.SaveCurrentSessionID(session.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to record current session: %v", err)
	}
	fmt.Printf("Started session %s\n", session.ID)
}

func (a *app) listSessions() {
	metas, err := a.sessions.List()
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	for _, m := range metas {
		marker := " "
		if m.ID == a.state.SessionID() {
			marker = "*"
		}
		fmt.Printf("%s %s  %s (%d messages)\n", marker, m.ID, m.Title, m.MessageCount)
	}
}

func (a *app) switchSession(id string) {
	session, err := a.sessions.Load(id)
	if err != nil {
		fmt.Printf("Error loading session: %v\n", err)
		return
	}
	a.state.Switch(session.ID, storage.ToModelMessages(session.Messages))
	if err := a.sessions.SaveCurrentSessionID(session.ID); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: failed to record current session: %v", err)
	}
	fmt.Printf("Switched to %s (%d messages)\n", session.Title, a.state.Len())
}

// search runs an interactive memory lookup through the same debounce the
// retrieval client uses for as-you-type search.
func (a *app) search(query string) {
	done := make(chan struct{})
	a.searchDeb.Trigger(func() {
		defer close(done)
		snippets, err := a.retrieval.Query(context.Background(), query,
			a.cfg.Memory.TopK, a.cfg.Memory.Threshold, "")
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			return
		}
		if len(snippets) == 0 {
			fmt.Println("No matching memories.")
			return
		}
		for _, s := range snippets {
			fmt.Printf("  %.2f  %s\n", s.Similarity, s.Text)
		}
	})
	a.searchDeb.Flush()
	<-done
}

func (a *app) remember(text string) {
	if a.memories == nil {
		fmt.Println("Memory is disabled.")
		return
	}
	id, err := a.memories.Save(context.Background(), text, nil, "")
	if err != nil {
		fmt.Printf("Error saving memory: %v\n", err)
		return
	}
	fmt.Printf("Remembered (%s)\n", id)
}

func (a *app) printLastAssistant() {
	msgs := a.state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			fmt.Println(msgs[i].Content)
			return
		}
	}
}

func isValidation(err error) bool {
	var v *chat.ValidationError
	return errors.As(err, &v)
}

func printHelp() {
	fmt.Print(`Commands:
  /provider [id]       show or switch the active provider
  /providers           list the provider catalogue
  /key <id> <secret>   store an API key for a provider
  /key remove <id>     remove a provider's API key
  /retry               retry the last user message
  /clear               clear the current conversation
  /new                 start a new session
  /sessions            list saved sessions
  /switch <id>         switch to a saved session
  /rename <title>      rename the current session
  /search <query>      search stored memories
  /remember <text>     store a memory
  /quit                exit
`)
}
