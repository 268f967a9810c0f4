// ClawBee CLI - personal AI assistant
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/gliderlab/clawbee/assistant"
	"github.com/gliderlab/clawbee/gateway/channels"
	"github.com/gliderlab/clawbee/memory"
	"github.com/gliderlab/clawbee/pkg/config"
	"github.com/gliderlab/clawbee/pkg/kv"
	"github.com/gliderlab/clawbee/pkg/llm/factory"
	"github.com/gliderlab/clawbee/pkg/skills"
	"github.com/gliderlab/clawbee/storage"
	"github.com/gliderlab/clawbee/system"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "onboard":
		onboardCmd(args)
	case "chat":
		chatCmd(args)
	case "ask":
		askCmd(args)
	case "start":
		startCmd(args)
	case "memory":
		memoryCmd(args)
	case "config":
		configCmd(args)
	case "models":
		modelsCmd(args)
	case "version", "-v", "--version":
		fmt.Printf("clawbee v%s\n", config.Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`ClawBee - personal AI assistant

Usage: clawbee <command> [options]

Commands:
  onboard    Interactive setup (name, provider, API key)
  chat       Interactive chat session
  ask        One-shot question: clawbee ask "..."
  start      Run as a daemon serving chat platform integrations
  memory     Conversation history: show | search | stats | clear
  config     Configuration: show | set <key> <value>
  models     List available models per provider
  version    Print version
`)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// runtime bundles everything a command needs after configuration.
type runtime struct {
	cfg     *config.Config
	cfgPath string
	dataDir string
	store   *memory.Store
	archive *storage.Storage
	asst    *assistant.Assistant
}

func (rt *runtime) close() {
	if rt.archive != nil {
		rt.archive.Close()
	}
}

func loadConfig() (*config.Config, string) {
	path := config.DefaultConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrNotConfigured) {
			fatalf("ClawBee is not configured. Run: clawbee onboard")
		}
		fatalf("Failed to load config: %v", err)
	}
	return cfg, path
}

func buildRuntime() *runtime {
	cfg, cfgPath := loadConfig()
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}

	dataDir := config.DefaultDataDir()
	store := memory.Open(config.MemoryPath(dataDir), cfg.Memory.MaxContext)

	rt := &runtime{cfg: cfg, cfgPath: cfgPath, dataDir: dataDir, store: store}

	if cfg.Memory.Enabled {
		archive, err := storage.New(config.ArchivePath(dataDir))
		if err != nil {
			log.Printf("[WARN] archive unavailable: %v", err)
		} else {
			store.SetArchive(archive)
			rt.archive = archive
		}
	}

	router, err := factory.New(cfg.AI)
	if err != nil {
		rt.close()
		fatalf("Failed to initialize provider: %v", err)
	}

	runner := system.New(cfg.Security)
	reg := skills.NewRegistry(runner)
	if err := reg.LoadDir(config.SkillsDir(dataDir)); err != nil {
		log.Printf("[WARN] skills: %v", err)
	}

	rt.asst = assistant.New(router, store, cfg, assistant.WithSkills(reg))
	return rt
}

// onboard

func onboardCmd(args []string) {
	fs := flag.NewFlagSet("onboard", flag.ExitOnError)
	fs.Parse(args)

	path := config.DefaultConfigPath()
	cfg := config.Default()
	if existing, err := config.Load(path); err == nil {
		cfg = existing
		fmt.Println("Existing configuration found; values in [brackets] are kept on empty input.")
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label, current string) string {
		if current != "" {
			fmt.Printf("%s [%s]: ", label, current)
		} else {
			fmt.Printf("%s: ", label)
		}
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return current
		}
		return line
	}

	fmt.Println("Welcome to ClawBee setup!")
	cfg.User.Name = prompt("Your name", cfg.User.Name)
	cfg.AI.Provider = prompt("Provider (openai, anthropic, google, local, emergent)", cfg.AI.Provider)

	switch cfg.AI.Provider {
	case "local", "ollama":
		cfg.AI.LocalHost = prompt("Ollama host", cfg.AI.LocalHost)
		if port := prompt("Ollama port", strconv.Itoa(cfg.AI.LocalPort)); port != "" {
			if n, err := strconv.Atoi(port); err == nil {
				cfg.AI.LocalPort = n
			}
		}
	default:
		cfg.AI.APIKey = prompt("API key", cfg.AI.APIKey)
	}

	defModel := cfg.AI.Model
	if defModel == "" {
		defModel = config.DefaultModels[cfg.AI.Provider]
	}
	cfg.AI.Model = prompt("Model", defModel)

	if err := cfg.Validate(); err != nil {
		fatalf("Configuration invalid: %v", err)
	}
	if err := cfg.Save(path); err != nil {
		fatalf("Failed to save config: %v", err)
	}
	fmt.Printf("\n[OK] Configuration saved to %s\n", path)
	fmt.Println("Try: clawbee chat")
}

// chat / ask

func chatCmd(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	noStream := fs.Bool("no-stream", false, "Disable streaming output")
	fs.Parse(args)

	rt := buildRuntime()
	defer rt.close()

	fmt.Printf("ClawBee v%s - chatting with %s (type /exit to quit)\n", config.Version, rt.cfg.AI.Model)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		switch text {
		case "/exit", "/quit":
			return
		case "/clear":
			if err := rt.store.Clear(); err != nil {
				fmt.Fprintf(os.Stderr, "clear failed: %v\n", err)
			} else {
				fmt.Println("Conversation history cleared.")
			}
			continue
		}

		ctx := context.Background()
		fmt.Print("bee> ")
		var reply string
		var err error
		if *noStream {
			reply, err = rt.asst.Handle(ctx, text)
			if reply != "" {
				fmt.Print(reply)
			}
		} else {
			_, err = rt.asst.HandleStream(ctx, text, func(delta string) {
				fmt.Print(delta)
			})
		}
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] %v\n", err)
		}
	}
}

func askCmd(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fatalf("Usage: clawbee ask \"your question\"")
	}

	rt := buildRuntime()
	defer rt.close()

	reply, err := rt.asst.Handle(context.Background(), question)
	if reply != "" {
		fmt.Println(reply)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

// start - daemon mode serving chat platforms

func startCmd(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	fs.Parse(args)

	rt := buildRuntime()
	defer rt.close()

	state, err := kv.OpenDir(config.KVDir(rt.dataDir))
	if err != nil {
		fatalf("Failed to open state store: %v", err)
	}
	defer state.Close()

	adapter := channels.BuildFromConfig(rt.cfg, rt.asst, state)
	if len(adapter.List()) == 0 {
		fatalf("No integrations enabled. Enable one in %s", rt.cfgPath)
	}

	if err := adapter.StartAll(); err != nil {
		fatalf("Failed to start channels: %v", err)
	}
	log.Printf("[OK] ClawBee daemon running with %d channels", len(adapter.List()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[START] Shutting down...")
	adapter.StopAll()
}

// memory subcommands

func memoryCmd(args []string) {
	if len(args) < 1 {
		fatalf("Usage: clawbee memory <show|search|stats|clear>")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "show":
		memoryShow(rest)
	case "search":
		memorySearch(rest)
	case "stats":
		memoryStats(rest)
	case "clear":
		memoryClear(rest)
	default:
		fatalf("Unknown memory command: %s", sub)
	}
}

func openStore() (*memory.Store, *config.Config) {
	cfg, _ := loadConfig()
	dataDir := config.DefaultDataDir()
	return memory.Open(config.MemoryPath(dataDir), cfg.Memory.MaxContext), cfg
}

func memoryShow(args []string) {
	fs := flag.NewFlagSet("memory show", flag.ExitOnError)
	n := fs.Int("n", 20, "Number of recent turns to show")
	fs.Parse(args)

	store, _ := openStore()
	turns := store.Context(*n)
	if len(turns) == 0 {
		fmt.Println("No conversation history.")
		return
	}
	for _, t := range turns {
		fmt.Printf("[%s] %s: %s\n", t.Timestamp.Format("2006-01-02 15:04"), t.Role, t.Content)
	}
}

func memorySearch(args []string) {
	fs := flag.NewFlagSet("memory search", flag.ExitOnError)
	semantic := fs.Bool("semantic", false, "Search by meaning using embeddings")
	archived := fs.Bool("archive", false, "Include the long-term archive")
	limit := fs.Int("n", 10, "Max results")
	fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fatalf("Usage: clawbee memory search [flags] <query>")
	}

	store, cfg := openStore()
	dataDir := config.DefaultDataDir()

	if *semantic {
		archive, err := storage.New(config.ArchivePath(dataDir))
		if err != nil {
			fatalf("Archive unavailable: %v", err)
		}
		defer archive.Close()

		vs, err := memory.NewVectorStore(archive.DB(), cfg.AI.APIKey, "")
		if err != nil {
			fatalf("Semantic search unavailable: %v", err)
		}
		hits, err := vs.Search(context.Background(), query, *limit)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		for _, h := range hits {
			fmt.Printf("%.3f  %s: %s\n", h.Score, h.Turn.Role, h.Turn.Content)
		}
		return
	}

	for _, t := range store.Search(query) {
		fmt.Printf("[%s] %s: %s\n", t.Timestamp.Format("2006-01-02 15:04"), t.Role, t.Content)
	}

	if *archived {
		archive, err := storage.New(config.ArchivePath(dataDir))
		if err != nil {
			fatalf("Archive unavailable: %v", err)
		}
		defer archive.Close()
		rows, err := archive.Search(query, *limit)
		if err != nil {
			fatalf("Archive search failed: %v", err)
		}
		for _, t := range rows {
			fmt.Printf("[archive] %s: %s\n", t.Role, t.Content)
		}
	}
}

func memoryStats(args []string) {
	store, _ := openStore()
	fmt.Printf("Active turns: %d\n", store.Len())

	archive, err := storage.New(config.ArchivePath(config.DefaultDataDir()))
	if err != nil {
		return
	}
	defer archive.Close()
	stats, err := archive.Stats()
	if err != nil || stats.Total == 0 {
		return
	}
	fmt.Printf("Archived turns: %d\n", stats.Total)
	for role, n := range stats.ByRole {
		fmt.Printf("  %s: %d\n", role, n)
	}
}

func memoryClear(args []string) {
	fs := flag.NewFlagSet("memory clear", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Skip confirmation")
	fs.Parse(args)

	if !*yes {
		fmt.Print("Clear all conversation history? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
			fmt.Println("Aborted.")
			return
		}
	}

	store, _ := openStore()
	if err := store.Clear(); err != nil {
		fatalf("Clear failed: %v", err)
	}
	fmt.Println("Conversation history cleared.")
}

// config subcommands

func configCmd(args []string) {
	if len(args) < 1 {
		fatalf("Usage: clawbee config <show|set>")
	}
	switch args[0] {
	case "show":
		cfg, path := loadConfig()
		redacted := *cfg
		if redacted.AI.APIKey != "" {
			redacted.AI.APIKey = redact(redacted.AI.APIKey)
		}
		fmt.Printf("Config file: %s\n\n", path)
		fmt.Printf("User:     %s\n", redacted.User.Name)
		fmt.Printf("Provider: %s\n", redacted.AI.Provider)
		fmt.Printf("Model:    %s\n", redacted.AI.Model)
		fmt.Printf("API key:  %s\n", redacted.AI.APIKey)
		fmt.Printf("Memory:   enabled=%v max=%d\n", cfg.Memory.Enabled, cfg.Memory.MaxContext)
		for name, ic := range cfg.Integrations {
			fmt.Printf("Channel:  %s enabled=%v\n", name, ic.Enabled)
		}
	case "set":
		if len(args) != 3 {
			fatalf("Usage: clawbee config set <key> <value>")
		}
		configSet(args[1], args[2])
	default:
		fatalf("Unknown config command: %s", args[0])
	}
}

func configSet(key, value string) {
	cfg, path := loadConfig()

	switch key {
	case "user.name":
		cfg.User.Name = value
	case "ai.provider":
		cfg.AI.Provider = value
		if cfg.AI.Model == "" || cfg.AI.Model == config.DefaultModels[cfg.AI.Provider] {
			cfg.AI.Model = config.DefaultModels[value]
		}
	case "ai.apiKey":
		cfg.AI.APIKey = value
	case "ai.model":
		cfg.AI.Model = value
	case "ai.temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			fatalf("invalid temperature: %v", err)
		}
		cfg.AI.Temperature = f
	case "ai.maxTokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			fatalf("invalid maxTokens: %v", err)
		}
		cfg.AI.MaxTokens = n
	case "memory.enabled":
		cfg.Memory.Enabled = value == "true"
	default:
		// integration toggles: telegram.enabled, telegram.token, ...
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 || !isChannelName(parts[0]) {
			fatalf("Unknown config key: %s", key)
		}
		ic := cfg.Integrations[parts[0]]
		switch parts[1] {
		case "enabled":
			ic.Enabled = value == "true"
		case "token":
			ic.Token = value
		case "appToken":
			ic.AppToken = value
		case "webhook":
			ic.Webhook = value
		default:
			fatalf("Unknown config key: %s", key)
		}
		cfg.Integrations[parts[0]] = ic
	}

	if err := cfg.Save(path); err != nil {
		fatalf("Failed to save config: %v", err)
	}
	fmt.Printf("[OK] %s updated\n", key)
}

func isChannelName(name string) bool {
	switch name {
	case "telegram", "whatsapp", "slack", "discord":
		return true
	}
	return false
}

func redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// models

func modelsCmd(args []string) {
	providers := make([]string, 0, len(config.AvailableModels))
	for p := range config.AvailableModels {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	for _, p := range providers {
		fmt.Printf("%s:\n", p)
		for _, m := range config.AvailableModels[p] {
			marker := " "
			if m == config.DefaultModels[p] {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, m)
		}
	}
	fmt.Println("\nlocal: any model served by Ollama (see: ollama list)")
	fmt.Println("* default model")
}
