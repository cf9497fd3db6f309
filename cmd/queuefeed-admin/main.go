package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentworkforce/queuefeed/internal/feed"
	"github.com/agentworkforce/queuefeed/internal/feedclient"
)

type consoleNotifier struct{}

func (consoleNotifier) Success(message string) { fmt.Printf("ok: %s\n", message) }
func (consoleNotifier) Error(message string)   { fmt.Printf("error: %s\n", message) }

func main() {
	baseURL := flag.String("base-url", envOrDefault("QUEUEFEED_BASE_URL", "http://127.0.0.1:8000"), "queuefeed base URL")
	feedURL := flag.String("feed-url", strings.TrimSpace(os.Getenv("QUEUEFEED_FEED_URL")), "websocket feed URL (empty for polling only)")
	token := flag.String("token", strings.TrimSpace(os.Getenv("QUEUEFEED_TOKEN")), "admin bearer token")
	tenant := flag.String("tenant", strings.TrimSpace(os.Getenv("QUEUEFEED_TENANT")), "tenant ID")
	timeout := flag.Duration("timeout", durationEnv("QUEUEFEED_TIMEOUT", 15*time.Second), "per-request timeout")
	flag.Parse()

	if strings.TrimSpace(*token) == "" {
		log.Fatalf("token is required (--token or QUEUEFEED_TOKEN)")
	}
	if *timeout <= 0 {
		*timeout = 15 * time.Second
	}

	input := bufio.NewScanner(os.Stdin)
	tokens := feedclient.StaticTokenProvider(*token)
	client := feedclient.NewHTTPClient(*baseURL, *tenant, tokens, &http.Client{Timeout: *timeout})
	coordinator := feed.NewCoordinator(feed.CoordinatorOptions{
		Actions:   client,
		Snapshots: client,
		Notifier:  consoleNotifier{},
		Confirm: func(prompt string) bool {
			fmt.Printf("%s [y/N]: ", prompt)
			if !input.Scan() {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(input.Text()))
			return answer == "y" || answer == "yes"
		},
		Logger: log.Default(),
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotCtx, cancel := context.WithTimeout(rootCtx, *timeout)
	err := coordinator.LoadSnapshot(snapshotCtx)
	cancel()
	if err != nil {
		log.Fatalf("failed to load queue snapshot: %v", err)
	}

	supervisor := feedclient.NewSupervisor(feedclient.SupervisorOptions{
		URL:    *feedURL,
		Tenant: *tenant,
		Tokens: tokens,
		Logger: log.Default(),
		OnStatus: func(status feedclient.Status) {
			fmt.Printf("feed: %s\n", status)
		},
	})
	if err := supervisor.Start(); err != nil {
		log.Fatalf("failed to start feed supervisor: %v", err)
	}
	defer supervisor.Stop()

	go func() {
		for env := range supervisor.Events() {
			coordinator.ApplyEvent(env)
		}
	}()

	render(coordinator)
	fmt.Println(`commands: list, stats, filter <kind|all>, requeue <doc>, retry <doc>, cancel <doc>, refresh, quit`)

	for {
		fmt.Print("> ")
		if !input.Scan() {
			return
		}
		line := strings.TrimSpace(input.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		command := strings.ToLower(fields[0])
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		ctx, cancel := context.WithTimeout(rootCtx, *timeout)
		switch command {
		case "list":
			render(coordinator)
		case "stats":
			renderStats(coordinator.Stats())
		case "filter":
			coordinator.SetFilter(feed.Criteria{Kind: arg})
			render(coordinator)
		case "requeue":
			if err := coordinator.Requeue(ctx, arg); err != nil {
				log.Printf("requeue %s: %v", arg, err)
			}
		case "retry":
			if err := coordinator.Retry(ctx, arg); err != nil {
				log.Printf("retry %s: %v", arg, err)
			}
		case "cancel":
			if err := coordinator.Cancel(ctx, arg); err != nil {
				log.Printf("cancel %s: %v", arg, err)
			}
		case "refresh":
			if err := coordinator.LoadSnapshot(ctx); err != nil {
				log.Printf("refresh: %v", err)
			} else {
				render(coordinator)
			}
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Printf("unknown command: %s\n", command)
		}
		cancel()

		select {
		case <-rootCtx.Done():
			return
		default:
		}
	}
}

func render(coordinator *feed.Coordinator) {
	records := coordinator.Filtered()
	renderStats(coordinator.Stats())
	if len(records) == 0 {
		fmt.Printf("  %s\n", emptyStateMessage(len(coordinator.Records())))
		return
	}
	for _, env := range records {
		marker := " "
		if env.Ref.Provisional {
			marker = "*"
		}
		name, _ := env.Attributes[feed.AttrFilename].(string)
		if name == "" {
			name = env.Ref.Doc
		}
		fmt.Printf("  %s %-12s %-28s %s\n", marker, env.Kind, name, env.Timestamp.Format(time.Kitchen))
	}
}

func emptyStateMessage(total int) string {
	if total == 0 {
		return "Queue is empty. New documents will appear here."
	}
	return "No documents match the current filter."
}

func renderStats(stats feed.Stats) {
	fmt.Printf("total=%d queued=%d processing=%d failed=%d avg=%.1fs\n",
		stats.Total, stats.Queued, stats.Processing, stats.Failed, stats.AvgProcessTime)
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
