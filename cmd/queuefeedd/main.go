package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agentworkforce/queuefeed/internal/activity"
	"github.com/agentworkforce/queuefeed/internal/httpapi"
)

func main() {
	addr := os.Getenv("QUEUEFEED_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	backend, err := buildActivityBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize activity backend: %v", err)
	}
	activityLog, err := activity.NewLog(activity.LogOptions{
		MaxRecords:      intEnv("QUEUEFEED_MAX_RECORDS", 0),
		SubscriberDepth: intEnv("QUEUEFEED_SUBSCRIBER_DEPTH", 0),
		Backend:         backend,
		Logger:          log.Default(),
	})
	if err != nil {
		log.Fatalf("failed to open activity log: %v", err)
	}
	defer activityLog.Close()

	if dropDir := strings.TrimSpace(os.Getenv("QUEUEFEED_DROP_DIR")); dropDir != "" {
		watcher, err := activity.NewWatcher(activity.WatcherOptions{
			Dir:      dropDir,
			TenantID: strings.TrimSpace(os.Getenv("QUEUEFEED_DROP_TENANT")),
			Log:      activityLog,
			Logger:   log.Default(),
		})
		if err != nil {
			log.Fatalf("failed to build drop watcher: %v", err)
		}
		if err := watcher.Start(); err != nil {
			log.Fatalf("failed to start drop watcher: %v", err)
		}
		defer watcher.Close()
		log.Printf("watching drop dir %s", dropDir)
	}

	server := httpapi.NewServerWithConfig(activityLog, httpapi.ServerConfig{
		JWTSecret:         os.Getenv("QUEUEFEED_JWT_SECRET"),
		RateLimitMax:      intEnv("QUEUEFEED_RATE_LIMIT_MAX", 60),
		RateLimitWindow:   durationEnv("QUEUEFEED_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:      int64Env("QUEUEFEED_MAX_BODY_BYTES", 0),
		HeartbeatInterval: durationEnv("QUEUEFEED_HEARTBEAT_INTERVAL", 0),
		Logger:            log.Default(),
	})

	log.Printf("queuefeed listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
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

func buildActivityBackendFromEnv() (activity.Backend, error) {
	if dsn := strings.TrimSpace(os.Getenv("QUEUEFEED_ACTIVITY_BACKEND_DSN")); dsn != "" {
		return activity.BuildBackendFromDSN(dsn)
	}
	profileDSN, err := backendProfileDefaultFromEnv()
	if err != nil {
		return nil, err
	}
	if profileDSN == "" {
		return nil, nil
	}
	return activity.BuildBackendFromDSN(profileDSN)
}

func backendProfileDefaultFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("QUEUEFEED_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("QUEUEFEED_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".queuefeed"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("QUEUEFEED_POSTGRES_DSN"))
		if productionDSN == "" {
			return "", fmt.Errorf("QUEUEFEED_POSTGRES_DSN is required when QUEUEFEED_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, nil
	case "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "activity.json"), nil
	default:
		return "", fmt.Errorf("unsupported QUEUEFEED_BACKEND_PROFILE: %s", profile)
	}
}
