// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))
	addr := strings.TrimSpace(os.Getenv("ADDR"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	tsdbURL := strings.TrimSpace(os.Getenv("TSDB_URL"))
	slack := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK"))
	webhook := strings.TrimSpace(os.Getenv("ALERT_WEBHOOK_URL"))
	sendgrid := strings.TrimSpace(os.Getenv("SENDGRID_API_KEY"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (admin routes will 403).")
	}
	if pub == "" {
		fail("PUBLIC_API_KEYS is empty (read routes will 401).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if v := os.Getenv("OUTAGE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			fail("OUTAGE_THRESHOLD must be a positive integer.")
		}
	}
	if v := os.Getenv("RECOVERY_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 1 {
			fail("RECOVERY_THRESHOLD must be a positive integer.")
		}
	}

	if addr == "" {
		warn("ADDR is empty; default in your app may be used.")
	} else {
		ok("ADDR=" + addr)
	}

	if db == "" {
		warn("DATABASE_URL empty — engine will use in-memory stores; all history is lost on restart.")
	} else {
		ok("DATABASE_URL present")
	}

	if tsdbURL == "" {
		warn("TSDB_URL empty — check results stay local, no time-series sync.")
	} else {
		ok("TSDB_URL present")
	}

	if slack == "" && webhook == "" && sendgrid == "" {
		warn("no alert channel configured (SLACK_WEBHOOK / ALERT_WEBHOOK_URL / SENDGRID_API_KEY) — outages will only be logged.")
	} else {
		ok("at least one alert channel configured")
	}

	ok("preflight passed")
}
