package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("API_KEY")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Name for the endpoint (e.g., payments-api): ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Name is required.")
		return
	}

	fmt.Print("Address to monitor (host or URL, e.g., api.example.com): ")
	addr, _ := reader.ReadString('\n')
	addr = strings.TrimSpace(addr)
	if addr == "" {
		fmt.Println("Address is required.")
		return
	}

	fmt.Print("Protocol [HTTP/HTTPS/TCP/UDP/DNS/ICMP] (default HTTPS): ")
	proto, _ := reader.ReadString('\n')
	proto = strings.ToUpper(strings.TrimSpace(proto))
	if proto == "" {
		proto = "HTTPS"
	}

	body, _ := json.Marshal(map[string]any{
		"name":     name,
		"address":  addr,
		"protocol": proto,
	})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/endpoints", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var created struct {
			Endpoint struct {
				ID string `json:"id"`
			} `json:"endpoint"`
			FirstCheck struct {
				OK        bool    `json:"ok"`
				LatencyMS float64 `json:"latency_ms"`
			} `json:"first_check"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			fmt.Printf("Added %s (first check ok=%v, %.0fms). Watch GET /api/endpoints/%s/status.\n",
				created.Endpoint.ID, created.FirstCheck.OK, created.FirstCheck.LatencyMS, created.Endpoint.ID)
			return
		}
		fmt.Println("Added! Check GET /api/endpoints.")
	} else {
		fmt.Println("API returned status:", resp.Status)
	}
}
