// ABOUTME: Operator console for the vpd-gateway call API
// ABOUTME: Starts, watches, inspects, and ends monitored calls over HTTP and WebSocket

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

const banner = `
                 _                                 _ _
__   ___ __   __| |      _ __ ___   ___  _ __ (_) |_ ___  _ __
\ \ / / '_ \ / _' |_____| '_ ' _ \ / _ \| '_ \| | __/ _ \| '__|
 \ V /| |_) | (_| |_____| | | | | | (_) | | | | | || (_) | |
  \_/ | .__/ \__,_|     |_| |_| |_|\___/|_| |_|_|\__\___/|_|
      |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("VPD_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	token := getToken()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &apiClient{baseURL: baseURL, token: token}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "start":
		err = cmdStart(ctx, client, args)
	case "watch":
		err = cmdWatch(ctx, client, args)
	case "status":
		err = cmdStatus(ctx, client, args)
	case "end":
		err = cmdEnd(ctx, client, args)
	case "calls":
		err = cmdCalls(ctx, client)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: vpd-monitor <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  start [call-id]     Start a new monitored call")
	fmt.Println("  watch <call-id>     Stream live analysis events for a call")
	fmt.Println("  status <call-id>    Show a call's current state")
	fmt.Println("  end <call-id>       Finalize a call and print its summary")
	fmt.Println("  calls               List active calls")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  VPD_GATEWAY_URL     Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  VPD_TOKEN           JWT authentication token")
	fmt.Println()
}

// apiClient wraps HTTP access to the gateway with bearer auth.
type apiClient struct {
	baseURL string
	token   string
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// wsURL converts the base HTTP URL into the monitoring WebSocket URL.
func (c *apiClient) wsURL(callID string) string {
	url := strings.Replace(c.baseURL, "http", "ws", 1)
	url += "/ws/call_monitoring/" + callID
	if c.token != "" {
		url += "?token=" + c.token
	}
	return url
}

func cmdStart(ctx context.Context, client *apiClient, args []string) error {
	var body []byte
	if len(args) > 0 {
		body, _ = json.Marshal(map[string]string{"call_id": args[0]})
	}

	var started struct {
		CallID string `json:"call_id"`
		Status string `json:"status"`
	}
	if err := client.do(ctx, http.MethodPost, "/api/calls", body, &started); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Call started: ")
	fmt.Println(started.CallID)
	return nil
}

func cmdStatus(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vpd-monitor status <call-id>")
	}

	var status struct {
		CallID       string  `json:"call_id"`
		Status       string  `json:"status"`
		CreatedAt    string  `json:"created_at"`
		ChunkCount   int     `json:"chunk_count"`
		AlertCount   int     `json:"alert_count"`
		LatestScore  float64 `json:"latest_risk_score"`
		AverageScore float64 `json:"average_risk_score"`
	}
	if err := client.do(ctx, http.MethodGet, "/api/calls/"+args[0], nil, &status); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Call:\t%s\n", status.CallID)
	fmt.Fprintf(w, "Status:\t%s\n", status.Status)
	fmt.Fprintf(w, "Started:\t%s\n", status.CreatedAt)
	fmt.Fprintf(w, "Chunks:\t%d\n", status.ChunkCount)
	fmt.Fprintf(w, "Alerts:\t%d\n", status.AlertCount)
	fmt.Fprintf(w, "Latest risk:\t%.2f\n", status.LatestScore)
	fmt.Fprintf(w, "Average risk:\t%.2f\n", status.AverageScore)
	return w.Flush()
}

func cmdEnd(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vpd-monitor end <call-id>")
	}

	var summary struct {
		CallID           string  `json:"call_id"`
		TotalChunks      int     `json:"total_chunks"`
		AverageRiskScore float64 `json:"average_risk_score"`
		AlertCount       int     `json:"alert_count"`
		DurationSeconds  float64 `json:"duration_seconds"`
	}
	if err := client.do(ctx, http.MethodPost, "/api/calls/"+args[0]+"/finalize", nil, &summary); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Call ended: ")
	fmt.Println(summary.CallID)
	fmt.Printf("  Chunks:       %d\n", summary.TotalChunks)
	fmt.Printf("  Alerts:       %d\n", summary.AlertCount)
	fmt.Printf("  Average risk: %.2f\n", summary.AverageRiskScore)
	fmt.Printf("  Duration:     %.0fs\n", summary.DurationSeconds)
	return nil
}

func cmdCalls(ctx context.Context, client *apiClient) error {
	var list struct {
		Calls []struct {
			CallID      string  `json:"call_id"`
			CreatedAt   string  `json:"created_at"`
			ChunkCount  int     `json:"chunk_count"`
			AlertCount  int     `json:"alert_count"`
			LatestScore float64 `json:"latest_risk_score"`
		} `json:"calls"`
	}
	if err := client.do(ctx, http.MethodGet, "/api/calls", nil, &list); err != nil {
		return err
	}

	if len(list.Calls) == 0 {
		fmt.Println("No active calls")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CALL\tSTARTED\tCHUNKS\tALERTS\tLATEST RISK")
	for _, c := range list.Calls {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\n",
			c.CallID, c.CreatedAt, c.ChunkCount, c.AlertCount, c.LatestScore)
	}
	return w.Flush()
}

// monitorEvent is the wire shape of broadcast events, decoded loosely so the
// console keeps working if the gateway adds fields.
type monitorEvent struct {
	Type      string    `json:"type"`
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"timestamp"`
	Update    *struct {
		ChunkNumber int     `json:"chunk_number"`
		Transcript  string  `json:"transcript"`
		RiskScore   float64 `json:"risk_score"`
	} `json:"update,omitempty"`
	Alert *struct {
		ChunkNumber int     `json:"chunk_number"`
		Severity    string  `json:"severity"`
		RiskScore   float64 `json:"risk_score"`
		Snippet     string  `json:"snippet"`
	} `json:"alert,omitempty"`
	Summary *struct {
		TotalChunks      int     `json:"total_chunks"`
		AverageRiskScore float64 `json:"average_risk_score"`
		AlertCount       int     `json:"alert_count"`
	} `json:"summary,omitempty"`
	Snapshot *struct {
		Status  string `json:"status"`
		Results []struct {
			ChunkNumber int     `json:"chunk_number"`
			RiskScore   float64 `json:"risk_score"`
		} `json:"results"`
		Alerts []struct {
			Severity string `json:"severity"`
		} `json:"alerts"`
	} `json:"snapshot,omitempty"`
}

func cmdWatch(ctx context.Context, client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: vpd-monitor watch <call-id>")
	}
	callID := args[0]

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, client.wsURL(callID), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return fmt.Errorf("connecting to gateway: status %d", resp.StatusCode)
		}
		return fmt.Errorf("connecting to gateway: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	cyan := color.New(color.FgCyan)
	cyan.Printf("Watching %s (ctrl-c to stop)\n\n", callID)

	// Close the socket when the context is cancelled so ReadJSON unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var event monitorEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}
		printEvent(event)
	}
}

func printEvent(event monitorEvent) {
	ts := event.Timestamp.Format("15:04:05")
	gray := color.New(color.FgHiBlack)

	switch event.Type {
	case "connection_established":
		gray.Printf("%s  ", ts)
		fmt.Print("connected")
		if event.Snapshot != nil {
			fmt.Printf(" (%s, %d chunks, %d alerts so far)",
				event.Snapshot.Status, len(event.Snapshot.Results), len(event.Snapshot.Alerts))
		}
		fmt.Println()
	case "call_started":
		gray.Printf("%s  ", ts)
		color.Green("call started")
	case "analysis_update":
		if event.Update == nil {
			return
		}
		gray.Printf("%s  ", ts)
		fmt.Printf("chunk %-3d risk %.2f  %s\n",
			event.Update.ChunkNumber, event.Update.RiskScore, truncate(event.Update.Transcript, 60))
	case "phishing_alert":
		if event.Alert == nil {
			return
		}
		gray.Printf("%s  ", ts)
		alertColor := color.New(color.FgYellow, color.Bold)
		if event.Alert.Severity == "high" {
			alertColor = color.New(color.FgRed, color.Bold)
		}
		alertColor.Printf("⚠ %s ALERT", strings.ToUpper(event.Alert.Severity))
		fmt.Printf("  chunk %d risk %.2f  %q\n",
			event.Alert.ChunkNumber, event.Alert.RiskScore, truncate(event.Alert.Snippet, 60))
	case "call_ended":
		gray.Printf("%s  ", ts)
		color.Green("call ended")
		if event.Summary != nil {
			fmt.Printf("          chunks=%d alerts=%d avg_risk=%.2f\n",
				event.Summary.TotalChunks, event.Summary.AlertCount, event.Summary.AverageRiskScore)
		}
	case "heartbeat":
		// Keepalive only, stay quiet.
	default:
		gray.Printf("%s  %s\n", ts, event.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func getToken() string {
	// Check env var first
	if token := os.Getenv("VPD_TOKEN"); token != "" {
		return token
	}

	// Try to read from token file
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "vpd", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
