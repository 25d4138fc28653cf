package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/ndole/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	ndoleDir, err := config.EnsureNdoleDir()
	if err != nil {
		return fmt.Errorf("setup ndole directory: %w", err)
	}

	ndoledPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(ndoledPath)
	cmd.Dir = ndoleDir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr())
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'ndole logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	ndoleDir, err := config.NdoleDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(ndoleDir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// statusResponse mirrors GET /v1/status
type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage struct {
		Backend string `json:"backend"`
		Breaker string `json:"breaker"`
	} `json:"storage"`
	Cache   bool `json:"cache"`
	Queue   bool `json:"queue"`
	Catalog struct {
		Levels  int `json:"levels"`
		Lessons int `json:"lessons"`
	} `json:"catalog"`
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	var status statusResponse
	if err := getJSON("/v1/status", &status); err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Storage:   %s (breaker %s)\n", status.Storage.Backend, status.Storage.Breaker)
	fmt.Printf("Cache:     %s\n", enabled(status.Cache))
	fmt.Printf("Queue:     %s\n", enabled(status.Queue))
	fmt.Printf("Catalog:   %d levels, %d lessons\n", status.Catalog.Levels, status.Catalog.Lessons)
	fmt.Printf("Address:   %s\n", daemonAddr())

	return nil
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// cmdLogs shows daemon logs
func cmdLogs() error {
	ndoleDir, err := config.NdoleDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(ndoleDir, "logs", "ndoled.log")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// Seek to end and go back ~4KB for recent logs
	info, _ := file.Stat()
	offset := info.Size() - 4096
	if offset < 0 {
		offset = 0
	}
	_, _ = file.Seek(offset, 0)

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	return scanner.Err()
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(daemonAddr() + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the ndoled binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("ndoled"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	self, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(self), "ndoled")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	locations := []string{
		"/usr/local/bin/ndoled",
		"./ndoled",
		"./cmd/ndoled/ndoled",
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("ndoled binary not found (build with 'go build ./cmd/ndoled')")
}

// apiError is the daemon's error body
type apiError struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

// getJSON fetches path from the daemon into out
func getJSON(path string, out any) error {
	resp, err := http.Get(daemonAddr() + path)
	if err != nil {
		return fmt.Errorf("daemon not reachable (start it with 'ndole start'): %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// postJSON sends body to the daemon and decodes the answer into out
func postJSON(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(daemonAddr()+path, "application/json", strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("daemon not reachable (start it with 'ndole start'): %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		if apiErr.Details != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Details)
		}
		return fmt.Errorf("%s", apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
