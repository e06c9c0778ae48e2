package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type scan struct {
	Identifier string `json:"identifier"`
	DelayMs    int    `json:"delay_ms"`
}

type replayFile struct {
	Mode  string `json:"mode"`
	Scans []scan `json:"scans"`
}

type sessionView struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Feedback *struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	} `json:"feedback"`
	Tally []struct {
		Name string `json:"name"`
	} `json:"tally"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		base      string
		email     string
		password  string
		scansPath string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "Gate API base URL")
	flag.StringVar(&email, "email", "porteria@example.com", "Operator email")
	flag.StringVar(&password, "password", "", "Operator password")
	flag.StringVar(&scansPath, "scans", filepath.Join("scripts", "scan_replay", "scans.json"), "Path to JSON replay file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	replay, err := loadReplay(scansPath)
	if err != nil {
		log.Fatalf("failed to load replay file: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	api := strings.TrimRight(base, "/") + "/api/v1"

	token, err := login(client, api, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	sess, err := startSession(client, api, token, replay.Mode)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer func() {
		req, _ := http.NewRequest(http.MethodDelete, api+"/sessions/"+sess.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if _, err := client.Do(req); err != nil {
			log.Printf("failed to finalize session: %v", err)
		}
	}()

	var failures int
	for i, s := range replay.Scans {
		if s.DelayMs > 0 {
			time.Sleep(time.Duration(s.DelayMs) * time.Millisecond)
		}
		view, err := sendToken(client, api, token, sess.ID, s.Identifier)
		if err != nil {
			failures++
			fmt.Printf("[%02d] %-24s ERROR %v\n", i+1, s.Identifier, err)
			continue
		}
		if view.Feedback != nil {
			outcome := "ok"
			if !view.Feedback.Success {
				outcome = "rejected"
				failures++
			}
			fmt.Printf("[%02d] %-24s %s: %s\n", i+1, s.Identifier, outcome, view.Feedback.Message)
		} else {
			fmt.Printf("[%02d] %-24s suppressed (duplicate)\n", i+1, s.Identifier)
		}
	}

	fmt.Printf("\nreplayed %d scans against %s session %s, %d failures, tally size %d\n",
		len(replay.Scans), replay.Mode, sess.ID, failures, len(currentTally(client, api, token, sess.ID)))

	if failures > 0 {
		os.Exit(1)
	}
}

func loadReplay(path string) (*replayFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r replayFile
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Mode == "" {
		r.Mode = "ENTRY"
	}
	if len(r.Scans) == 0 {
		return nil, fmt.Errorf("no scans defined in %s", path)
	}
	return &r, nil
}

func login(client *http.Client, api, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(api+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return out.AccessToken, nil
}

func startSession(client *http.Client, api, token, mode string) (*sessionView, error) {
	body, _ := json.Marshal(map[string]string{"mode": mode, "channel": "CAMERA"})
	view, status, err := authedJSON(client, http.MethodPost, api+"/sessions", token, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return view, nil
}

func sendToken(client *http.Client, api, token, sessionID, text string) (*sessionView, error) {
	body, _ := json.Marshal(map[string]string{"text": text})
	view, status, err := authedJSON(client, http.MethodPost, api+"/sessions/"+sessionID+"/tokens", token, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return view, nil
}

func currentTally(client *http.Client, api, token, sessionID string) []struct {
	Name string `json:"name"`
} {
	view, status, err := authedJSON(client, http.MethodGet, api+"/sessions/"+sessionID, token, nil)
	if err != nil || status != http.StatusOK {
		return nil
	}
	return view.Tally
}

func authedJSON(client *http.Client, method, url, token string, body []byte) (*sessionView, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, err
	}
	var view sessionView
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &view); err != nil {
			return nil, resp.StatusCode, err
		}
	}
	return &view, resp.StatusCode, nil
}
