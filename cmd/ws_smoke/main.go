// ws_smoke drives one mission through a running server and prints the
// ledger events pushed over /ws.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"lifescore_backend/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) post(path string, out any) error {
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("%s: %d %v", path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	mission := flag.String("mission", "m-morning-walk", "mission to run")
	flag.Parse()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-insecure-secret"
	}
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	if err := service.InitJWT(jwtSecret); err != nil {
		log.Fatal(err)
	}
	userID := "smoke-" + uuid.NewString()
	token, err := service.GenerateJWT(userID, time.Hour)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token), nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	events := make(chan string, 32)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(events)
				return
			}
			events <- string(msg)
		}
	}()

	c := &client{base: "http://127.0.0.1:" + port + "/api/v1", token: token, http: &http.Client{Timeout: 10 * time.Second}}

	var started struct {
		Steps []struct {
			ID string `json:"id"`
		} `json:"steps"`
	}
	if err := c.post("/missions/"+*mission+"/start", &started); err != nil {
		log.Fatalf("start: %v", err)
	}
	for _, st := range started.Steps {
		if err := c.post("/steps/"+st.ID+"/complete", nil); err != nil {
			log.Fatalf("complete step: %v", err)
		}
	}
	if err := c.post("/missions/"+*mission+"/complete", nil); err != nil {
		log.Fatalf("complete mission: %v", err)
	}

	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			log.Printf("event: %s", msg)
		case <-timeout:
			log.Printf("done, user=%s", userID)
			return
		}
	}
}
