// Command create-admin bootstraps the first admin account of a running
// server by calling POST /create-admin. The endpoint is open only while no
// admin exists; afterwards pass -token with an admin's bearer token.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tbourn/go-library-backend/internal/http/handlers"
)

func main() {
	var (
		baseURL  = flag.String("url", envOr("LIBRARY_URL", "http://127.0.0.1:5000"), "server base URL including the API base path")
		name     = flag.String("name", "Admin User", "admin display name")
		email    = flag.String("email", "", "admin email (required)")
		password = flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (or ADMIN_PASSWORD)")
		phone    = flag.String("phone", "", "phone number")
		address  = flag.String("address", "", "postal address")
		token    = flag.String("token", "", "bearer token of an existing admin")
		timeout  = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "create-admin: -email and -password are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	msg, err := createAdmin(ctx, http.DefaultClient, *baseURL, *token, handlers.RegisterRequest{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Phone:    *phone,
		Address:  *address,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "create-admin:", err)
		os.Exit(1)
	}
	fmt.Println(msg)
	fmt.Println("Email:", *email)
}

// createAdmin posts req to baseURL/create-admin and returns the server's
// message. Non-201 responses become errors carrying the server's message.
func createAdmin(ctx context.Context, client *http.Client, baseURL, token string, req handlers.RegisterRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	u := strings.TrimRight(baseURL, "/") + "/create-admin"
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("could not reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusCreated {
		var m handlers.MessageResponse
		if json.Unmarshal(raw, &m) == nil && m.Message != "" {
			return m.Message, nil
		}
		return "Admin created", nil
	}

	var er handlers.ErrorResponse
	if json.Unmarshal(raw, &er) == nil && er.Message != "" {
		return "", fmt.Errorf("%s (%d)", er.Message, resp.StatusCode)
	}
	return "", errors.New(resp.Status)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
