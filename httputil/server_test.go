// Copyright (c) 2026 BVK Chaitanya

package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
)

type echoRequest struct {
	Text string
}

type echoResponse struct {
	Text string
}

func echo(_ context.Context, req *echoRequest) (*echoResponse, error) {
	switch req.Text {
	case "":
		return nil, fmt.Errorf("text cannot be empty: %w", os.ErrInvalid)
	case "missing":
		return nil, os.ErrNotExist
	}
	return &echoResponse{Text: req.Text}, nil
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
	id, err := s.StartTCP(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop(id)

	s.AddHandler("/echo", HandlerFunc(echo))

	post := func(text string) (int, string) {
		data, _ := json.Marshal(&echoRequest{Text: text})
		resp, err := http.Post(fmt.Sprintf("http://%s/echo", addr), "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := post("hello"); code != http.StatusOK {
		t.Fatalf("want ok, got %d: %s", code, body)
	} else {
		var resp echoResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil || resp.Text != "hello" {
			t.Fatalf("unexpected response %q: %v", body, err)
		}
	}
	if code, _ := post(""); code != http.StatusBadRequest {
		t.Fatalf("want bad request, got %d", code)
	}
	if code, _ := post("missing"); code != http.StatusNotFound {
		t.Fatalf("want not found, got %d", code)
	}

	if !s.RemoveHandler("/echo") {
		t.Fatalf("want handler removed")
	}
	if s.RemoveHandler("/echo") {
		t.Fatalf("want false for a removed handler")
	}
	if code, _ := post("hello"); code != http.StatusNotFound {
		t.Fatalf("want not found after removal, got %d", code)
	}
}
