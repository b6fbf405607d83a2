// Copyright (c) 2023 BVK Chaitanya

package pushover

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

var testingKeys *Keys

func checkKeys() bool {
	if testingKeys != nil {
		return true
	}
	data, err := os.ReadFile("pushover-keys.json")
	if err != nil {
		return false
	}
	s := new(Keys)
	if err := json.Unmarshal(data, s); err != nil {
		return false
	}
	if err := s.Check(); err != nil {
		return false
	}
	testingKeys = s
	return true
}

func TestSendMessage(t *testing.T) {
	if !checkKeys() {
		t.Skip("no keys")
		return
	}

	c, err := New(testingKeys, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SendMessage(context.Background(), time.Now(), t.Name()); err != nil {
		t.Fatal(err)
	}
}

func TestSendMessageLocal(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got["token"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":0,"errors":["application token is invalid"]}`)
			return
		}
		io.WriteString(w, `{"status":1,"request":"abc"}`)
	}))
	defer srv.Close()

	c, err := New(&Keys{ApplicationKey: "app", UserKey: "user"}, &Options{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Unix(1700000000, 0)
	if err := c.SendMessage(context.Background(), at, "hello"); err != nil {
		t.Fatal(err)
	}
	if got["token"] != "app" || got["user"] != "user" || got["message"] != "hello" || got["timestamp"] != float64(1700000000) {
		t.Fatalf("unexpected message %v", got)
	}

	bad, err := New(&Keys{ApplicationKey: "bad", UserKey: "user"}, &Options{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.SendMessage(context.Background(), at, "hello"); err == nil || !strings.Contains(err.Error(), "token is invalid") {
		t.Fatalf("want token error, got %v", err)
	}

	if _, err := New(&Keys{}, nil); err == nil {
		t.Fatalf("want error for empty keys")
	}
}
