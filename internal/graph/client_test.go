// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMarkAsRead_Success verifies the PATCH request shape.
func TestMarkAsRead_Success(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(map[string]*http.Client{"acme": srv.Client()}, srv.URL)
	err := c.MarkAsRead(context.Background(), "acme", "user@acme.example", "AAMkAGI2")
	if err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotPath != "/users/user@acme.example/messages/AAMkAGI2" {
		t.Errorf("path = %s", gotPath)
	}
	if !strings.Contains(gotBody, `"isRead": true`) {
		t.Errorf("body = %s, want isRead true", gotBody)
	}
}

// TestMarkAsRead_Errors verifies error surfacing per status code.
func TestMarkAsRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"message deleted", http.StatusNotFound},
		{"throttled", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(map[string]*http.Client{"acme": srv.Client()}, srv.URL)
			err := c.MarkAsRead(context.Background(), "acme", "user@acme.example", "AAMkAGI2")
			if err == nil {
				t.Errorf("expected error on HTTP %d", tt.status)
			}
		})
	}
}

// TestMarkAsRead_UnknownTenant verifies a missing tenant client errors
// without a network call.
func TestMarkAsRead_UnknownTenant(t *testing.T) {
	c := NewClient(map[string]*http.Client{}, "https://graph.example")
	err := c.MarkAsRead(context.Background(), "ghost", "user@ghost.example", "AAMkAGI2")
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error = %v, want unknown tenant named", err)
	}
}
