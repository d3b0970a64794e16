package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaGenerator_Streams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaGenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.System != "sys" || req.Model != "tiny" {
			t.Errorf("unexpected request: %+v", req)
		}
		for _, part := range []string{"Pan", "cakes", "!"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "tiny")
	var chunks []string
	out, err := g.Generate(context.Background(), Request{System: "sys", Prompt: "q"}, func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Pancakes!" {
		t.Errorf("output: %q", out)
	}
	if strings.Join(chunks, "|") != "Pan|cakes|!" {
		t.Errorf("chunks: %v", chunks)
	}
}

func TestOllamaGenerator_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	_, err := NewOllamaGenerator(srv.URL, "x").Generate(context.Background(), Request{Prompt: "q"}, nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestOpenAIGenerator_Streams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		var req openAIChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(srv.URL, "sk-test", "")
	if err != nil {
		t.Fatal(err)
	}
	var chunks []string
	out, err := g.Generate(context.Background(), Request{System: "s", Prompt: "p"}, func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello there" || len(chunks) != 2 {
		t.Errorf("out=%q chunks=%v", out, chunks)
	}

	bad, _ := NewOpenAIGenerator(srv.URL, "sk-wrong", "")
	if _, err := bad.Generate(context.Background(), Request{Prompt: "p"}, nil); err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestNew(t *testing.T) {
	g, err := New(Config{Provider: "none"})
	if err != nil || g != nil {
		t.Errorf("none: %v %v", g, err)
	}
	if _, err := New(Config{Provider: "openai"}); err == nil {
		t.Error("openai without key should fail")
	}
	if _, err := New(Config{Provider: "gpt-neo"}); err == nil {
		t.Error("unknown provider should fail")
	}
	g, err = New(Config{Provider: "ollama", Model: "m"})
	if err != nil || g.Name() != "ollama/m" {
		t.Errorf("ollama: %v %v", g, err)
	}
}

func TestStaticGenerator(t *testing.T) {
	g := NewStaticGenerator("a", "b")
	var got []string
	out, err := g.Generate(context.Background(), Request{Prompt: "p"}, func(c string) { got = append(got, c) })
	if err != nil || out != "ab" || len(got) != 2 {
		t.Errorf("out=%q got=%v err=%v", out, got, err)
	}
	if len(g.Requests) != 1 || g.Requests[0].Prompt != "p" {
		t.Errorf("requests: %+v", g.Requests)
	}

	g.Err = errors.New("boom")
	if _, err := g.Generate(context.Background(), Request{}, nil); err == nil {
		t.Error("expected configured error")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(" What is quick? ", []ContextItem{
		{ID: "r1", Text: `{"title":"Pancakes"}`},
		{ID: "r2", Text: "Omelette"},
	})
	if !strings.Contains(p, "[r1]\n{\"title\":\"Pancakes\"}") || !strings.Contains(p, "[r2]\nOmelette") {
		t.Errorf("context missing: %s", p)
	}
	if !strings.HasSuffix(p, "Question: What is quick?\nAnswer:") {
		t.Errorf("question missing: %s", p)
	}
	if !strings.Contains(BuildPrompt("q", nil), "no matching records") {
		t.Error("empty context marker missing")
	}
}
