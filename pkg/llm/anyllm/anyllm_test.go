package anyllm

import (
	"testing"

	"github.com/mianlab/koushi/pkg/llm"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPrompt checks that the system prompt leads the messages.
func TestBuildParams_SystemPrompt(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hello!"},
		},
	})
	if params.Model != "deepseek-chat" {
		t.Errorf("expected model deepseek-chat, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second role user, got %q", params.Messages[1].Role)
	}
	if params.Messages[1].ContentString() != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", params.Messages[1].ContentString())
	}
}

// TestBuildParams_Tuning checks temperature and max token mapping.
func TestBuildParams_Tuning(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %v", params.MaxTokens)
	}
}

// TestBuildParams_ZeroTuning checks that unset tuning fields stay nil.
func TestBuildParams_ZeroTuning(t *testing.T) {
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Errorf("expected nil temperature, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens, got %v", *params.MaxTokens)
	}
}

// ── createBackend ─────────────────────────────────────────────────────────────

// TestCreateBackend_Unsupported checks that unknown provider names are rejected.
func TestCreateBackend_Unsupported(t *testing.T) {
	_, err := createBackend("watson")
	if err == nil {
		t.Fatal("expected error for unsupported provider, got nil")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

// TestModelCapabilities_DeepSeek checks deepseek capabilities.
func TestModelCapabilities_DeepSeek(t *testing.T) {
	caps := modelCapabilities("deepseek-chat")
	if caps.ContextWindow != 64_000 {
		t.Errorf("deepseek-chat: expected context window 64000, got %d", caps.ContextWindow)
	}
	if !caps.SupportsStreaming {
		t.Error("deepseek-chat: expected SupportsStreaming=true")
	}
	if caps.SupportsVision {
		t.Error("deepseek-chat: expected SupportsVision=false for text-only adapter")
	}
}

// TestModelCapabilities_Claude checks claude capabilities.
func TestModelCapabilities_Claude(t *testing.T) {
	caps := modelCapabilities("claude-3-5-sonnet-latest")
	if caps.ContextWindow != 200_000 {
		t.Errorf("claude: expected context window 200000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 8_192 {
		t.Errorf("claude: expected MaxOutputTokens 8192, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_UnknownModel checks defaults for unrecognised models.
func TestModelCapabilities_UnknownModel(t *testing.T) {
	caps := modelCapabilities("qwen-plus")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

// TestNew_MissingProviderName ensures the constructor rejects an empty provider.
func TestNew_MissingProviderName(t *testing.T) {
	_, err := New("", "deepseek-chat")
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

// TestNew_MissingModel ensures the constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("deepseek", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}
