package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/studycompanion/studycompanion/internal/migrate"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSummarize_MockProvider(t *testing.T) {
	t.Setenv("PROVIDER", "mock")

	out, err := run(t, "Photosynthesis converts light energy into chemical energy stored in glucose.", "summarize", "--style", "concise")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if !strings.HasPrefix(out, "[mock]") {
		t.Errorf("expected mock summary, got %q", out)
	}
}

func TestSummarize_JSON(t *testing.T) {
	t.Setenv("PROVIDER", "mock")

	out, err := run(t, "Cells are the basic unit of life.", "summarize", "--json")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	var res struct {
		Summary    string `json:"summary"`
		ChunkCount int    `json:"chunk_count"`
		Cached     bool   `json:"cached"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Summary == "" || res.ChunkCount != 1 || res.Cached {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSummarize_EmptyInput(t *testing.T) {
	t.Setenv("PROVIDER", "mock")

	if _, err := run(t, "   ", "summarize"); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestDatabaseCommands_RequireURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	tests := [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"user", "create", "--email", "a@example.com"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := run(t, "password123\n", args...)
			if !errors.Is(err, errMissingDatabaseURL) {
				t.Errorf("expected errMissingDatabaseURL, got %v", err)
			}
		})
	}
}

func TestUserCreate_RequiresEmail(t *testing.T) {
	if _, err := run(t, "password123\n", "user", "create"); err == nil {
		t.Fatal("expected an error without --email")
	}
}

func TestReadSecret(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"newline", "s3cret-pass\nignored", "s3cret-pass", false},
		{"crlf", "s3cret-pass\r\n", "s3cret-pass", false},
		{"no newline", "s3cret-pass", "s3cret-pass", false},
		{"empty", "", "", true},
		{"blank line", "\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSecret(strings.NewReader(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	err := printStatus(cmd, []migrate.Status{
		{Version: 1, Name: "users", AppliedAt: &applied},
		{Version: 2, Name: "study"},
	})
	if err != nil {
		t.Fatalf("printStatus: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"VERSION", "000001", "2026-01-02 03:04:05", "000002", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
