package jsonutil

import (
	"strings"
	"testing"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"no fence", `  {"a":1}  `, `{"a":1}`},
		{"too short", "```{}```", "```{}```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"object in prose", `Sure! Here it is: {"title":"x"} Hope that helps.`, `{"title":"x"}`, false},
		{"array first", `[{"a":1}] trailing`, `[{"a":1}]`, false},
		{"object before array", `{"k":[1]}`, `{"k":[1]}`, false},
		{"brace in trailing prose", `{"title":"x"} (note: } is fine)`, `{"title":"x"}`, false},
		{"brace inside string", `{"title":"a } b"}`, `{"title":"a } b"}`, false},
		{"escaped quote", `{"t":"say \"hi\" }"}`, `{"t":"say \"hi\" }"}`, false},
		{"no json", "just words", "", true},
		{"unclosed", `{"title":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"reasoning block", "<think>looks like a beach</think>\n{\"a\":1}", `{"a":1}`},
		{"no block", `{"a":1}`, `{"a":1}`},
		{"unterminated", "<think>still going", "<think>still going"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinking(tt.in); got != tt.want {
				t.Errorf("StripThinking() = %q, want %q", got, tt.want)
			}
		})
	}
}

type tagReply struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

func TestParseJSON(t *testing.T) {
	raw := "```json\n{\"title\": \"Harbor\", \"keywords\": [\"boat\", \"dusk\"]}\n```"
	got, err := ParseJSON[tagReply](raw)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if got.Title != "Harbor" || len(got.Keywords) != 2 {
		t.Errorf("ParseJSON() = %+v", got)
	}
}

func TestParseJSON_AfterThinking(t *testing.T) {
	raw := "<think>The image shows {boats}.</think>\n```json\n{\"title\": \"Harbor\"}\n```"
	got, err := ParseJSON[tagReply](raw)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if got.Title != "Harbor" {
		t.Errorf("Title = %q, want Harbor", got.Title)
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON[tagReply](`{"title": Harbor}`)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("ParseJSON() error = %v, want invalid JSON", err)
	}

	_, err = ParseJSON[tagReply]("no braces at all")
	if err == nil || !strings.Contains(err.Error(), "raw length") {
		t.Errorf("ParseJSON() error = %v, want raw length context", err)
	}
}
