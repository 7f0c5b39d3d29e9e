package agent

import "testing"

func TestExtractFence(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		lang    string
		want    string
		wantErr bool
	}{
		{
			name: "tagged fence",
			text: "Here you go:\n```sql\nSELECT 1;\n```\nDone.",
			lang: "sql",
			want: "SELECT 1;",
		},
		{
			name: "python fence with surrounding prose",
			text: "```python\nimport altair as alt\nchart = alt.Chart(df)\n```",
			lang: "python",
			want: "import altair as alt\nchart = alt.Chart(df)",
		},
		{
			name: "bare fence fallback",
			text: "```\nSELECT name FROM users;\n```",
			lang: "sql",
			want: "SELECT name FROM users;",
		},
		{
			name:    "no fence",
			text:    "SELECT 1;",
			lang:    "sql",
			wantErr: true,
		},
		{
			name:    "unterminated fence",
			text:    "```sql\nSELECT 1;",
			lang:    "sql",
			wantErr: true,
		},
		{
			name:    "empty fence",
			text:    "```sql\n\n```",
			lang:    "sql",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractFence(tt.text, tt.lang)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractFencePrefersTaggedOverBare(t *testing.T) {
	text := "```\nnot this\n```\n```python\nchart = 1\n```"
	got, err := extractFence(text, "python")
	if err != nil {
		t.Fatal(err)
	}
	if got != "chart = 1" {
		t.Fatalf("got %q", got)
	}
}
