package document

import (
	"errors"
	"testing"

	ferrors "github.com/dshills/clangfmt/internal/errors"
	"github.com/dshills/clangfmt/internal/format"
	"github.com/dshills/clangfmt/internal/offset"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		edits []format.Edit
		unit  offset.Unit
		want  string
	}{
		{
			name: "no edits",
			text: "int x;",
			want: "int x;",
		},
		{
			name:  "insertion after multibyte",
			text:  "héllo",
			edits: []format.Edit{{Start: 2, End: 2, Text: "!"}},
			want:  "hé!llo",
		},
		{
			name:  "whole buffer",
			text:  "int  main( ){}",
			edits: []format.Edit{{Start: 0, End: 14, Text: "int main() {}\n"}},
			want:  "int main() {}\n",
		},
		{
			name: "several edits",
			text: "int  a=1;int b;",
			edits: []format.Edit{
				{Start: 3, End: 5, Text: " "},
				{Start: 6, End: 6, Text: " "},
				{Start: 7, End: 7, Text: " "},
				{Start: 9, End: 9, Text: "\n"},
			},
			want: "int a = 1;\nint b;",
		},
		{
			name: "adjacent edits",
			text: "abcd",
			edits: []format.Edit{
				{Start: 0, End: 2, Text: "X"},
				{Start: 2, End: 4, Text: "Y"},
			},
			want: "XY",
		},
		{
			name:  "append at end",
			text:  "ab",
			edits: []format.Edit{{Start: 2, End: 2, Text: "\n"}},
			want:  "ab\n",
		},
		{
			name:  "utf16 surrogate pair",
			text:  "a\U0001F600b",
			edits: []format.Edit{{Start: 3, End: 3, Text: " "}},
			unit:  offset.UTF16,
			want:  "a\U0001F600 b",
		},
		{
			name:  "runes count emoji once",
			text:  "a\U0001F600b",
			edits: []format.Edit{{Start: 2, End: 3, Text: "c"}},
			want:  "a\U0001F600c",
		},
	}

	for _, tt := range tests {
		got, err := Apply(tt.text, tt.edits, tt.unit)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestApply_Failures(t *testing.T) {
	tests := []struct {
		name  string
		edits []format.Edit
		index int
	}{
		{"reversed", []format.Edit{{Start: 3, End: 1}}, 0},
		{"descending", []format.Edit{{Start: 3, End: 4}, {Start: 1, End: 2}}, 1},
		{"overlapping", []format.Edit{{Start: 0, End: 3}, {Start: 2, End: 4}}, 1},
		{"start past end", []format.Edit{{Start: 9, End: 9}}, 0},
		{"end past end", []format.Edit{{Start: 2, End: 9}}, 0},
	}

	for _, tt := range tests {
		_, err := Apply("hello", tt.edits, offset.Runes)
		if !ferrors.IsApplyFailure(err) {
			t.Errorf("%s: expected ApplyFailure, got %v", tt.name, err)
			continue
		}
		var ae *ferrors.ApplyError
		if !errors.As(err, &ae) || ae.Index != tt.index {
			t.Errorf("%s: expected failing index %d, got %v", tt.name, tt.index, err)
		}
	}
}

func TestApplyResult(t *testing.T) {
	pos := 4
	res := &format.Result{
		Edits:  []format.Edit{{Start: 1, End: 3, Text: " "}},
		Cursor: &pos,
	}

	out, cur, err := ApplyResult("a  b", res, offset.Runes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a b" {
		t.Errorf("expected %q, got %q", "a b", out)
	}
	if cur == nil || *cur != 4 {
		t.Errorf("expected cursor 4, got %v", cur)
	}

	out, cur, err = ApplyResult("same", nil, offset.Runes)
	if err != nil || out != "same" || cur != nil {
		t.Errorf("expected nil result to be a no-op, got %q %v %v", out, cur, err)
	}
}
