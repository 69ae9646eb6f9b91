package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRule_Compile(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		arg  string
		want string
	}{
		{
			name: "css without placeholder",
			rule: Rule{Name: "r", Kind: RuleCSS, CSS: "button.edit-button"},
			want: "button.edit-button",
		},
		{
			name: "css with quoted arg",
			rule: Rule{Name: "r", Kind: RuleCSS, CSS: `mat-radio-button:has-text("{arg}")`},
			arg:  `Deep "Dive"`,
			want: `mat-radio-button:has-text("Deep \"Dive\"")`,
		},
		{
			name: "text contains",
			rule: Rule{Name: "r", Kind: RuleText, Tag: "button", Text: "Generate"},
			want: `button:has-text("Generate")`,
		},
		{
			name: "text exact with arg",
			rule: Rule{Name: "r", Kind: RuleText, Tag: "mat-option", Text: "{arg}", Exact: true},
			arg:  "English",
			want: `mat-option:text-is("English")`,
		},
		{
			name: "role only",
			rule: Rule{Name: "r", Kind: RuleRole, Role: "dialog"},
			want: "role=dialog",
		},
		{
			name: "role with label",
			rule: Rule{Name: "r", Kind: RuleRole, Role: "button", Label: "Customize {arg}"},
			arg:  "Audio Overview",
			want: `role=button[name="Customize Audio Overview"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Compile(tt.arg))
		})
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{name: "valid css", rule: Rule{Name: "a", Kind: RuleCSS, CSS: "div"}},
		{name: "valid text", rule: Rule{Name: "a", Kind: RuleText, Tag: "button", Text: "Go"}},
		{name: "valid role", rule: Rule{Name: "a", Kind: RuleRole, Role: "dialog"}},
		{name: "missing name", rule: Rule{Kind: RuleCSS, CSS: "div"}, wantErr: "name is required"},
		{name: "css without selector", rule: Rule{Name: "a", Kind: RuleCSS}, wantErr: "css selector is required"},
		{name: "text without tag", rule: Rule{Name: "a", Kind: RuleText, Text: "Go"}, wantErr: "tag and text"},
		{name: "role without role", rule: Rule{Name: "a", Kind: RuleRole}, wantErr: "role is required"},
		{name: "unknown kind", rule: Rule{Name: "a", Kind: "xpath"}, wantErr: "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
