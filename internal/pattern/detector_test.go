package pattern

import (
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledPattern(id, expression string) model.Pattern {
	return model.Pattern{ID: id, Name: id, Expression: expression, Enabled: true}
}

func TestDetector_Find(t *testing.T) {
	dashed := enabledPattern("dashed", `(?i)[A-Z]{2,5}-\d{3,7}`)
	joined := enabledPattern("joined", `(?i)[A-Z]{2,5}\d{3,7}`)

	catastrophic := enabledPattern("catastrophic", `(a+)+$`)
	slowText := "ABC-1234 " + strings.Repeat("a", 40) + "!"

	tests := []struct {
		name     string
		text     string
		patterns []model.Pattern
		opts     []DetectorOption
		want     []string
	}{
		{
			name:     "single match inside sentence",
			text:     "Photo ABC-1234 taken",
			patterns: []model.Pattern{dashed},
			want:     []string{"ABC-1234"},
		},
		{
			name:     "results concatenated in pattern order",
			text:     "ABC-1234 and ABC1234",
			patterns: []model.Pattern{dashed, joined},
			want:     []string{"ABC-1234", "ABC1234"},
		},
		{
			name:     "pattern order wins over text position",
			text:     "ABC1234 then XYZ-999",
			patterns: []model.Pattern{dashed, joined},
			want:     []string{"XYZ-999", "ABC1234"},
		},
		{
			name:     "repeated value reported once",
			text:     "ABC-1234 ABC-1234 DEF-5678",
			patterns: []model.Pattern{dashed},
			want:     []string{"ABC-1234", "DEF-5678"},
		},
		{
			name:     "case insensitive",
			text:     "code abc-123",
			patterns: []model.Pattern{enabledPattern("upper", `[A-Z]{3}-\d{3}`)},
			want:     []string{"abc-123"},
		},
		{
			name:     "invalid expression contributes nothing",
			text:     "ABC-1234",
			patterns: []model.Pattern{enabledPattern("broken", `([A-Z`), dashed},
			want:     []string{"ABC-1234"},
		},
		{
			name:     "empty matches ignored",
			text:     "ABC",
			patterns: []model.Pattern{enabledPattern("empty", `\d*`)},
			want:     nil,
		},
		{
			name: "disabled pattern skipped",
			text: "ABC-1234",
			patterns: []model.Pattern{
				{ID: "off", Name: "off", Expression: dashed.Expression},
			},
			want: nil,
		},
		{
			name:     "no patterns",
			text:     "ABC-1234",
			patterns: nil,
			want:     nil,
		},
		{
			name:     "timed out pattern contributes nothing",
			text:     slowText,
			patterns: []model.Pattern{catastrophic, dashed},
			opts:     []DetectorOption{WithMatchTimeout(20 * time.Millisecond)},
			want:     []string{"ABC-1234"},
		},
		{
			name:     "lookahead supported",
			text:     "ID-100 ID-200x",
			patterns: []model.Pattern{enabledPattern("look", `ID-\d+(?=\s|$)`)},
			want:     []string{"ID-100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(tt.opts...)
			got := d.Find(tt.text, tt.patterns)

			var values []string
			for _, id := range got {
				values = append(values, id.Value)
			}
			assert.Equal(t, tt.want, values)
		})
	}
}

func TestDetector_FindAttributesFirstPattern(t *testing.T) {
	first := enabledPattern("first", `ABC-\d+`)
	second := enabledPattern("second", `[A-Z]+-\d+`)

	got := NewDetector().Find("ABC-1 XYZ-2", []model.Pattern{first, second})

	require.Len(t, got, 2)
	assert.Equal(t, model.DetectedIdentifier{Value: "ABC-1", PatternID: "first", PatternName: "first"}, got[0])
	assert.Equal(t, model.DetectedIdentifier{Value: "XYZ-2", PatternID: "second", PatternName: "second"}, got[1])
}

func TestDetector_FindIsDeterministic(t *testing.T) {
	patterns := DefaultPatterns(sequentialIDs())
	for i := range patterns {
		patterns[i].Enabled = true
	}
	text := "Order ORD-123456 for SKU-ABCD99 ref ABC-1234, XYZ1234 and 12ABC-345 on 02-555-1234"

	d := NewDetector()
	first := d.Find(text, patterns)
	for range 5 {
		assert.Equal(t, first, d.Find(text, patterns))
		assert.Equal(t, first, NewDetector().Find(text, patterns))
	}
}

func TestDetector_BuiltInCatalog(t *testing.T) {
	patterns := DefaultPatterns(sequentialIDs())

	got := NewDetector().Find("Photo ABC-1234 taken", model.EnabledPatterns(patterns))

	require.Len(t, got, 1)
	assert.Equal(t, "ABC-1234", got[0].Value)
	assert.Equal(t, "AAA-1234", got[0].PatternName)
}

func TestDetector_MatchTimeout(t *testing.T) {
	d := NewDetector(WithMatchTimeout(20 * time.Millisecond))
	text := "ABC-1234 " + strings.Repeat("a", 40) + "!"

	start := time.Now()
	_, err := d.Matches(`(a+)+$`, text)
	require.Error(t, err)

	got := d.Find(text, []model.Pattern{
		enabledPattern("catastrophic", `(a+)+$`),
		enabledPattern("dashed", `[A-Z]{2,5}-\d{3,7}`),
	})
	elapsed := time.Since(start)

	require.Len(t, got, 1)
	assert.Equal(t, model.DetectedIdentifier{Value: "ABC-1234", PatternID: "dashed", PatternName: "dashed"}, got[0])
	assert.Less(t, elapsed, time.Second, "matching must stop at the configured timeout, well before the default")
}

func TestDetector_Matches(t *testing.T) {
	d := NewDetector()

	values, err := d.Matches(`\d{2}`, "12 34 12")
	require.NoError(t, err)
	assert.Equal(t, []string{"12", "34", "12"}, values)

	_, err = d.Matches(`(`, "anything")
	require.ErrorIs(t, err, common.ErrInvalidExpression)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{name: "simple", expression: `[A-Z]{3}-\d{3}`},
		{name: "inline flag", expression: `(?i)abc`},
		{name: "backreference", expression: `(\w)\1`},
		{name: "unbalanced", expression: `([A-Z]`, wantErr: true},
		{name: "empty", expression: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expression)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidExpression)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, NewDetector().Validate(tt.expression))
		})
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "p" + string(rune('a'+n/26)) + string(rune('a'+n%26))
	}
}
