package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestExpandRepeatedGroup(t *testing.T) {
	steps := []Step{{
		Name:        "g",
		Type:        StepGroup,
		RepeatCount: intPtr(2),
		Steps:       []Step{{Name: "f", Type: StepText}},
	}}

	assert.Equal(t, []string{"g.0.f", "g.1.f"}, Names(Expand(steps, "")))
}

func TestExpandKeepsSchemaOrder(t *testing.T) {
	steps := []Step{
		{Name: "title", Type: StepText},
		{Name: "items", Type: StepGroup, RepeatCount: intPtr(3), Steps: []Step{
			{Name: "photo", Type: StepPhoto},
			{Name: "caption", Type: StepText},
		}},
		{Name: "done", Type: StepSelect},
	}

	got := Expand(steps, "")
	require.Len(t, got, 1+3*2+1)

	names := Names(got)
	assert.Equal(t, []string{
		"title",
		"items.0.photo", "items.0.caption",
		"items.1.photo", "items.1.caption",
		"items.2.photo", "items.2.caption",
		"done",
	}, names)

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate name %s", n)
		seen[n] = true
	}
	assert.Equal(t, StepPhoto, got[1].Type)
}

func TestExpandDefaultsAndPrefix(t *testing.T) {
	steps := []Step{{
		Name: "outer",
		Type: StepGroup,
		Steps: []Step{{
			Name:        "inner",
			Type:        StepGroup,
			RepeatCount: intPtr(2),
			Steps:       []Step{{Name: "x", Type: StepText}},
		}},
	}}

	assert.Equal(t, []string{
		"p.outer.0.inner.0.x",
		"p.outer.0.inner.1.x",
	}, Names(Expand(steps, "p")))
}

func TestExpandZeroRepeat(t *testing.T) {
	steps := []Step{
		{Name: "g", Type: StepGroup, RepeatCount: intPtr(0), Steps: []Step{{Name: "f", Type: StepText}}},
		{Name: "tail", Type: StepText},
	}
	assert.Equal(t, []string{"tail"}, Names(Expand(steps, "")))
}

func TestExpandDoesNotMutateSchema(t *testing.T) {
	steps := []Step{{Name: "g", Type: StepGroup, Steps: []Step{{Name: "f", Type: StepText}}}}
	_ = Expand(steps, "root")
	assert.Equal(t, "f", steps[0].Steps[0].Name)
}

func TestSchemaValidateUnknownReference(t *testing.T) {
	s := Schema{{Name: "main", Steps: []Step{{
		Name:    "pick",
		Type:    StepSelect,
		Options: []Option{{Label: "A", Value: "a", NextSteps: []string{"missing"}}},
	}}}}
	require.Error(t, s.Validate())

	_, err := ParseSchema([]byte(`[]`))
	require.Error(t, err)
}

func TestParseSchema(t *testing.T) {
	raw := []byte(`[
		{"name": "main", "action": "print", "steps": [
			{"name": "title", "type": "text", "validators": [{"type": "max_length", "limit": 20}]},
			{"name": "pick", "type": "select", "options": [
				{"label": "Да", "value": "yes", "next_steps": ["title"]}
			]}
		]}
	]`)

	s, err := ParseSchema(raw)
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, "print", s[0].Action)
	assert.Equal(t, 20, s[0].Steps[0].Validators[0].Limit)
	assert.Equal(t, []string{"title"}, s[0].Steps[1].Options[0].NextSteps)
}
