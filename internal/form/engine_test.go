package form

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/form/validate"
)

func testSchema() Schema {
	return Schema{
		{Name: "main", Steps: []Step{
			{Name: "title", Type: StepText, Validators: []validate.Spec{{
				Type: "max_length", Limit: 10, ErrorMessage: "Не больше {limit} символов, у вас {count}",
			}}},
			{Name: "photos", Type: StepMulti, Count: 2, AllowEarlyFinish: true},
			{Name: "note", Type: StepText, Optional: true},
		}},
		{Name: "layout", Action: "print", Steps: []Step{
			{Name: "names", Type: StepGroup, RepeatCount: intPtr(2), Steps: []Step{{Name: "name", Type: StepText}}},
			{Name: "preview", Type: StepGenerateImage},
		}},
		{Name: "video", Steps: []Step{
			{Name: "mode", Type: StepSelect, Options: []Option{
				{Label: "Снять видео", Value: "record", Action: ActionForwardVideo, NextSteps: []string{"clip"}},
				{Label: "Без видео", Value: "none", Action: ActionSkipVideo},
			}},
			{Name: "clip", Type: StepVideo},
		}},
	}
}

func assertCursor(t *testing.T, s *State) {
	t.Helper()
	assert.GreaterOrEqual(t, s.StepIndex, 0)
	assert.LessOrEqual(t, s.StepIndex, len(s.Steps))
	assert.GreaterOrEqual(t, s.GroupIndex, 0)
	assert.LessOrEqual(t, s.GroupIndex, len(s.Groups))
}

// fillToVideo проходит первые две группы тестовой схемы.
func fillToVideo(t *testing.T) *State {
	t.Helper()
	s, out, err := Start(7, testSchema())
	require.NoError(t, err)
	require.Equal(t, OutcomePrompt, out.Kind)

	steps := []func() (Outcome, error){
		func() (Outcome, error) { return s.SubmitText("Привет") },
		func() (Outcome, error) {
			return s.SubmitPhotos([]validate.Image{{FileID: "p1", Width: 10, Height: 10}, {FileID: "p2", Width: 10, Height: 10}})
		},
		s.Skip,
		func() (Outcome, error) { return s.SubmitText("Аня") },
		func() (Outcome, error) { return s.SubmitText("Боря") },
		s.Confirm,
	}
	for _, op := range steps {
		_, err := op()
		require.NoError(t, err)
		assertCursor(t, s)
	}
	require.Equal(t, "mode", s.CurrentStep.Name)
	return s
}

func TestSessionFullFlow(t *testing.T) {
	s, out, err := Start(7, testSchema())
	require.NoError(t, err)
	assert.Equal(t, "title", out.Step.Name)
	assert.Equal(t, 1, out.StepNumber)
	assert.Equal(t, 3, out.StepsTotal)

	_, err = s.SubmitText("слишком длинный текст")
	ie, ok := AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, "Не больше 10 символов, у вас 21", ie.Result.ErrorText)
	assert.Equal(t, 0, s.StepIndex)

	out, err = s.SubmitText("Привет")
	require.NoError(t, err)
	assert.Equal(t, "photos", out.Step.Name)
	assert.Equal(t, 2, out.Required)
	assert.Equal(t, "title", out.Completed[0].Name)

	out, err = s.SubmitPhotos([]validate.Image{{FileID: "p1", Width: 10, Height: 10}})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 1, out.Collected)

	out, err = s.SubmitPhotos([]validate.Image{{FileID: "p2", Width: 10, Height: 10}, {FileID: "p3", Width: 10, Height: 10}})
	require.NoError(t, err)
	assert.Equal(t, "note", out.Step.Name)
	assert.Equal(t, 1, out.Excess)
	assert.Equal(t, []any{
		map[string]any{"photo_url": "p1"},
		map[string]any{"photo_url": "p2"},
	}, s.Data["main"]["photos"])

	out, err = s.Skip()
	require.NoError(t, err)
	assert.Equal(t, "layout", out.Group)
	assert.Equal(t, "names.0.name", out.Step.Name)
	assert.Equal(t, "print", s.Data["layout"]["action"])
	_, noted := s.Data["main"]["note"]
	assert.False(t, noted)

	_, err = s.SubmitText("Аня")
	require.NoError(t, err)
	out, err = s.SubmitText("Боря")
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerate, out.Kind)
	assert.Equal(t, PhaseConfirmation, s.Phase)
	assert.Equal(t, map[string]any{
		"action": "print",
		"names":  []any{map[string]any{"name": "Аня"}, map[string]any{"name": "Боря"}},
	}, out.Folded)

	_, err = s.SubmitText("ещё")
	_, ok = AsInputError(err)
	assert.True(t, ok)

	out, err = s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "mode", out.Step.Name)

	out, err = s.Choose("record")
	require.NoError(t, err)
	assert.Equal(t, "clip", out.Step.Name)
	assert.Equal(t, ActionForwardVideo, s.Data["video"]["action"])

	_, err = s.SubmitVideo(Video{FileID: "v1", SizeBytes: MaxVideoSize + 1})
	_, ok = AsInputError(err)
	assert.True(t, ok)

	out, err = s.SubmitVideo(Video{FileID: "v1", SizeBytes: 1024})
	require.NoError(t, err)
	require.Equal(t, OutcomeFinalized, out.Kind)
	assert.True(t, s.Finalized())
	assert.Equal(t, len(s.Groups), s.GroupIndex)
	assert.Nil(t, s.CurrentStep)
	assertCursor(t, s)

	assert.Equal(t, map[string]any{
		"mode":   "Снять видео",
		"action": ActionForwardVideo,
		"clip":   map[string]any{"video_id": "v1"},
	}, out.Folded["video"])

	_, err = s.SubmitText("после")
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestChooseWithoutNextStepsEndsGroup(t *testing.T) {
	s := fillToVideo(t)

	out, err := s.Choose("none")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, out.Kind)
	assert.Equal(t, "Без видео", s.Data["video"]["mode"])
	assert.Equal(t, ActionSkipVideo, s.Data["video"]["action"])
}

func TestChooseSkipAction(t *testing.T) {
	schema := Schema{{Name: "g", Steps: []Step{
		{Name: "pick", Type: StepSelect, Options: []Option{{Label: "Пропустить", Value: "s", Action: ActionSkip}}},
		{Name: "after", Type: StepText},
	}}}
	s, _, err := Start(1, schema)
	require.NoError(t, err)

	out, err := s.Choose("s")
	require.NoError(t, err)
	assert.Equal(t, "after", out.Step.Name)

	_, err = s.Choose("s")
	_, ok := AsInputError(err)
	assert.True(t, ok)
}

func TestChooseUnknownOption(t *testing.T) {
	s := fillToVideo(t)
	before, err := s.Clone()
	require.NoError(t, err)

	_, err = s.Choose("nope")
	_, ok := AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, before, s)
}

func TestBranchUsesCollectedRepeatCount(t *testing.T) {
	schema := Schema{{Name: "g", Steps: []Step{
		{Name: "count", Type: StepText},
		{Name: "pick", Type: StepSelect, Options: []Option{{Label: "Да", Value: "y", NextSteps: []string{"items"}}}},
		{Name: "items", Type: StepGroup, RepeatFrom: "count", Steps: []Step{{Name: "x", Type: StepText}}},
	}}}
	s, _, err := Start(1, schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "pick", "items.0.x"}, Names(s.Steps))

	_, err = s.SubmitText("2")
	require.NoError(t, err)
	_, err = s.Choose("y")
	require.NoError(t, err)
	assert.Equal(t, []string{"items.0.x", "items.1.x"}, Names(s.Steps))
}

func TestRepeatCountAboveLimitIsRejected(t *testing.T) {
	schema := Schema{{Name: "g", Steps: []Step{
		{Name: "count", Type: StepText},
		{Name: "pick", Type: StepSelect, Options: []Option{{Label: "Да", Value: "y", NextSteps: []string{"items"}}}},
		{Name: "items", Type: StepGroup, RepeatFrom: "count", Steps: []Step{{Name: "x", Type: StepText}}},
	}}}
	s, _, err := Start(1, schema)
	require.NoError(t, err)
	_, err = s.SubmitText("5000000")
	require.NoError(t, err)
	before, err := s.Clone()
	require.NoError(t, err)

	_, err = s.Choose("y")
	_, ok := AsInputError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, before, s)
	assert.Equal(t, "pick", s.CurrentStep.Name)

	s.Data["g"]["count"] = "50"
	_, err = s.Choose("y")
	require.NoError(t, err)
	assert.Len(t, s.Steps, MaxRepeat)
}

func TestSchemaRepeatAboveLimitIsConfigError(t *testing.T) {
	schema := Schema{{Name: "g", Steps: []Step{
		{Name: "items", Type: StepGroup, RepeatCount: intPtr(MaxRepeat + 1), Steps: []Step{{Name: "x", Type: StepText}}},
	}}}
	_, _, err := Start(1, schema)
	assert.True(t, IsConfigError(err), "got %v", err)
}

func TestSkipRequiredStep(t *testing.T) {
	s, _, err := Start(1, testSchema())
	require.NoError(t, err)

	_, err = s.Skip()
	assert.ErrorIs(t, err, ErrStepRequired)
	assert.Equal(t, 0, s.StepIndex)
}

func TestAlbumRejectsOnlyInvalidPhotos(t *testing.T) {
	schema := Schema{{Name: "g", Steps: []Step{
		{Name: "photos", Type: StepMulti, Count: 2, Validators: []validate.Spec{{Type: "is_square", ErrorMessage: "Нужно квадратное фото"}}},
	}}}
	s, _, err := Start(1, schema)
	require.NoError(t, err)

	out, err := s.SubmitPhotos([]validate.Image{
		{FileID: "ok", Width: 100, Height: 100},
		{FileID: "bad", Width: 100, Height: 300},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out.Kind)
	assert.Equal(t, 1, out.Collected)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "bad", out.Rejected[0].FileID)
	assert.Equal(t, "Нужно квадратное фото", out.Rejected[0].Result.ErrorText)

	_, err = s.SubmitPhotos([]validate.Image{{FileID: "bad2", Width: 100, Height: 300}})
	_, ok := AsInputError(err)
	assert.True(t, ok)
	assert.Len(t, s.Data["g"]["photos"], 1)
}

func TestFinishEarly(t *testing.T) {
	s, _, err := Start(1, testSchema())
	require.NoError(t, err)
	_, err = s.SubmitText("Привет")
	require.NoError(t, err)

	_, err = s.SubmitText(DefaultFinishButtonText)
	_, ok := AsInputError(err)
	assert.True(t, ok, "nothing collected yet")

	_, err = s.SubmitPhotos([]validate.Image{{FileID: "p1", Width: 1, Height: 1}})
	require.NoError(t, err)

	out, err := s.SubmitText(DefaultFinishButtonText)
	require.NoError(t, err)
	assert.Equal(t, "note", out.Step.Name)
}

func TestSessionSurvivesSerialization(t *testing.T) {
	s, _, err := Start(1, testSchema())
	require.NoError(t, err)
	_, err = s.SubmitText("Привет")
	require.NoError(t, err)
	_, err = s.SubmitPhotos([]validate.Image{{FileID: "p1", Width: 1, Height: 1}})
	require.NoError(t, err)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	var restored State
	require.NoError(t, json.Unmarshal(raw, &restored))

	out, err := restored.SubmitPhotos([]validate.Image{{FileID: "p2", Width: 1, Height: 1}})
	require.NoError(t, err)
	assert.Equal(t, "note", out.Step.Name)
	assert.Len(t, restored.Data["main"]["photos"], 2)
}

func TestEmptyGroupsAreSkipped(t *testing.T) {
	schema := Schema{
		{Name: "empty"},
		{Name: "second", Steps: []Step{{Name: "f", Type: StepText}}},
	}
	s, out, err := Start(1, schema)
	require.NoError(t, err)
	assert.Equal(t, "second", out.Group)
	assert.Equal(t, 1, s.GroupIndex)

	s, out, err = Start(1, Schema{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, out.Kind)
	assert.True(t, s.Finalized())
}

func TestInconsistentSessionIsConfigError(t *testing.T) {
	_, _, err := Start(1, nil)
	assert.True(t, IsConfigError(err))

	s := &State{Phase: PhaseCollecting}
	_, err = s.Advance()
	assert.True(t, IsConfigError(err))

	s, _, err = Start(1, testSchema())
	require.NoError(t, err)
	s.GroupIndex = 9
	_, err = s.SubmitText("x")
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 9, s.GroupIndex)

	s.GroupIndex = 0
	s.StepIndex = 42
	_, err = s.Advance()
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 42, s.StepIndex)
}

func TestCursorStaysInRange(t *testing.T) {
	s, _, err := Start(1, testSchema())
	require.NoError(t, err)

	ops := []func() (Outcome, error){
		s.Skip,
		func() (Outcome, error) { return s.SubmitText("ok") },
		func() (Outcome, error) { return s.SubmitText(DefaultFinishButtonText) },
		func() (Outcome, error) { return s.SubmitPhotos([]validate.Image{{FileID: "p", Width: 1, Height: 1}}) },
		s.Skip,
		func() (Outcome, error) { return s.SubmitVideo(Video{FileID: "v"}) },
		func() (Outcome, error) { return s.SubmitText("a") },
		s.Confirm,
		func() (Outcome, error) { return s.Choose("record") },
		func() (Outcome, error) { return s.SubmitVideo(Video{FileID: "v"}) },
	}
	for i := 0; i < 5 && !s.Finalized(); i++ {
		for _, op := range ops {
			_, _ = op()
			assertCursor(t, s)
		}
	}
	assert.True(t, s.Finalized())
}
