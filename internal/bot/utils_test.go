package bot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/form"
)

func TestParseCbID(t *testing.T) {
	id, ok := parseCbID(cbID("tpl:choose", 42))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = parseCbID("srch:dt")
	assert.False(t, ok)
	_, ok = parseCbID("nocolon")
	assert.False(t, ok)
}

func TestConflictText(t *testing.T) {
	err := fmt.Errorf("bind: %w", domain.Conflict(domain.ErrOrderAlreadyLinked))
	assert.Equal(t, "Заказ уже привязан к другому материалу.", conflictText(err))
	assert.Equal(t, "Поставка уже закрыта.", conflictText(domain.Conflict(domain.ErrSupplyClosed)))
}

func TestStepKeyboard(t *testing.T) {
	assert.Nil(t, stepKeyboard(form.Step{Name: "title", Type: form.StepText}))

	kb := stepKeyboard(form.Step{
		Name:     "color",
		Type:     form.StepSelect,
		Optional: true,
		Options:  []form.Option{{Label: "Белый", Value: "white"}, {Label: "Чёрный", Value: "black"}},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "form:opt:1", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "form:skip", *kb.InlineKeyboard[2][0].CallbackData)

	kb = stepKeyboard(form.Step{Name: "photos", Type: form.StepMulti, Count: 5, AllowEarlyFinish: true})
	require.NotNil(t, kb)
	assert.Equal(t, form.DefaultFinishButtonText, kb.InlineKeyboard[0][0].Text)
}
