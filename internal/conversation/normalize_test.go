package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeActionCanonicalOffer(t *testing.T) {
	raw := `{
		"action": "offer_slots",
		"reply": "Tengo estos horarios:",
		"slots": [
			{"iso": "2026-09-07T15:30:00-03:00", "label": "lunes 07/09 15:30"},
			{"iso": "2026-09-07T16:00:00-03:00", "label": "lunes 07/09 16:00"}
		]
	}`

	action, err := NormalizeAction(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionOfferSlots, action.Kind)
	assert.Equal(t, "Tengo estos horarios:", action.Reply)
	require.Len(t, action.Slots, 2)
	assert.Equal(t, "2026-09-07T15:30:00-03:00", action.Slots[0].ISO)
	assert.Equal(t, "lunes 07/09 15:30", action.Slots[0].Label)
}

func TestNormalizeActionNestedPayload(t *testing.T) {
	raw := `{"type": "confirm", "payload": {"slot": {"start": "2026-09-07T15:30:00-03:00"}, "motivo": "control"}}`

	action, err := NormalizeAction(raw)
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmSlot, action.Kind)
	require.NotNil(t, action.Slot)
	assert.Equal(t, "2026-09-07T15:30:00-03:00", action.Slot.ISO)
	assert.Equal(t, "control", action.Reason)
}

func TestNormalizeActionBareStringSlots(t *testing.T) {
	raw := `{"action": "offer_slots", "slots": ["2026-09-07T15:30:00-03:00", "lunes 07/09 16:00"]}`

	action, err := NormalizeAction(raw)
	require.NoError(t, err)
	require.Len(t, action.Slots, 2)
	assert.Equal(t, "2026-09-07T15:30:00-03:00", action.Slots[0].ISO)
	assert.Empty(t, action.Slots[0].Label)
	assert.Empty(t, action.Slots[1].ISO)
	assert.Equal(t, "lunes 07/09 16:00", action.Slots[1].Label)
}

func TestNormalizeActionProfileUpdates(t *testing.T) {
	t.Run("flat map with spanish aliases", func(t *testing.T) {
		raw := `{"action": "general", "reply": "ok", "profileUpdates": {"nombre": "Ana Gómez", "obra_social": "OSDE", "documento": "30123456"}}`

		action, err := NormalizeAction(raw)
		require.NoError(t, err)
		assert.Equal(t, "Ana Gómez", action.Profile.Name)
		assert.Equal(t, "OSDE", action.Profile.Insurance)
		assert.Equal(t, "30123456", action.Profile.DNI)
	})

	t.Run("array of field/value pairs", func(t *testing.T) {
		raw := `{"action": "general", "profile_updates": [{"field": "direccion", "value": "Av. Rivadavia 1234"}, {"field": "motivo", "value": "dolor de espalda"}]}`

		action, err := NormalizeAction(raw)
		require.NoError(t, err)
		assert.Equal(t, "Av. Rivadavia 1234", action.Profile.Address)
		assert.Equal(t, "dolor de espalda", action.Profile.ConsultReason)
	})
}

func TestNormalizeActionCodeFencesAndProse(t *testing.T) {
	fenced := "```json\n{\"action\": \"ask_clarification\", \"reply\": \"¿Qué día te queda bien?\"}\n```"
	action, err := NormalizeAction(fenced)
	require.NoError(t, err)
	assert.Equal(t, ActionAskClarification, action.Kind)

	prose := `Claro, acá va la respuesta: {"action": "general", "reply": "Atendemos de lunes a viernes."} Espero que sirva.`
	action, err = NormalizeAction(prose)
	require.NoError(t, err)
	assert.Equal(t, ActionGeneral, action.Kind)
	assert.Equal(t, "Atendemos de lunes a viernes.", action.Reply)
}

func TestNormalizeActionRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"no puedo ayudarte con eso",
		`{"foo": "bar"}`,
		`{"action": "self_destruct"}`,
		`[1, 2, 3]`,
	} {
		_, err := NormalizeAction(raw)
		assert.ErrorIs(t, err, ErrUnrecognizedAction, "raw=%q", raw)
	}
}
