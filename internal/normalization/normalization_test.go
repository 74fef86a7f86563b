package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ubicación", "ubicacion"},
		{"UBICACIÓN", "ubicacion"},
		{"Recepcionista - Cdmx", "recepcionista - cdmx"},
		{"Prestación", "prestacion"},
		{"¿Cuánto pagan?", "¿cuanto pagan?"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fold(tt.in), "Fold(%q)", tt.in)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("¿Cuál es tu GRADO DE ESTUDIOS?", "grado de estudios"))
	assert.True(t, Contains("Cuanto tiempo necesitas para incorporarte", "cuánto tiempo"))
	assert.False(t, Contains("hola", ""))
	assert.False(t, Contains("hola", "adiós"))
}

func TestContainsAny_ReturnsFirstInListOrder(t *testing.T) {
	got, ok := ContainsAny("Busco trabajo de chofer o de seguridad", []string{"auxiliar", "seguridad", "chofer"})
	assert.True(t, ok)
	assert.Equal(t, "seguridad", got)

	_, ok = ContainsAny("nada", []string{"auxiliar"})
	assert.False(t, ok)
}

func TestHasPhrase_WordBoundaries(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"No, gracias", "no", true},
		{"Mi nombre es Ana", "no", false},
		{"Necesito pensarlo", "si", false},
		{"Sí, claro", "si", true},
		{"está bien para mí", "esta bien", true},
		{"de acuerdo!", "de acuerdo", true},
		{"", "si", false},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPhrase(tt.text, tt.phrase))
		})
	}
}

func TestFirstPhrase(t *testing.T) {
	p, ok := FirstPhrase("No, but yes I can", []string{"yes", "si"})
	assert.True(t, ok)
	assert.Equal(t, "yes", p)

	_, ok = FirstPhrase("maybe", []string{"yes", "no"})
	assert.False(t, ok)
}
