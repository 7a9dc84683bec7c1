package exercise

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		sentence string
		correct  bool
		rule     string
	}{
		{"Il est parti tôt.", true, ""},
		{"Malgré qu'il pleuve, nous sortons.", false, "malgré que"},
		{"Malgré la pluie, nous sortons.", true, ""},
		{"Il faut pallier à ce problème.", false, "pallier à"},
		{"Nous avons pallié aux difficultés.", false, "pallier à"},
		{"Il faut pallier ce problème.", true, ""},
		{"Au jour d’aujourd’hui, tout va vite.", false, "au jour d'aujourd'hui"},
		{"Je me rappelle de cette histoire.", false, "se rappeler de"},
		{"Je me rappelle cette histoire.", true, ""},
		{"Je me rappelle de venir demain.", true, ""},
		{"Il parle de manière à ce que tous comprennent.", false, "de manière à ce que"},
		{"Si j'aurais su, je serais venu.", false, "si + conditionnel"},
		{"Si j'avais su, je serais venu.", true, ""},
		{"Après qu'il soit parti, nous avons dîné.", false, "après que + subjonctif"},
		{"Après qu'il est parti, nous avons dîné.", true, ""},
		{"Ce soit-disant expert se trompe.", false, "soi-disant"},
		{"Ce soi-disant expert se trompe.", true, ""},
		{"C'est difficile, voire même impossible.", false, "voire même"},
		{"C'est difficile, voire impossible.", true, ""},
		{"Il faut monter en haut de la tour.", false, "pléonasme de direction"},
		{"Il est venu comme même.", false, "comme même"},
		{"Il est venu quand même.", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.sentence, func(t *testing.T) {
			correct, rule := Classify(tt.sentence)
			assert.Equal(t, tt.correct, correct)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestNormalizeSentence(t *testing.T) {
	assert.Equal(t, "l'arbre est vert", normalizeSentence("  L’arbre\n est   VERT "))
}
