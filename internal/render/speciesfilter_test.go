package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/addaxai-connect/internal/render"
)

func TestFilterAndRenormalize_MasksAndRenormalizes(t *testing.T) {
	probs := map[string]float64{
		"red_deer":  0.4,
		"wild_boar": 0.4,
		"red_fox":   0.2,
	}
	species, confidence := render.FilterAndRenormalize(probs, []string{"red_deer", "red_fox"})

	assert.Equal(t, "red_deer", species)
	assert.InDelta(t, 0.4/0.6, confidence, 0.0001)
}

func TestFilterAndRenormalize_EmptyAllowlistAllowsEverything(t *testing.T) {
	probs := map[string]float64{"red_deer": 0.3, "wild_boar": 0.7}
	species, _ := render.FilterAndRenormalize(probs, nil)
	assert.Equal(t, "wild_boar", species)
}

func TestFilterAndRenormalize_AllMaskedFallsBackToUnfiltered(t *testing.T) {
	probs := map[string]float64{"red_deer": 0.3, "wild_boar": 0.7}
	species, confidence := render.FilterAndRenormalize(probs, []string{"eurasian_lynx"})

	assert.Equal(t, "wild_boar", species)
	assert.InDelta(t, 0.7, confidence, 0.0001)
}

func TestSquareCrop_WidensShorterSide(t *testing.T) {
	box := render.NormalizedBBox{X: 0.4, Y: 0.4, W: 0.2, H: 0.1}
	squared := render.SquareCrop(box)

	assert.InDelta(t, squared.W, squared.H, 0.0001)
	assert.InDelta(t, 0.2, squared.W, 0.0001)
}
