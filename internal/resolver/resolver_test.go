package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/scrape-orchestrator/internal/entity"
)

const productPage = `<html><head><title>Shop</title>
<meta name="description" content="A sturdy steel water bottle for hiking">
</head><body>
<h1>Stainless Water Bottle 750ml</h1>
<div class="price">$24.99</div>
<p>Free shipping on orders over fifty.</p>
</body></html>`

func TestScore(t *testing.T) {
	assert.Equal(t, 0.8, Score(entity.FieldTitle, "water bottle", "Stainless WATER BOTTLE"))
	assert.Equal(t, 0.0, Score(entity.FieldTitle, "kettle", "Stainless Water Bottle"))
	assert.Equal(t, 0.9, Score(entity.FieldPrice, "", "$24.99"))
	assert.Equal(t, 0.9, Score(entity.FieldPrice, "", "19,90 €"))
	assert.Equal(t, 0.0, Score(entity.FieldPrice, "", "out of stock"))
	assert.Equal(t, 1.0, Score(entity.FieldDescription, "abc", "ABC"))
}

func TestResolveTitle(t *testing.T) {
	r := New(zap.NewNop())

	m, err := r.Resolve(productPage, entity.FieldTitle, "water bottle")
	require.NoError(t, err)
	assert.Equal(t, "h1", m.Selector)
	assert.Equal(t, "Stainless Water Bottle 750ml", m.Text)
	assert.Equal(t, 0.8, m.Score)
}

func TestResolvePrice(t *testing.T) {
	r := New(zap.NewNop())

	m, err := r.Resolve(productPage, entity.FieldPrice, "")
	require.NoError(t, err)
	assert.Equal(t, "$24.99", m.Text)
}

func TestResolveDescriptionPrefersClosestText(t *testing.T) {
	r := New(zap.NewNop())

	m, err := r.Resolve(productPage, entity.FieldDescription, "a sturdy steel water bottle for hiking")
	require.NoError(t, err)
	assert.Equal(t, "A sturdy steel water bottle for hiking", m.Text)
	assert.Equal(t, 1.0, m.Score)
}

func TestResolveNoMatch(t *testing.T) {
	r := New(zap.NewNop())

	_, err := r.Resolve(productPage, entity.FieldTitle, "kettle")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = r.Resolve(`<html><body></body></html>`, entity.FieldPrice, "")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestRankSortsDescending(t *testing.T) {
	r := New(zap.NewNop())

	matches, err := r.Rank(productPage, entity.FieldTitle, "bottle")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}
