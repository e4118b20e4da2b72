package report

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

var src = domain.Source{
	Name:               "UNIQLO",
	ProductURLTemplate: "https://www.uniqlo.com/jp/ja/products/{productId}/{priceGroup}",
}

func event(id string, dir domain.Direction, oldPrice, newPrice, lowest int64, name string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Source:          "UNIQLO",
		ProductID:       id,
		PriceGroup:      "00",
		Direction:       dir,
		OldPrice:        oldPrice,
		NewPrice:        newPrice,
		LowestPriceEver: lowest,
		Item: domain.Item{
			ProductID:      id,
			PriceGroup:     "00",
			Name:           name,
			GenderCategory: "MEN",
			ImageURL:       "https://image.uniqlo.com/" + id + ".jpg",
			Price:          newPrice,
		},
	}
}

func open(t *testing.T, path string) *goquery.Document {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func TestBuildWritesOneRowPerEvent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	b, err := NewBuilder(dir)
	require.NoError(t, err)

	runAt := time.Date(2024, 5, 1, 12, 3, 4, 0, time.FixedZone("JST", 9*60*60))
	path, err := b.Build([]domain.ChangeEvent{
		event("E1", domain.DirectionFall, 1990, 1490, 1490, "Ultra Light Down"),
		event("E2", domain.DirectionRise, 900, 1200, 900, "Airism Tee"),
	}, src, runAt)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "UNIQLO_2024-05-01_03-03-04.html"), path)

	doc := open(t, path)
	rows := doc.Find("tbody tr.change")
	require.Equal(t, 2, rows.Length())

	first := rows.Eq(0)
	assert.True(t, first.HasClass("fall"))
	assert.True(t, first.HasClass("lowest"))
	assert.Equal(t, "Ultra Light Down", first.Find("td.name a").Text())
	href, _ := first.Find("td.name a").Attr("href")
	assert.Equal(t, "https://www.uniqlo.com/jp/ja/products/E1/00", href)
	assert.Equal(t, "¥1,990", first.Find("td.old").Text())
	assert.Contains(t, first.Find("td.new").Text(), "¥1,490")
	assert.Equal(t, "¥1,490", first.Find("td.lowest-price").Text())
	assert.Equal(t, "E1/00", first.Find("td.code").Text())
	assert.Equal(t, "-25.1%", first.Find("td.rate").Text())

	second := rows.Eq(1)
	assert.True(t, second.HasClass("rise"))
	assert.False(t, second.HasClass("lowest"))
	assert.Equal(t, "MEN", second.Find("td.gender").Text())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestBuildPublishesWorldReadableFile(t *testing.T) {
	b, err := NewBuilder(t.TempDir())
	require.NoError(t, err)

	path, err := b.Build([]domain.ChangeEvent{
		event("E1", domain.DirectionFall, 1990, 1490, 1490, "Ultra Light Down"),
	}, src, time.Now())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestBuildEscapesUpstreamFields(t *testing.T) {
	b, err := NewBuilder(t.TempDir())
	require.NoError(t, err)

	ev := event("X1", domain.DirectionFall, 200, 100, 100, `<script>alert("x")</script>`)
	ev.Item.ImageURL = "javascript:alert(1)"

	path, err := b.Build([]domain.ChangeEvent{ev}, src, time.Now())
	require.NoError(t, err)

	doc := open(t, path)
	assert.Equal(t, 0, doc.Find("tbody script").Length())
	assert.Equal(t, `<script>alert("x")</script>`, doc.Find("td.name a").Text())

	img, _ := doc.Find("td img").Attr("src")
	assert.NotContains(t, img, "javascript:")
}

func TestBuildRejectsEmptyEvents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	b, err := NewBuilder(dir)
	require.NoError(t, err)

	_, err = b.Build(nil, src, time.Now())
	require.True(t, errors.Is(err, domain.ErrNoEvents))

	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}

func TestFileName(t *testing.T) {
	at := time.Date(2023, 12, 31, 23, 59, 59, 999, time.UTC)
	assert.Equal(t, "GU_2023-12-31_23-59-59.html", FileName("GU", at))
	assert.Equal(t, "a_b_2023-12-31_23-59-59.html", FileName("a/b", at))
}
