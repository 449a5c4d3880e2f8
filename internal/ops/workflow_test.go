package ops

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/store"
	"github.com/formdepartment/capsule/internal/suggest"
)

// TestFullWorkflow exercises the "minimalist hoodie" journey over a SQLite store:
// suggest (generate) → revisit (cache) → market → palette → expire → purge
func TestFullWorkflow(t *testing.T) {
	ctx := context.Background()
	db, err := store.Init(t.TempDir())
	require.NoError(t, err)
	kv := store.NewSQLite(db)
	defer kv.Close()

	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	gen := &fakeGen{reply: breakdownReply}
	svc := NewService(cache.NewManager(kv, cache.WithClock(clk.Now)), gen, Options{})

	p := hoodie()
	fp := suggest.Fingerprint(p)

	// 1. First visit generates once and fills both slots.
	out, err := svc.Suggest(ctx, SuggestInput{Params: p})
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, out.Source)
	require.Equal(t, fp, out.Fingerprint)
	require.Equal(t, 1, gen.Calls())
	require.Contains(t, gen.prompts[0], "minimalist hoodie")

	raw, ok, err := kv.Get(ctx, cache.Key(cache.KindRawAnswer, fp))
	require.NoError(t, err)
	require.True(t, ok)
	var rawEntry cache.RawAnswerEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &rawEntry))
	require.Equal(t, breakdownReply, rawEntry.Answer)
	require.Equal(t, clk.t.UnixMilli(), rawEntry.Timestamp)

	parsed, ok, err := kv.Get(ctx, cache.Key(cache.KindBreakdown, fp))
	require.NoError(t, err)
	require.True(t, ok)
	var parsedEntry map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(parsed), &parsedEntry))
	var sections map[string]string
	require.NoError(t, json.Unmarshal(parsedEntry["sections"], &sections))
	require.Len(t, sections, len(suggest.Keys()))
	require.Equal(t, "Organic cotton fleece, 400 GSM.", sections["materials"])

	// 2. Revisit within the window: zero generation calls.
	clk.Advance(2 * time.Minute)
	out, err = svc.Suggest(ctx, SuggestInput{Params: p})
	require.NoError(t, err)
	require.Equal(t, SourceParsed, out.Source)
	require.Equal(t, 1, gen.Calls())

	// 3. Market view is derived from the cached breakdown.
	market, err := svc.MarketAnalysis(ctx, MarketInput{Params: p})
	require.NoError(t, err)
	require.Equal(t, "Urban professionals, 25 to 35.", market.Sections.TargetInsight)
	require.Equal(t, 1, gen.Calls())

	// 4. Palette swatches come from the same record.
	pal, err := svc.Palette(ctx, PaletteInput{Params: p})
	require.NoError(t, err)
	require.Len(t, pal.Colors, DefaultPaletteLimit)
	require.Equal(t, "#36454F", pal.Colors[0].Hex)

	// 5. Past the window every slot is dead and purge removes them.
	clk.Advance(10 * time.Minute)
	purged, err := svc.Purge(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, purged.Purged)

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	require.Empty(t, keys)

	// 6. Next visit generates again.
	out, err = svc.Suggest(ctx, SuggestInput{Params: p})
	require.NoError(t, err)
	require.Equal(t, SourceGenerated, out.Source)
	require.Equal(t, 2, gen.Calls())
}
