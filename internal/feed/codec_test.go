package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_sync/internal/domain"
	"token_sync/internal/event"
)

func TestDecode(t *testing.T) {
	t.Run("price_update", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"price_update","payload":{"id":"t1","field":"marketCap","value":0.1,"direction":"up"}}`))
		require.NoError(t, err)
		pu, ok := ev.(*event.PriceUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, domain.UpdateRecord{ID: "t1", Field: domain.FieldMarketCap, Value: 0.1, Direction: domain.DirectionUp}, pu.Update)
	})

	t.Run("batch_update", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"batch_update","payload":[{"id":"a","field":"volume","value":5},{"id":"b","field":"holders","value":1}]}`))
		require.NoError(t, err)
		bu := ev.(*event.BatchUpdateEvent)
		require.Len(t, bu.Updates, 2)
		assert.Equal(t, "b", bu.Updates[1].ID)
	})

	t.Run("new_token with category", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"new_token","payload":{"category":"migrated","token":{"id":"n1","name":"X"}}}`))
		require.NoError(t, err)
		nt := ev.(*event.NewTokenEvent)
		assert.Equal(t, domain.CategoryMigrated, nt.Category)
		assert.Equal(t, "n1", nt.Token.ID)
	})

	t.Run("new_token bare", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"new_token","payload":{"id":"n2","bondingProgress":80}}`))
		require.NoError(t, err)
		nt := ev.(*event.NewTokenEvent)
		assert.Empty(t, nt.Category)
		assert.Equal(t, "n2", nt.Token.ID)
		require.NotNil(t, nt.Token.BondingProgress)
		assert.Equal(t, 80.0, *nt.Token.BondingProgress)
	})

	t.Run("token_removed", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"token_removed","payload":{"category":"new-pairs","tokenId":"r1"}}`))
		require.NoError(t, err)
		tr := ev.(*event.TokenRemovedEvent)
		assert.Equal(t, domain.CategoryNewPairs, tr.Category)
		assert.Equal(t, "r1", tr.TokenID)
	})
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bulk_load","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"price_update"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"batch_update","payload":{"id":"x"}}`))
	assert.Error(t, err)
}

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(&event.TokenRemovedEvent{Category: domain.CategoryMigrated, TokenID: "z"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"token_removed","payload":{"category":"migrated","tokenId":"z"}}`, string(data))

	_, err = Encode(&event.BulkLoadEvent{})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestTrackMessage_EmptyIDs(t *testing.T) {
	data, err := json.Marshal(NewTrackMessage(domain.CategoryFinalStretch, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"track","category":"final-stretch","ids":[]}`, string(data))
}
