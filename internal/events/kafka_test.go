package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestKafkaSinkKeysByEntity(t *testing.T) {
	p := &fakeProducer{}
	sink := NewKafkaSink(p, "tracecore.events")

	err := sink.Deliver(context.Background(), Batch{
		{Seq: 1, Type: EntityRegistered, EntityID: 42},
		{Seq: 2, Type: RuleAdded, RuleID: "R1"},
	})
	require.NoError(t, err)
	require.Len(t, p.records, 2)

	assert.Equal(t, "42", string(p.records[0].Key))
	assert.Equal(t, "R1", string(p.records[1].Key))
	assert.Equal(t, "tracecore.events", p.records[0].Topic)

	var decoded Event
	require.NoError(t, json.Unmarshal(p.records[0].Value, &decoded))
	assert.Equal(t, EntityRegistered, decoded.Type)
	assert.Equal(t, uint64(1), decoded.Seq)
}

func TestKafkaSinkSurfacesProduceError(t *testing.T) {
	p := &fakeProducer{err: errors.New("not enough replicas")}
	sink := NewKafkaSink(p, "t")

	err := sink.Deliver(context.Background(), Batch{{Seq: 1, Type: EntityUpdated, EntityID: 1}})
	require.ErrorContains(t, err, "not enough replicas")
}
