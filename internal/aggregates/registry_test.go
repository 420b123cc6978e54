package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

func TestDefault_Definitions(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{AgentClaims, AgentPolicies, TopClients}, r.Names())

	policies, err := r.Get(AgentPolicies)
	require.NoError(t, err)
	assert.Equal(t, KindHash, policies.Kind)
	assert.Equal(t, "counts:agente:polizas", policies.Target.CacheKey)
	assert.Equal(t, "lock:cache:repopulating_q5", policies.Target.LockKey)
	assert.Equal(t, "polizas", policies.Query.Collection)
	assert.Equal(t, xcachesync.PolicyBlocking, policies.Policy)
	stages, ok := policies.Query.Pipeline.(mongo.Pipeline)
	require.True(t, ok)
	require.Len(t, stages, 4)
	assert.Equal(t, "$lookup", stages[1][0].Key)
	assert.Contains(t, stages[1][0].Value, bson.E{Key: "from", Value: "agentes"})
	assert.Equal(t, bson.D{{Key: "agente_doc.activo", Value: true}}, stages[2][0].Value)
	assert.Equal(t, "$group", stages[3][0].Key)

	claims, err := r.Get(AgentClaims)
	require.NoError(t, err)
	assert.Equal(t, "cache:agente_siniestros:dirty", claims.Target.DirtyKey)
	assert.Equal(t, "siniestros", claims.Query.Collection)

	top, err := r.Get(TopClients)
	require.NoError(t, err)
	assert.Equal(t, KindScalar, top.Kind)
	assert.Equal(t, "ranking:top10_clientes", top.Target.CacheKey)
}

func TestRegistry_Get_Unknown(t *testing.T) {
	_, err := Default().Get("agent_vehicles")
	assert.ErrorIs(t, err, ErrUnknownAggregate)
}

func TestRegistry_Entries_OnlyHashes(t *testing.T) {
	entries := Default().Entries()

	require.Len(t, entries, 2)
	assert.Equal(t, AgentClaims, entries[0].Name)
	assert.Equal(t, AgentPolicies, entries[1].Name)
}

func TestNewRegistry_Errors(t *testing.T) {
	d := Definition{Name: "a", Target: xcachesync.NewTarget("k")}

	_, err := NewRegistry(d, d)
	assert.ErrorIs(t, err, ErrDuplicateAggregate)

	_, err = NewRegistry(Definition{Name: "b"})
	assert.ErrorIs(t, err, xcachesync.ErrEmptyCacheKey)
}

func TestRegistry_WithPolicies(t *testing.T) {
	base := Default()

	r, err := base.WithPolicies(map[string]xcachesync.Policy{AgentClaims: xcachesync.PolicyNonBlocking})
	require.NoError(t, err)

	claims, _ := r.Get(AgentClaims)
	assert.Equal(t, xcachesync.PolicyNonBlocking, claims.Policy)
	original, _ := base.Get(AgentClaims)
	assert.Equal(t, xcachesync.PolicyBlocking, original.Policy)

	_, err = base.WithPolicies(map[string]xcachesync.Policy{"nope": xcachesync.PolicyBlocking})
	assert.ErrorIs(t, err, ErrUnknownAggregate)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "hash", KindHash.String())
	assert.Equal(t, "scalar", KindScalar.String())
}
