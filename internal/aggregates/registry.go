package aggregates

import (
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// 聚合名。
const (
	AgentPolicies = "agent_policies"
	AgentClaims   = "agent_claims"
	TopClients    = "top_clients"
)

// TopClientsLimit 排行榜长度。
const TopClientsLimit = 10

var (
	ErrUnknownAggregate   = errors.New("aggregates: unknown aggregate")
	ErrDuplicateAggregate = errors.New("aggregates: duplicate aggregate")
	ErrNotHash            = errors.New("aggregates: aggregate is not a hash")
)

// Kind 缓存值的形态。
type Kind int

const (
	// KindHash 成员 id 到整数计数的 Redis 哈希。
	KindHash Kind = iota
	// KindScalar 整体计算并以 JSON 字符串缓存的值。
	KindScalar
)

func (k Kind) String() string {
	if k == KindScalar {
		return "scalar"
	}
	return "hash"
}

// Definition 一个聚合的缓存位置与权威查询。
type Definition struct {
	Name   string
	Kind   Kind
	Target xcachesync.Target
	Query  xcachesync.Query

	// Policy 仅对哈希聚合有意义。
	Policy xcachesync.Policy
}

// Registry 按名字索引的聚合定义，创建后只读。
type Registry struct {
	defs map[string]Definition
}

// NewRegistry 名字重复或缓存 key 为空时返回错误。
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" || d.Target.CacheKey == "" {
			return nil, fmt.Errorf("%w: name %q key %q", xcachesync.ErrEmptyCacheKey, d.Name, d.Target.CacheKey)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAggregate, d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Default 返回内置的三个聚合。
func Default() *Registry {
	r, err := NewRegistry(
		Definition{
			Name: AgentPolicies,
			Kind: KindHash,
			Target: xcachesync.Target{
				CacheKey: "counts:agente:polizas",
				LockKey:  "lock:cache:repopulating_q5",
			},
			Query: xcachesync.Query{
				Collection: "polizas",
				Pipeline: mongo.Pipeline{
					{{Key: "$match", Value: bson.D{{Key: "agente.id_agente", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
					// 只统计在职代理人，agentes 以 _id 作为 id_agente
					{{Key: "$lookup", Value: bson.D{
						{Key: "from", Value: "agentes"},
						{Key: "localField", Value: "agente.id_agente"},
						{Key: "foreignField", Value: "_id"},
						{Key: "as", Value: "agente_doc"},
					}}},
					{{Key: "$match", Value: bson.D{{Key: "agente_doc.activo", Value: true}}}},
					{{Key: "$group", Value: bson.D{
						{Key: "_id", Value: "$agente.id_agente"},
						{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
					}}},
				},
			},
			Policy: xcachesync.PolicyBlocking,
		},
		Definition{
			Name: AgentClaims,
			Kind: KindHash,
			Target: xcachesync.Target{
				CacheKey: "counts:agente:siniestros",
				LockKey:  "lock:cache:repopulating_q12",
				DirtyKey: "cache:agente_siniestros:dirty",
			},
			Query: xcachesync.Query{
				Collection: "siniestros",
				Pipeline: mongo.Pipeline{
					{{Key: "$match", Value: bson.D{{Key: "poliza_snapshot.agente.id_agente", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
					{{Key: "$group", Value: bson.D{
						{Key: "_id", Value: "$poliza_snapshot.agente.id_agente"},
						{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
					}}},
				},
			},
			Policy: xcachesync.PolicyBlocking,
		},
		Definition{
			Name:   TopClients,
			Kind:   KindScalar,
			Target: xcachesync.NewTarget("ranking:top10_clientes"),
			Query: xcachesync.Query{
				Collection: "polizas",
				Pipeline: mongo.Pipeline{
					{{Key: "$match", Value: bson.D{{Key: "estado", Value: "activa"}}}},
					{{Key: "$group", Value: bson.D{
						{Key: "_id", Value: "$cliente_id"},
						{Key: "total_cobertura", Value: bson.D{{Key: "$sum", Value: "$cobertura_total"}}},
					}}},
					{{Key: "$sort", Value: bson.D{{Key: "total_cobertura", Value: -1}, {Key: "_id", Value: 1}}}},
					{{Key: "$limit", Value: TopClientsLimit}},
					{{Key: "$lookup", Value: bson.D{
						{Key: "from", Value: "clientes"},
						{Key: "localField", Value: "_id"},
						{Key: "foreignField", Value: "id_cliente"},
						{Key: "as", Value: "cliente"},
					}}},
					{{Key: "$project", Value: bson.D{
						{Key: "total_cobertura", Value: 1},
						{Key: "cliente_nombre", Value: bson.D{{Key: "$trim", Value: bson.D{{Key: "input", Value: bson.D{{Key: "$concat", Value: bson.A{
							bson.D{{Key: "$ifNull", Value: bson.A{bson.D{{Key: "$first", Value: "$cliente.nombre"}}, ""}}},
							" ",
							bson.D{{Key: "$ifNull", Value: bson.A{bson.D{{Key: "$first", Value: "$cliente.apellido"}}, ""}}},
						}}}}}}}},
					}}},
				},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get 返回 name 的定义。
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownAggregate, name)
	}
	return d, nil
}

// Names 按字典序返回所有聚合名。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries 返回所有哈希聚合，用于脏标记清扫。
func (r *Registry) Entries() []xcachesync.Entry {
	var entries []xcachesync.Entry
	for _, name := range r.Names() {
		d := r.defs[name]
		if d.Kind != KindHash {
			continue
		}
		entries = append(entries, xcachesync.Entry{Name: d.Name, Target: d.Target, Query: d.Query})
	}
	return entries
}

// WithPolicies 返回覆盖了策略的副本。overrides 中的未知名字返回 ErrUnknownAggregate。
func (r *Registry) WithPolicies(overrides map[string]xcachesync.Policy) (*Registry, error) {
	out := &Registry{defs: make(map[string]Definition, len(r.defs))}
	for name, d := range r.defs {
		out.defs[name] = d
	}
	for name, p := range overrides {
		d, ok := out.defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAggregate, name)
		}
		d.Policy = p
		out.defs[name] = d
	}
	return out, nil
}
