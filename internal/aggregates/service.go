package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcache"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

var (
	// ErrMissingDependency Deps 中缺少必需组件。
	ErrMissingDependency = errors.New("aggregates: missing dependency")

	// ErrPolicyUnavailable 请求的自增策略没有装配。锁与数据不在同一 Redis 节点时
	// 非阻塞脚本看不到锁，此时只装配阻塞策略。
	ErrPolicyUnavailable = errors.New("aggregates: increment policy unavailable")
)

// Deps Service 的协作组件，由 bootstrap 组装。
type Deps struct {
	Registry *Registry
	Store    xcache.Store
	Warmer   *xcachesync.Warmer
	Blocking *xcachesync.Incrementer
	// NonBlocking 可为 nil，此时注册表中不能有非阻塞聚合。
	NonBlocking *xcachesync.Incrementer
	Invalidator *xcachesync.Invalidator
	Repopulator *xcachesync.Repopulator
	Ranking     *xcachesync.Computer[[]RankedClient]
	Ranker      Ranker
	Logger      xlog.Logger
}

// Service 按聚合名执行缓存同步操作。
type Service struct {
	Deps
}

// NewService 校验并保存依赖。
func NewService(d Deps) (*Service, error) {
	missing := map[string]bool{
		"registry":    d.Registry == nil,
		"store":       d.Store == nil,
		"warmer":      d.Warmer == nil,
		"blocking":    d.Blocking == nil,
		"invalidator": d.Invalidator == nil,
		"repopulator": d.Repopulator == nil,
		"ranking":     d.Ranking == nil,
		"ranker":      d.Ranker == nil,
	}
	for name, isMissing := range missing {
		if isMissing {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, name)
		}
	}
	if d.NonBlocking == nil {
		for _, name := range d.Registry.Names() {
			if def, _ := d.Registry.Get(name); def.Kind == KindHash && def.Policy == xcachesync.PolicyNonBlocking {
				return nil, fmt.Errorf("%w: %s is %s", ErrPolicyUnavailable, name, def.Policy)
			}
		}
	}
	d.Logger = xlog.OrDiscard(d.Logger)
	return &Service{Deps: d}, nil
}

// Warm 确保 name 已缓存，返回调用前是否已存在。
func (s *Service) Warm(ctx context.Context, name string) (xcachesync.WarmResult, error) {
	d, err := s.Registry.Get(name)
	if err != nil {
		return xcachesync.WarmResult{}, err
	}
	if d.Kind == KindHash {
		return s.Warmer.EnsureWarm(ctx, d.Target, d.Query)
	}
	existed, err := s.Store.Exists(ctx, d.Target.CacheKey)
	if err != nil {
		return xcachesync.WarmResult{}, err
	}
	if _, err := s.ranking(ctx, d); err != nil {
		return xcachesync.WarmResult{}, err
	}
	return xcachesync.WarmResult{WasWarm: existed}, nil
}

// Read 返回缓存值：哈希聚合为 map[string]int64，top_clients 为 []RankedClient。
// 缓存缺失时先填充。
func (s *Service) Read(ctx context.Context, name string) (any, error) {
	d, err := s.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	if d.Kind == KindHash {
		return s.Warmer.ReadHash(ctx, d.Target, d.Query)
	}
	return s.ranking(ctx, d)
}

// Increment 使用聚合的默认策略自增 field。
func (s *Service) Increment(ctx context.Context, name, field string, delta int64) (xcachesync.IncrementResult, error) {
	d, err := s.hash(name)
	if err != nil {
		return xcachesync.IncrementResult{}, err
	}
	return s.IncrementWithPolicy(ctx, name, field, delta, d.Policy)
}

// IncrementWithPolicy 使用指定策略自增 field。
func (s *Service) IncrementWithPolicy(ctx context.Context, name, field string, delta int64, policy xcachesync.Policy) (xcachesync.IncrementResult, error) {
	d, err := s.hash(name)
	if err != nil {
		return xcachesync.IncrementResult{}, err
	}
	inc, err := s.incrementer(policy)
	if err != nil {
		return xcachesync.IncrementResult{}, err
	}
	return inc.Increment(ctx, xcachesync.IncrementRequest{Target: d.Target, Query: d.Query, Field: field, Delta: delta})
}

// Invalidate 在锁内删除缓存，返回 key 是否存在过。
func (s *Service) Invalidate(ctx context.Context, name string) (bool, error) {
	d, err := s.Registry.Get(name)
	if err != nil {
		return false, err
	}
	deleted, err := s.Invalidator.InvalidateWithLock(ctx, d.Target)
	if d.Kind == KindScalar {
		s.Ranking.Forget(d.Target.CacheKey)
	}
	return deleted, err
}

// Repopulate 无条件重算。哈希聚合同时清除脏标记；标量聚合先失效再计算。
func (s *Service) Repopulate(ctx context.Context, name string) error {
	d, err := s.Registry.Get(name)
	if err != nil {
		return err
	}
	if d.Kind == KindHash {
		return s.Repopulator.ForceRepopulate(ctx, d.Target, d.Query)
	}
	if _, err := s.Invalidate(ctx, name); err != nil {
		return err
	}
	_, err = s.ranking(ctx, d)
	return err
}

// Dirty 返回 names 对应哈希聚合的脏标记状态，names 为空时检查全部哈希聚合。
func (s *Service) Dirty(ctx context.Context, names ...string) (map[string]bool, error) {
	if len(names) == 0 {
		for _, e := range s.Registry.Entries() {
			names = append(names, e.Name)
		}
	}
	out := make(map[string]bool, len(names))
	for _, name := range names {
		d, err := s.hash(name)
		if err != nil {
			return nil, err
		}
		dirty, err := s.Repopulator.IsDirty(ctx, d.Target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = dirty
	}
	return out, nil
}

// Sweep 重算所有带脏标记的哈希聚合。
func (s *Service) Sweep(ctx context.Context) (xcachesync.SweepReport, error) {
	return s.Repopulator.SweepDirty(ctx, s.Registry.Entries())
}

// OnPolicyCreated 新保单提交后调用：代理人保单数加一，排行榜失效。
// 缓存错误只记录日志。
func (s *Service) OnPolicyCreated(ctx context.Context, agentID string) {
	if agentID != "" {
		s.incrementSafe(ctx, AgentPolicies, agentID)
	}
	s.invalidateSafe(ctx, TopClients)
}

// OnClaimCreated 新理赔提交后调用：代理人理赔数加一。
func (s *Service) OnClaimCreated(ctx context.Context, agentID int64) {
	s.incrementSafe(ctx, AgentClaims, strconv.FormatInt(agentID, 10))
}

// OnClientChanged 客户或保单保额变更后调用：排行榜失效。
func (s *Service) OnClientChanged(ctx context.Context) {
	s.invalidateSafe(ctx, TopClients)
}

func (s *Service) incrementSafe(ctx context.Context, name, field string) {
	d, err := s.hash(name)
	if err != nil {
		s.Logger.Error(ctx, "increment skipped", xlog.Aggregate(name), xlog.Err(err))
		return
	}
	inc, err := s.incrementer(d.Policy)
	if err != nil {
		s.Logger.Error(ctx, "increment skipped", xlog.Aggregate(name), xlog.Err(err))
		return
	}
	res := inc.IncrementSafe(ctx, xcachesync.IncrementRequest{Target: d.Target, Query: d.Query, Field: field, Delta: 1})
	if res.Skipped {
		s.Logger.Debug(ctx, "increment skipped", xlog.Aggregate(name), xlog.Key(d.Target.CacheKey))
	}
}

func (s *Service) invalidateSafe(ctx context.Context, name string) {
	d, err := s.Registry.Get(name)
	if err != nil {
		s.Logger.Error(ctx, "invalidate skipped", xlog.Aggregate(name), xlog.Err(err))
		return
	}
	s.Invalidator.InvalidateSafe(ctx, d.Target)
	if d.Kind == KindScalar {
		s.Ranking.Forget(d.Target.CacheKey)
	}
}

func (s *Service) hash(name string) (Definition, error) {
	d, err := s.Registry.Get(name)
	if err != nil {
		return Definition{}, err
	}
	if d.Kind != KindHash {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotHash, name)
	}
	return d, nil
}

func (s *Service) incrementer(p xcachesync.Policy) (*xcachesync.Incrementer, error) {
	switch p {
	case xcachesync.PolicyBlocking:
		return s.Blocking, nil
	case xcachesync.PolicyNonBlocking:
		if s.NonBlocking == nil {
			return nil, fmt.Errorf("%w: %s", ErrPolicyUnavailable, p)
		}
		return s.NonBlocking, nil
	default:
		return nil, fmt.Errorf("%w: %s", xcachesync.ErrInvalidPolicy, p)
	}
}

func (s *Service) ranking(ctx context.Context, d Definition) ([]RankedClient, error) {
	return s.Ranking.Get(ctx, d.Target, RankingFunc(s.Ranker, d.Query))
}
