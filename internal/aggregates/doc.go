// Package aggregates 定义保险后台的缓存聚合，并把它们绑定到 xcachesync 组件上。
//
// 三个聚合：
//
//   - agent_policies: 每个代理人的保单数，哈希 counts:agente:polizas
//   - agent_claims: 每个代理人的理赔数，哈希 counts:agente:siniestros
//   - top_clients: 有效保单保额前 10 的客户，JSON 字符串 ranking:top10_clientes
//
// [Service] 是命令行与定时清扫使用的入口，领域写入后的缓存同步走
// [Service.OnPolicyCreated] 等方法，缓存异常不会影响调用方。
package aggregates
