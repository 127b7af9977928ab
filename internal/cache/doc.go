// 版权所有 2024 OpenMemory Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的热层缓存，供 internal/hsg 的 Engine.Query
在重新扫描 memories/waypoints 存储之前优先查询。

# 概述

Manager 封装 go-redis 客户端，实现 internal/hsg.QueryCache 所需的
GetJSON/SetJSON，让 Engine 在不直接依赖本包的前提下可选挂载缓存。
候选集按 "hsg:candidates:<userID>:<sectors>" 键族缓存；写入路径
（Engine.Insert）通过 InvalidateCandidates 清除某个用户的全部候选集
缓存，避免下一次查询读到写入前的候选集。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端与连接池配置，
    提供 Get/Set/Delete/Exists/Expire 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法与 InvalidateCandidates。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL、
    健康检查间隔等参数。
  - Stats：缓存统计信息，从 Redis INFO 的 stats/memory/clients/keyspace
    各段解析得到命中率、键数量、内存使用与连接数。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 候选集失效：InvalidateCandidates 按用户 ID 扫描并删除
    hsg 候选集缓存键族，供写入路径调用。
  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：后台定时 Ping 检测，异常时通过 zap 日志告警。
  - 优雅关闭：Close 方法安全释放底层 Redis 连接。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
