// 版权所有 2024 OpenMemory Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 memories/waypoints Schema 的版本化迁移，支持
PostgreSQL 与 SQLite 两种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件（见 migrations/
postgres 与 migrations/sqlite），结合 golang-migrate 引擎管理
internal/store 读写的 memories 表与 internal/hsg 路标图依赖的
waypoints 表。支持正向迁移、回滚、跳转到指定版本以及强制设置
版本号等操作；不支持 MySQL —— 项目的数据库驱动栈（glebarez 的
纯 Go SQLite 与 pgx）里从未包含它。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Goto/Force/
    Version/Status/Info/Close 操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例
    与数据库连接管理。
  - Config：迁移配置，包含数据库类型、连接 URL、迁移表名与锁超时。
  - DatabaseType：数据库类型枚举（postgres/sqlite）。
  - MigrationStatus / MigrationInfo：迁移状态与摘要信息。
  - CLI：命令行交互层，封装 Migrator 提供格式化输出，被
    cmd/openmemory 的 migrate 子命令直接调用。

# 主要能力

  - 双数据库支持：通过 DatabaseType 与内嵌 SQL 文件自动适配方言。
  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig /
    NewMigratorFromURL 支持从不同配置源快速创建迁移器。
  - CLI 集成：CLI 类型提供 RunUp/RunDown/RunStatus/RunVersion/
    RunGoto/RunForce 等面向终端的格式化操作。
  - 辅助工具：ParseDatabaseType 解析类型字符串，BuildDatabaseURL
    按方言拼接连接 URL。
*/
package migration
