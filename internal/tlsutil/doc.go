// Package tlsutil 提供集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 供 internal/server 的 HTTP 管理端 StartTLS 与 internal/embedding 的
// HTTP 嵌入 Provider 客户端共用同一套安全加固设置。
package tlsutil
