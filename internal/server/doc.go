// 版权所有 2024 OpenMemory Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，供 cmd/openmemory 的
主 API 监听端口与独立的 Prometheus /metrics 监听端口共用同一套
非阻塞启动、优雅关闭与系统信号监听逻辑。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。cmd/openmemory 为每个监听端口各建一个
Manager（httpManager 服务 api/httpapi 的路由，metricsManager 服务
Prometheus 抓取端点），二者共享 SIGINT/SIGTERM 优雅停机路径。
StartTLS 使用 internal/tlsutil 的加固 TLS 配置。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/StartTLS/Shutdown/WaitForShutdown
    等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时、空闲超时、
    最大请求头大小与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start/StartTLS 在后台 goroutine 中运行服务，
    主线程不阻塞。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放。
  - 信号监听：WaitForShutdown 监听 SIGINT/SIGTERM，收到信号后
    自动触发优雅关闭流程。
  - 错误传播：Errors() 返回异步错误通道，供调用方监控服务异常。
  - TLS 支持：StartTLS 加载 internal/tlsutil.DefaultTLSConfig()
    并指定证书与密钥文件。
  - 状态查询：IsRunning/Addr 提供运行状态与监听地址查询。
*/
package server
