// Copyright (c) SandFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SandFlow 服务端程序入口。

# 概述

cmd/sandflow 是 SandFlow 沙箱代码执行服务的可执行入口，提供 HTTP
执行 API、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Handlers          — 执行、能力查询与健康检查端点
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码与响应大小

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 执行 API：POST /api/v1/execute 运行沙箱脚本，响应始终为结构化结果
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key 映射到调用方身份）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 排空执行 → 关闭 HTTP → 关闭 Metrics →
    断开存储 → 关闭遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
