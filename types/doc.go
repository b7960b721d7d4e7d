// Copyright (c) SandFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 SandFlow 引擎的全局共享类型定义。

# 概述

types 是引擎最底层的公共包，不依赖任何内部包，为 sandbox、store、
cmd 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - ExecutionRequest  — 执行请求（代码、超时、数据预取、返回变量）
  - ExecutionResult   — 结构化执行结果（输出、变量、错误、审计信息）
  - SecurityFinding   — 模式扫描器产出的安全违规记录
  - Principal         — 调用方身份（ID、角色、启用状态）
  - Error / ErrorCode — 结构化错误体系，含修复提示与 Retryable 标记

# 主要能力

  - Context 传播：WithRequestID / WithUserID / WithExecutionID
  - 错误工具链：AsError / GetErrorCode / IsRetryable
  - 请求归一化：Timeout 钳制（1s–300s，默认 30s）、输出捕获默认开启
  - 失败结果构造：FailureResult 保证任何阶段失败都以结构化结果返回
*/
package types
