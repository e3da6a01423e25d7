// Copyright (c) TradeFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 TradeFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 TradeFlow 所有 HTTP 端点的请求处理逻辑，
包括权益分析任务的提交与查询、声明式 Agent 配置的读写、健康检查
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口；
健康检查 Handler 带有 Swagger 注解，分析与 Agent 配置端点记录在
api/openapi.yaml 中。

# 核心类型

  - AnalysisHandler     — 分析任务提交（单个/批量）、状态/结果查询、取消、
    历史记录、僵尸任务回收与 WebSocket 进度推送
  - AgentConfigHandler  — 声明式 customModes 记录的按阶段读写（1-4）
  - HealthHandler       — 服务健康检查（/health, /healthz, /ready）
  - Response            — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo           — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter      — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck         — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 分析任务生命周期：提交、状态、结果水合、取消、删除、历史过滤
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
