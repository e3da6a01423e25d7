// Copyright 2026 TradeFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 mistral 提供 Mistral AI 模型的 Provider 适配实现。Mistral 使用
OpenAI 兼容的 API 格式，本包通过嵌入 openaicompat.Provider 复用
HTTP 处理、SSE 解析等通用逻辑。

# 核心结构体

  - MistralProvider — 嵌入 openaicompat.Provider

# 定制行为

  - 默认 BaseURL: https://api.mistral.ai
  - 默认兜底模型: mistral-large-latest

# 支持能力

  - Chat Completion（同步，委托 openaicompat）
  - 流式输出（SSE，委托 openaicompat）
  - 原生 Function Calling / Tool Use
  - 健康检查、模型列表（委托 openaicompat）
*/
package mistral
