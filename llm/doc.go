// Copyright 2024 TradeFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides the unified LLM provider abstraction.

# Overview

The llm package defines the provider-agnostic contract for interacting with
Large Language Model vendors. The rest of the system treats the LLM as a
black box behind this seam: the agent graph, tool dispatch, and analysis
pipeline depend only on the Provider interface and its request/response
types, never on a vendor package.

# Provider Interface

The core Provider interface defines the contract for all LLM providers:

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	}

# Supported Providers

Concrete implementations live in llm/providers/* and are constructed by
name through llm/factory:

  - OpenAI (GPT-4, GPT-4o, GPT-3.5-turbo)
  - Google (Gemini Pro, Gemini Ultra)
  - DeepSeek (DeepSeek-Chat, DeepSeek-Coder)
  - Alibaba (Qwen-Turbo, Qwen-Plus, Qwen-Max)
  - Tencent (Hunyuan)
  - Moonshot (Kimi)
  - Zhipu (GLM-4)
  - ByteDance (Doubao)
  - MiniMax
  - Mistral
  - Meta (Llama)
  - xAI (Grok)

# Usage

Basic usage with a configured provider:

	provider, err := factory.NewProviderFromConfig("openai", factory.ProviderConfig{
	    APIKey: "your-api-key",
	    Model:  "gpt-4o",
	}, logger)
	if err != nil {
	    log.Fatal(err)
	}

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: []llm.Message{
	        {Role: llm.RoleUser, Content: "Hello!"},
	    },
	})

# Streaming

All providers support streaming responses:

	stream, err := provider.Stream(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: messages,
	})
	if err != nil {
	    log.Fatal(err)
	}

	for chunk := range stream {
	    if chunk.Error != nil {
	        log.Printf("Error: %v", chunk.Error)
	        break
	    }
	    fmt.Print(chunk.Content)
	}

# Retry and Resilience

Built-in retry with exponential backoff and a circuit breaker:

	resilient := llm.NewResilientProvider(provider, nil, logger)
	resp, err := resilient.Completion(ctx, req)

# Tool Calling

Support for native function calling:

	resp, err := provider.Completion(ctx, &llm.ChatRequest{
	    Model: "gpt-4o",
	    Messages: messages,
	    Tools: []llm.ToolSchema{
	        {
	            Name:        "get_weather",
	            Description: "Get current weather for a location",
	            Parameters:  weatherParamsSchema,
	        },
	    },
	})

# Error Handling

The package defines structured error codes:

	const (
	    ErrInvalidRequest      ErrorCode = "invalid_request"
	    ErrAuthentication      ErrorCode = "authentication_error"
	    ErrRateLimit           ErrorCode = "rate_limit"
	    ErrContextTooLong      ErrorCode = "context_too_long"
	    ErrServiceUnavailable  ErrorCode = "service_unavailable"
	)

Use IsRetryable to check if an error can be retried:

	if llm.IsRetryable(err) {
	    // Implement retry logic
	}

See the subpackages for additional functionality:
  - llm/circuitbreaker: Failure isolation for provider and tool calls
  - llm/factory: Provider construction by configured name
  - llm/middleware: Request/response middleware
  - llm/tools: ReAct loop and tool execution
  - llm/providers/*: Provider-specific implementations
*/
package llm
