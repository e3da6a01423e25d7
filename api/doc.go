// Package api provides OpenAPI/Swagger documentation for the TradeFlow API.
//
// This package contains the OpenAPI 3.0 specification and related documentation
// for the TradeFlow HTTP API.
//
// # API Overview
//
// TradeFlow provides a RESTful API for:
//   - Equity-analysis task submission (single and batch)
//   - Task status lookup (task store) and hydrated result lookup (layered sources)
//   - Per-task progress streaming over WebSocket
//   - Declarative analyst-record (customModes) management per phase
//   - Health monitoring and metrics
//
// # Authentication
//
// When API keys are configured (server.api_keys), every endpoint except
// /health, /healthz, /ready, /readyz, /version and /metrics requires one in
// the X-API-Key header (or, with AllowQueryAPIKey, the api_key query
// parameter). With no keys configured, no authentication is applied:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// The OpenAPI 3.0 specification is the static file api/openapi.yaml. The
// server registers no /swagger route; swag output (below) is written to api/.
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/tradeflow/main.go -o api --parseDependency --parseInternal
//
// # Viewing Documentation
//
// The repository ships no Makefile and no Swagger UI server; api/openapi.yaml
// can be loaded into any Swagger UI instance.
package api
