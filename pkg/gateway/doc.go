// Package gateway provides a reusable code review gateway library that can be embedded into other Go applications.
//
// # Overview
//
// The gateway accepts review requests for GitHub pull requests, runs a
// pipeline of specialized LLM-backed analysis stages over the changed
// files on a worker pool, and exposes job progress and results through a
// polling API.
//
// # Basic Usage
//
// Create a gateway from a config file and environment variables:
//
//	gw, err := gateway.NewFromEnv("configs/gateway.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := gw.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Or build the configuration programmatically:
//
//	cfg := &gateway.Config{
//		Server: gateway.ServerConfig{Port: 8080},
//		LLM: gateway.LLMConfig{
//			Provider: "anthropic",
//			Model:    "claude-sonnet-4-20250514",
//		},
//		Store: gateway.StoreConfig{Driver: "sqlite", Path: "data/jobs.db"},
//	}
//	gw, err := gateway.New(cfg)
//
// # Embedding
//
// Use Handler to mount the gateway's routes on an existing server:
//
//	mux.Handle("/reviews/", gw.Handler())
//
// Use Service for direct programmatic access without HTTP:
//
//	job, err := gw.Service().SubmitJob(ctx, "org/repo", 42, "")
package gateway
