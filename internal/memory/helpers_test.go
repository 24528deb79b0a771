package memory

import "github.com/rcliao/agent-context/internal/tokens"

func tokensFunc(fn func(string) int) tokens.Counter { return tokens.CounterFunc(fn) }
