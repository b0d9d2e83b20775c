// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package shell

import (
	"os"
	"strings"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

// Expand performs shell expansion on s as if it were within double
// quotes, using env to resolve variables. This includes parameter
// expansion and arithmetic expansion, but not command substitution.
//
// If env is nil, the current environment variables are used.
func Expand(s string, env func(string) string) (string, error) {
	words, err := syntax.ParseWords([]byte(s))
	if err != nil {
		return "", err
	}
	cfg := &expand.Config{Env: funcEnv(env)}
	var sb strings.Builder
	for i, word := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		str, err := expand.Document(cfg, word)
		if err != nil {
			return "", err
		}
		sb.WriteString(str)
	}
	return sb.String(), nil
}

// Fields performs shell expansion on s as if it were a command's
// arguments, using env to resolve variables. It is similar to
// [Expand], but includes field splitting and pathname expansion.
func Fields(s string, env func(string) string) ([]string, error) {
	words, err := syntax.ParseWords([]byte(s))
	if err != nil {
		return nil, err
	}
	cfg := &expand.Config{Env: funcEnv(env), ReadDir: os.ReadDir}
	return expand.Fields(cfg, words...)
}

func funcEnv(env func(string) string) expand.Environ {
	if env == nil {
		env = os.Getenv
	}
	return expand.FuncEnviron(env)
}
