package app

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"trade-gate/internal/config"
	"trade-gate/internal/types"
)

const bearerPrefix = "Bearer "

// callerRegistry 通过 Authorization: Bearer 令牌识别调用方。
// 只保存令牌摘要，未知令牌解析为零身份，由授权策略拒绝。
type callerRegistry struct {
	identities map[common.Hash]types.Pubkey
}

func newCallerRegistry(cfg config.GateConfig) callerRegistry {
	reg := callerRegistry{identities: make(map[common.Hash]types.Pubkey, len(cfg.Callers)+1)}
	if cfg.AuthorityToken != "" {
		reg.add(cfg.AuthorityToken, types.ParsePubkey(cfg.Authority))
	}
	for _, c := range cfg.Callers {
		reg.add(c.Token, types.ParsePubkey(c.Pubkey))
	}
	return reg
}

func (c callerRegistry) add(token string, identity types.Pubkey) {
	if token == "" || types.IsZero(identity) {
		return
	}
	c.identities[crypto.Keccak256Hash([]byte(token))] = identity
}

func (c callerRegistry) resolve(r *http.Request) types.Pubkey {
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return types.Pubkey{}
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return types.Pubkey{}
	}
	return c.identities[crypto.Keccak256Hash([]byte(token))]
}
