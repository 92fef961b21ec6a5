package control

import (
	"trade-gate/internal/types"
)

// AuthorizationPolicy 判断调用方是否有权修改状态。
type AuthorizationPolicy interface {
	Authorize(caller types.Pubkey, state types.BotState) error
}

// AuthorityPolicy 仅允许与 state.Authority 相同的身份。
type AuthorityPolicy struct{}

// Authorize 实现 AuthorizationPolicy。
func (AuthorityPolicy) Authorize(caller types.Pubkey, state types.BotState) error {
	if types.IsZero(caller) || caller != state.Authority {
		return types.ErrUnauthorizedAccess
	}
	return nil
}

// PolicyFunc 允许使用函数作为策略。
type PolicyFunc func(caller types.Pubkey, state types.BotState) error

// Authorize 实现 AuthorizationPolicy。
func (f PolicyFunc) Authorize(caller types.Pubkey, state types.BotState) error {
	return f(caller, state)
}
