package session

import (
	"testing"

	"github.com/hitoshi/solidfoundation/internal/model"
)

func TestGuard_Evaluate(t *testing.T) {
	authed := State{
		User:    &model.AuthUser{ID: "u-1"},
		Session: &model.AuthSession{AccessToken: "at"},
		Ready:   true,
	}
	anonymous := State{Ready: true}
	loading := State{IsLoading: true}

	tests := []struct {
		name   string
		policy Policy
		state  State
		want   Decision
	}{
		{"protected/loading", PolicyProtected, loading, DecisionPlaceholder},
		{"public/loading", PolicyPublic, loading, DecisionPlaceholder},
		{"protected/anonymous", PolicyProtected, anonymous, DecisionDeny},
		{"protected/authenticated", PolicyProtected, authed, DecisionAllow},
		{"public/anonymous", PolicyPublic, anonymous, DecisionAllow},
		{"public/authenticated", PolicyPublic, authed, DecisionAllow},
		{"protected/not ready", PolicyProtected, State{}, DecisionPlaceholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Guard{Policy: tt.policy}.Evaluate(tt.state)
			if got != tt.want {
				t.Errorf("Evaluate() = %s, want %s", got, tt.want)
			}
		})
	}
}
