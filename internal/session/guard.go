package session

// Policy はルートのアクセスポリシー。
type Policy int

const (
	// PolicyPublic は誰でもアクセスできる。
	PolicyPublic Policy = iota
	// PolicyProtected はサインイン済みユーザーのみアクセスできる。
	PolicyProtected
)

// Decision はガードの判定結果。
type Decision int

const (
	// DecisionPlaceholder は認証状態のロード中で、判定を保留してプレースホルダーを表示する。
	DecisionPlaceholder Decision = iota
	// DecisionAllow はアクセスを許可する。
	DecisionAllow
	// DecisionDeny はアクセスを拒否し、ログイン画面へ誘導する。
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionPlaceholder:
		return "placeholder"
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	}
	return "unknown"
}

// Guard はストアの状態とポリシーからアクセス可否を判定する。
// {loading}から{settled}へ一度だけ遷移し、settled後はポリシーのみで決まる。
type Guard struct {
	Policy Policy
}

// Evaluate は状態に対する判定を返す。
func (g Guard) Evaluate(st State) Decision {
	if st.IsLoading || !st.Ready {
		return DecisionPlaceholder
	}
	if g.Policy == PolicyPublic || st.Authenticated() {
		return DecisionAllow
	}
	return DecisionDeny
}
