// Package validate はフォーム入力の検証ルールを提供する。
//
// 各ルールは検証関数とエラー時のフィールド名・メッセージの組で、
// Applyで評価すると失敗したルールが*model.ValidationErrorにまとめられる。
package validate

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// Rule は1つの検証ルール。
type Rule struct {
	Check   func() bool
	Field   string
	Message string
}

// Apply はルールを順に評価し、失敗したものをまとめたエラーを返す。全て成功した場合はnil。
// 同一フィールドのエラーは最初の1件のみ記録する。
func Apply(rules ...Rule) error {
	verr := &model.ValidationError{}
	for _, r := range rules {
		if verr.Has(r.Field) {
			continue
		}
		if !r.Check() {
			verr.Add(r.Field, r.Message)
		}
	}
	if !verr.HasErrors() {
		return nil
	}
	return verr
}

// Required は空白のみでない値であることを検証する。
func Required(field, value, message string) Rule {
	return Rule{
		Check:   func() bool { return strings.TrimSpace(value) != "" },
		Field:   field,
		Message: message,
	}
}

// MinLen は文字数（rune数）がmin以上であることを検証する。
func MinLen(field, value string, min int, message string) Rule {
	return Rule{
		Check:   func() bool { return utf8.RuneCountInString(value) >= min },
		Field:   field,
		Message: message,
	}
}

// MaxLen は文字数（rune数）がmax以下であることを検証する。
func MaxLen(field, value string, max int, message string) Rule {
	return Rule{
		Check:   func() bool { return utf8.RuneCountInString(value) <= max },
		Field:   field,
		Message: message,
	}
}

// Email はメールアドレスの形式を検証する。表示名付きの形式は受け付けない。
func Email(field, value, message string) Rule {
	return Rule{
		Check:   func() bool { return validEmail(value) },
		Field:   field,
		Message: message,
	}
}

func validEmail(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return false
	}

	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" {
		return false
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	for _, part := range strings.Split(domain, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

// Matches は値が正規表現に一致することを検証する。
func Matches(field, value string, re *regexp.Regexp, message string) Rule {
	return Rule{
		Check:   func() bool { return re.MatchString(value) },
		Field:   field,
		Message: message,
	}
}

// OneOf は値が許可された値のいずれかであることを検証する。
func OneOf[T comparable](field string, value T, allowed []T, message string) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Field:   field,
		Message: message,
	}
}

// Equal は2つの値が一致することを検証する（確認用パスワード等）。
func Equal(field, value, other, message string) Rule {
	return Rule{
		Check:   func() bool { return value == other },
		Field:   field,
		Message: message,
	}
}

// When はcondがtrueの場合のみruleを評価する。任意項目の検証に使う。
func When(cond bool, rule Rule) Rule {
	check := rule.Check
	rule.Check = func() bool { return !cond || check() }
	return rule
}

var (
	lowerRe   = regexp.MustCompile(`[a-z]`)
	upperRe   = regexp.MustCompile(`[A-Z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[@$!%*?&]`)
)

// Password はパスワードの強度ルール一式を返す。
// 8文字以上で、小文字・大文字・数字・記号（@$!%*?&）をそれぞれ1文字以上含むこと。
func Password(field, value string) []Rule {
	return []Rule{
		Required(field, value, "Password is required"),
		MinLen(field, value, 8, "Password must be at least 8 characters"),
		Matches(field, value, lowerRe, "Password must contain at least one lowercase letter"),
		Matches(field, value, upperRe, "Password must contain at least one uppercase letter"),
		Matches(field, value, digitRe, "Password must contain at least one number"),
		Matches(field, value, specialRe, "Password must contain at least one special character"),
	}
}
