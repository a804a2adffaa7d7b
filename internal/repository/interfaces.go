// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// ContactRepository は問い合わせデータの永続化インターフェース。
type ContactRepository interface {
	// Create は問い合わせを作成する。statusは常にnewで登録される。
	Create(ctx context.Context, req *model.NewContactRequest) (*model.ContactRequest, error)

	// FindByID は指定IDの問い合わせを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.ContactRequest, error)

	// List は絞り込み条件に一致する問い合わせをcreated_at降順で返す。
	List(ctx context.Context, filter model.ContactFilter) ([]*model.ContactRequest, error)

	// UpdateStatus は対応状況を更新しupdated_atを現在時刻にする。
	// 見つからない場合はnilを返す。
	UpdateStatus(ctx context.Context, id int64, status model.ContactStatus) (*model.ContactRequest, error)

	// Delete は指定IDの問い合わせを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// Stats は管理画面向けの集計値を返す。since以降に作成された件数をNewThisWeekとする。
	Stats(ctx context.Context, since time.Time) (*model.ContactStats, error)

	// DeleteClosedBefore はstatusがcompleted/cancelledかつupdated_atがbeforeより古い問い合わせを削除する。
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}
